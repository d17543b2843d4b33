package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestPublisherPublishesOnCategorySubject(t *testing.T) {
	conn := &recordingConn{}
	pub := NewPublisher(conn, "notifications.clearance.", nil)

	err := pub.Publish(context.Background(), Event{NotificationID: "n1", RecipientID: "s1", Category: "form approval"})
	require.NoError(t, err)

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "notifications.clearance.form_approval", conn.subjects[0])
	var decoded Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, "s1", decoded.RecipientID)
}

func TestPublisherSurfacesErrorsAndToleratesNil(t *testing.T) {
	pub := NewPublisher(&recordingConn{err: errors.New("down")}, "", nil)
	assert.Error(t, pub.Publish(context.Background(), Event{}))
	assert.Equal(t, "notifications.clearance.general", pub.Subject(""))

	var nilPub *Publisher
	assert.NoError(t, nilPub.Publish(context.Background(), Event{}))
	assert.NoError(t, NewPublisher(nil, "", nil).Publish(context.Background(), Event{}))
}
