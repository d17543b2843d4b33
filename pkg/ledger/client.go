package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/noah-isme/clearance-api/internal/models"
)

// ErrRejected is returned when the ledger answers with a non-2xx status.
var ErrRejected = errors.New("ledger rejected record")

// HTTPClient posts audit records to the ledger gateway as JSON.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient builds a client for endpoint. timeout bounds each call.
func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPClient{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type recordRequest struct {
	SubjectKey string `json:"subjectKey"`
	Action     string `json:"action"`
	ActorID    string `json:"actorId,omitempty"`
	Details    string `json:"details"`
	Timestamp  string `json:"timestamp"`
}

// RecordAction appends rec to the ledger and returns its receipt.
func (c *HTTPClient) RecordAction(ctx context.Context, rec models.AuditRecord) (*models.LedgerReceipt, error) {
	body, err := json.Marshal(recordRequest{
		SubjectKey: rec.SubjectKey,
		Action:     rec.Action,
		ActorID:    rec.ActorID,
		Details:    rec.Details,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("encode ledger record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call ledger: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read ledger response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(payload))
	}

	var receipt models.LedgerReceipt
	if err := json.Unmarshal(payload, &receipt); err != nil {
		return nil, fmt.Errorf("decode ledger receipt: %w", err)
	}
	return &receipt, nil
}
