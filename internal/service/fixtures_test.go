package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

var validPayloads = map[models.FormKind]string{
	models.FormNewClearance:         `{"fullName":"Ada Obi","jambRegNumber":"12345678AB","programme":"Computer Science","session":"2026/2027","phoneNumber":"+2348012345678"}`,
	models.FormProvisionalAdmission: `{"programme":"Computer Science","modeOfEntry":"UTME","session":"2026/2027"}`,
	models.FormPersonalRecord:       `{"dateOfBirth":"2007-03-01","gender":"female","stateOfOrigin":"Enugu","lga":"Nsukka","homeAddress":"12 Unity Road","nextOfKin":{"name":"Chika Obi","relationship":"Mother","phoneNumber":"+2348098765432"}}`,
	models.FormPersonalRecord2:      `{"maritalStatus":"single","permanentAddress":"12 Unity Road","guardianName":"Chika Obi","guardianPhone":"+2348098765432"}`,
	models.FormAffidavit:            `{"declarantName":"Ada Obi","declaration":"I declare that I will abide by the rules of the university.","swornAt":"High Court, Enugu","swornOn":"2026-09-01"}`,
}

func payload(kind models.FormKind) []byte { return []byte(validPayloads[kind]) }

// memStudents is an in-memory student directory.
type memStudents struct {
	byID map[string]*models.Student
	err  error
}

func newMemStudents(students ...models.Student) *memStudents {
	m := &memStudents{byID: make(map[string]*models.Student)}
	for i := range students {
		s := students[i]
		m.byID[s.ID] = &s
	}
	return m
}

func (m *memStudents) GetByID(ctx context.Context, id string) (*models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *s
	return &copy, nil
}

func (m *memStudents) ListIDsByDepartments(ctx context.Context, departments []string) ([]string, error) {
	ids := []string{}
	for id, s := range m.byID {
		for _, d := range departments {
			if s.Department == d {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStudents) Count(ctx context.Context, departments []string) (int, error) {
	if len(departments) == 0 {
		return len(m.byID), nil
	}
	ids, _ := m.ListIDsByDepartments(ctx, departments)
	return len(ids), nil
}

// memForms emulates the form table including the conditional submit upsert
// and the locked read-modify-write used by approvals.
type memForms struct {
	mu       sync.Mutex
	students *memStudents
	byID     map[string]*models.Form
	order    []string
	locks    int
	err      error
}

func newMemForms(students *memStudents) *memForms {
	return &memForms{students: students, byID: make(map[string]*models.Form)}
}

func (m *memForms) find(studentID string, kind models.FormKind) *models.Form {
	for _, id := range m.order {
		f := m.byID[id]
		if f.StudentID == studentID && f.Kind == kind {
			return f
		}
	}
	return nil
}

func cloneForm(f *models.Form) *models.Form {
	out := *f
	if f.Approvals != nil {
		out.Approvals = append(models.ApprovalSet(nil), f.Approvals...)
	}
	return &out
}

func (m *memForms) GetByID(ctx context.Context, id string) (*models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneForm(f), nil
}

func (m *memForms) GetByStudentAndKind(ctx context.Context, studentID string, kind models.FormKind) (*models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f := m.find(studentID, kind); f != nil {
		return cloneForm(f), nil
	}
	return nil, sql.ErrNoRows
}

func (m *memForms) ListByStudent(ctx context.Context, studentID string) ([]models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Form
	for _, id := range m.order {
		if f := m.byID[id]; f.StudentID == studentID {
			out = append(out, *cloneForm(f))
		}
	}
	return out, nil
}

func (m *memForms) Submit(ctx context.Context, form *models.Form) (*models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if existing := m.find(form.StudentID, form.Kind); existing != nil {
		if existing.Submitted {
			return nil, sql.ErrNoRows
		}
		existing.Details = form.Details
		existing.Submitted = true
		existing.SubmittedAt = form.SubmittedAt
		if len(existing.Approvals) == 0 {
			existing.Approvals = form.Approvals
		}
		return cloneForm(existing), nil
	}
	stored := cloneForm(form)
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	m.byID[stored.ID] = stored
	m.order = append(m.order, stored.ID)
	return cloneForm(stored), nil
}

func (m *memForms) UpdateWithLock(ctx context.Context, id string, mutate func(*models.Form) error) (*models.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks++
	f, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	working := cloneForm(f)
	if err := mutate(working); err != nil {
		return nil, err
	}
	m.byID[id] = working
	return cloneForm(working), nil
}

func (m *memForms) ListPending(ctx context.Context, cond repository.PendingCondition, departments []string) ([]dto.PendingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dto.PendingItem
	for _, id := range m.order {
		f := m.byID[id]
		if f.Kind != cond.Kind || !f.Submitted {
			continue
		}
		student := m.students.byID[f.StudentID]
		if len(departments) > 0 && !contains(departments, student.Department) {
			continue
		}
		if !pendingMatch(f, cond) {
			continue
		}
		out = append(out, dto.PendingItem{
			FormID:        f.ID,
			Kind:          f.Kind,
			StudentID:     f.StudentID,
			StudentName:   student.FullName,
			ApplicationID: student.ApplicationID,
			Department:    student.Department,
			SubmittedAt:   f.SubmittedAt,
		})
	}
	return out, nil
}

func pendingMatch(f *models.Form, cond repository.PendingCondition) bool {
	switch cond.Topology {
	case models.TopologyDual:
		if cond.Slot == models.SlotDeputyRegistrar {
			return !f.DeputyRegistrarApproved
		}
		return f.DeputyRegistrarApproved && !f.SchoolOfficerApproved
	case models.TopologySet:
		for _, slot := range f.Approvals {
			if string(slot.Role) == cond.Slot && !slot.Approved {
				return true
			}
		}
		return false
	default:
		return !f.Approved
	}
}

func (m *memForms) ListApprovedBy(ctx context.Context, staffID string) ([]repository.ApprovedFormRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.ApprovedFormRow
	for _, id := range m.order {
		f := m.byID[id]
		if len(f.SlotsApprovedBy(staffID)) == 0 {
			continue
		}
		student := m.students.byID[f.StudentID]
		out = append(out, repository.ApprovedFormRow{
			Form:          *cloneForm(f),
			StudentName:   student.FullName,
			ApplicationID: student.ApplicationID,
			Department:    student.Department,
		})
	}
	return out, nil
}

func (m *memForms) CountOverallApproved(ctx context.Context, departments []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, f := range m.byID {
		student := m.students.byID[f.StudentID]
		if f.OverallApproved && (len(departments) == 0 || contains(departments, student.Department)) {
			count++
		}
	}
	return count, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// recordingNotifier captures every notification call.
type recordingNotifier struct {
	mu          sync.Mutex
	submitted   []models.FormKind
	full        []models.FormKind
	partial     []models.FormKind
	reviews     []models.Role
	documents   []models.DocumentStatus
	completions []string
	err         error
}

func (n *recordingNotifier) NotifySubmitted(ctx context.Context, student *models.Student, desc models.FormDescriptor) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitted = append(n.submitted, desc.Kind)
	return n.err
}

func (n *recordingNotifier) NotifyApproved(ctx context.Context, student *models.Student, desc models.FormDescriptor, full bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if full {
		n.full = append(n.full, desc.Kind)
	} else {
		n.partial = append(n.partial, desc.Kind)
	}
	return n.err
}

func (n *recordingNotifier) RequestReview(ctx context.Context, student *models.Student, desc models.FormDescriptor, role models.Role) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviews = append(n.reviews, role)
	return n.err
}

func (n *recordingNotifier) NotifyDocumentReviewed(ctx context.Context, doc *models.Document) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.documents = append(n.documents, doc.Status)
	return n.err
}

func (n *recordingNotifier) NotifyClearanceComplete(ctx context.Context, student *models.Student) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completions = append(n.completions, student.ID)
	return n.err
}

// recordingAudit captures audit records.
type recordingAudit struct {
	mu      sync.Mutex
	records []models.AuditRecord
	err     error
}

func (a *recordingAudit) Record(ctx context.Context, rec models.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return a.err
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.records))
	for i, r := range a.records {
		out[i] = r.Action
	}
	return out
}

// memDocuments is an in-memory document table keyed by (student, type).
type memDocuments struct {
	docs map[string]*models.Document
}

func newMemDocuments() *memDocuments {
	return &memDocuments{docs: make(map[string]*models.Document)}
}

func (m *memDocuments) Upsert(ctx context.Context, doc *models.Document) (*models.Document, error) {
	for _, d := range m.docs {
		if d.StudentID == doc.StudentID && d.Type == doc.Type {
			d.FileRef = doc.FileRef
			d.Status = models.DocumentPending
			d.ReviewedBy, d.ReviewedAt, d.Feedback = nil, nil, nil
			copy := *d
			return &copy, nil
		}
	}
	stored := *doc
	stored.ID = uuid.NewString()
	stored.Status = models.DocumentPending
	stored.UploadedAt = time.Now().UTC()
	m.docs[stored.ID] = &stored
	copy := stored
	return &copy, nil
}

func (m *memDocuments) GetByID(ctx context.Context, id string) (*models.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *d
	return &copy, nil
}

func (m *memDocuments) ListByStudent(ctx context.Context, studentID string) ([]models.Document, error) {
	var out []models.Document
	for _, d := range m.docs {
		if d.StudentID == studentID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (m *memDocuments) Review(ctx context.Context, params repository.ReviewParams) (*models.Document, error) {
	d, ok := m.docs[params.ID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	reviewer, at := params.ReviewerID, params.ReviewedAt
	d.Status = params.Status
	d.ReviewedBy = &reviewer
	d.ReviewedAt = &at
	d.Feedback = params.Feedback
	copy := *d
	return &copy, nil
}

// seed approves every required document for studentID.
func (m *memDocuments) seedApproved(studentID string, except ...models.DocumentType) {
	for _, t := range models.RequiredDocumentTypes() {
		status := models.DocumentApproved
		for _, e := range except {
			if e == t {
				status = models.DocumentPending
			}
		}
		id := fmt.Sprintf("%s-%s", studentID, t)
		m.docs[id] = &models.Document{ID: id, StudentID: studentID, Type: t, FileRef: "s3://docs/" + id, Status: status}
	}
}

// memCompletions is the completion marker table.
type memCompletions struct {
	done map[string]time.Time
}

func newMemCompletions() *memCompletions {
	return &memCompletions{done: make(map[string]time.Time)}
}

func (m *memCompletions) MarkCompleted(ctx context.Context, studentID string, at time.Time) (bool, error) {
	if _, ok := m.done[studentID]; ok {
		return false, nil
	}
	m.done[studentID] = at
	return true, nil
}

func (m *memCompletions) Get(ctx context.Context, studentID string) (*models.ClearanceCompletion, error) {
	at, ok := m.done[studentID]
	if !ok {
		return nil, nil
	}
	return &models.ClearanceCompletion{StudentID: studentID, CompletedAt: at}, nil
}

// Principals used across the engine tests. The School Officer and HOD cover
// Computer Science only.
var (
	registrarStaff  = models.Principal{ID: "staff-registrar", Role: models.PrincipalStaff, Department: models.DepartmentRegistrar}
	csOfficer       = models.Principal{ID: "staff-officer", Role: models.PrincipalStaff, Department: models.DepartmentSchoolOfficer, ManagedDepartments: []string{"Computer Science"}}
	csHOD           = models.Principal{ID: "staff-hod", Role: models.PrincipalStaff, Department: "Computer Science HOD"}
	supportStaff    = models.Principal{ID: "staff-support", Role: models.PrincipalStaff, Department: models.DepartmentStudentSupport}
	financeStaff    = models.Principal{ID: "staff-finance", Role: models.PrincipalStaff, Department: models.DepartmentFinance}
	libraryStaff    = models.Principal{ID: "staff-library", Role: models.PrincipalStaff, Department: models.DepartmentLibrary}
	healthStaff     = models.Principal{ID: "staff-health", Role: models.PrincipalStaff, Department: models.DepartmentHealth}
	legalStaff      = models.Principal{ID: "staff-legal", Role: models.PrincipalStaff, Department: models.DepartmentLegal}
	adminPrincipal  = models.Principal{ID: "admin-1", Role: models.PrincipalAdmin}
	csStudent       = models.Student{ID: "stu-cs", ApplicationID: "APP-CS-1", FullName: "Ada Obi", Department: "Computer Science"}
	physicsStudent  = models.Student{ID: "stu-phy", ApplicationID: "APP-PHY-1", FullName: "Bayo Ade", Department: "Physics"}
	principalByRole = map[models.Role]models.Principal{
		models.RoleDeputyRegistrar: registrarStaff,
		models.RoleSchoolOfficer:   csOfficer,
		models.RoleDepartmentHead:  csHOD,
		models.RoleStudentSupport:  supportStaff,
		models.RoleFinance:         financeStaff,
		models.RoleLibrary:         libraryStaff,
		models.RoleHealth:          healthStaff,
		models.RoleLegal:           legalStaff,
	}
)

func studentPrincipal(s models.Student) models.Principal {
	return models.Principal{ID: s.ID, Role: models.PrincipalStudent, Department: s.Department, ApplicationID: s.ApplicationID}
}

// engineHarness wires an ApprovalEngine over the in-memory stores.
type engineHarness struct {
	students    *memStudents
	forms       *memForms
	documents   *memDocuments
	completions *memCompletions
	notifier    *recordingNotifier
	audit       *recordingAudit
	clearance   *ClearanceService
	engine      *ApprovalEngine
}

func newEngineHarness(students ...models.Student) *engineHarness {
	if len(students) == 0 {
		students = []models.Student{csStudent, physicsStudent}
	}
	h := &engineHarness{
		students:    newMemStudents(students...),
		documents:   newMemDocuments(),
		completions: newMemCompletions(),
		notifier:    &recordingNotifier{},
		audit:       &recordingAudit{},
	}
	h.forms = newMemForms(h.students)
	h.clearance = NewClearanceService(ClearanceServiceDeps{
		Students:    h.students,
		Forms:       h.forms,
		Documents:   h.documents,
		Completions: h.completions,
		Notifier:    h.notifier,
		Audit:       h.audit,
	})
	h.engine = NewApprovalEngine(ApprovalEngineDeps{
		Forms:      h.forms,
		Students:   h.students,
		Notifier:   h.notifier,
		Audit:      h.audit,
		Completion: h.clearance,
	})
	return h
}

// approveNewClearance submits and fully approves the gate form for s.
func (h *engineHarness) approveNewClearance(s models.Student) (*models.Form, error) {
	ctx := context.Background()
	res, err := h.engine.Submit(ctx, s.ID, models.FormNewClearance, payload(models.FormNewClearance))
	if err != nil {
		return nil, err
	}
	if _, err := h.engine.Approve(ctx, registrarStaff, res.Form.ID, models.FormNewClearance, dto.ApproveRequest{Slot: models.SlotDeputyRegistrar}); err != nil {
		return nil, err
	}
	officer := models.Principal{ID: "officer-" + s.ID, Role: models.PrincipalStaff, Department: models.DepartmentSchoolOfficer, ManagedDepartments: []string{s.Department}}
	out, err := h.engine.Approve(ctx, officer, res.Form.ID, models.FormNewClearance, dto.ApproveRequest{Slot: models.SlotSchoolOfficer})
	if err != nil {
		return nil, err
	}
	return out.Form, nil
}

// approveAll signs every open slot of form with the matching principal.
func (h *engineHarness) approveAll(form *models.Form) (*models.Form, error) {
	desc, _ := models.LookupForm(form.Kind)
	current := form
	for _, role := range desc.Slots {
		slot := string(role)
		if desc.Topology == models.TopologySingle {
			slot = models.SlotApproved
		}
		res, err := h.engine.Approve(context.Background(), principalByRole[role], current.ID, current.Kind, dto.ApproveRequest{Slot: slot})
		if err != nil {
			return nil, err
		}
		current = res.Form
	}
	return current, nil
}

// memCache is a JSON round-tripping cache repository.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
	err     error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
		c.deleted = append(c.deleted, k)
	}
	return c.err
}

func (c *memCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.deleted = append(c.deleted, pattern)
	return c.err
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}
