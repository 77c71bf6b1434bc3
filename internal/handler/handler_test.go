package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"quitescan/internal/attendance"
	"quitescan/internal/auth"
	"quitescan/internal/config"
	"quitescan/internal/queue"
	"quitescan/internal/roster"
)

// rosterStore is an in-memory roster.Store for route tests.
type rosterStore struct {
	mu          sync.Mutex
	departments map[string]roster.Department
	students    map[string]roster.Student
	nextID      int
}

func newRosterStore() *rosterStore {
	return &rosterStore{
		departments: map[string]roster.Department{},
		students:    map[string]roster.Student{},
	}
}

func (f *rosterStore) id() string {
	f.nextID++
	return "row-" + strconv.Itoa(f.nextID)
}

func (f *rosterStore) InsertDepartment(_ context.Context, d roster.Department) (roster.Department, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.departments {
		if existing.Name == d.Name || existing.Code == d.Code {
			return roster.Department{}, roster.ErrConflict
		}
	}
	if d.ID == "" {
		d.ID = f.id()
	}
	f.departments[d.ID] = d
	return d, nil
}

func (f *rosterStore) UpdateDepartment(_ context.Context, d roster.Department) (roster.Department, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.departments[d.ID]; !ok {
		return roster.Department{}, roster.ErrNotFound
	}
	f.departments[d.ID] = d
	return d, nil
}

func (f *rosterStore) GetDepartment(_ context.Context, id string) (roster.Department, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.departments[id]
	if !ok {
		return roster.Department{}, roster.ErrNotFound
	}
	return d, nil
}

func (f *rosterStore) ListDepartments(_ context.Context) ([]roster.Department, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []roster.Department
	for _, d := range f.departments {
		res = append(res, d)
	}
	return res, nil
}

func (f *rosterStore) ActiveDepartments(ctx context.Context) ([]roster.Department, error) {
	all, _ := f.ListDepartments(ctx)
	var res []roster.Department
	for _, d := range all {
		if d.IsActive {
			res = append(res, d)
		}
	}
	return res, nil
}

func (f *rosterStore) InsertStudent(_ context.Context, s roster.Student) (roster.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.students {
		if existing.StudentID == s.StudentID || strings.EqualFold(existing.Email, s.Email) {
			return roster.Student{}, roster.ErrConflict
		}
	}
	if s.ID == "" {
		s.ID = f.id()
	}
	f.students[s.ID] = s
	return s, nil
}

func (f *rosterStore) GetStudent(_ context.Context, id string) (roster.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	return s, nil
}

func (f *rosterStore) StudentIDTaken(_ context.Context, studentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.students {
		if s.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *rosterStore) EmailTaken(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.students {
		if strings.EqualFold(s.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *rosterStore) PendingStudents(_ context.Context) ([]roster.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []roster.Student
	for _, s := range f.students {
		if s.RegistrationStatus == roster.RegistrationPending {
			res = append(res, s)
		}
	}
	return res, nil
}

func (f *rosterStore) ListStudents(_ context.Context, limit, offset int) ([]roster.Student, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []roster.Student
	for _, s := range f.students {
		res = append(res, s)
	}
	return res, len(res), nil
}

func (f *rosterStore) ActiveStudents(_ context.Context, limit, offset int) ([]roster.Student, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []roster.Student
	for _, s := range f.students {
		if s.Status == roster.StatusActive {
			res = append(res, s)
		}
	}
	return res, len(res), nil
}

func (f *rosterStore) ApproveStudent(_ context.Context, id, approver string, at time.Time) (roster.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	if s.RegistrationStatus != roster.RegistrationPending {
		return roster.Student{}, roster.ErrNotPending
	}
	s.RegistrationStatus = roster.RegistrationApproved
	s.ApprovedBy = &approver
	s.ApprovedAt = &at
	f.students[id] = s
	return s, nil
}

func (f *rosterStore) RejectStudent(_ context.Context, id, reason string) (roster.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	if s.RegistrationStatus != roster.RegistrationPending {
		return roster.Student{}, roster.ErrNotPending
	}
	s.RegistrationStatus = roster.RegistrationRejected
	s.RejectionReason = reason
	f.students[id] = s
	return s, nil
}

func (f *rosterStore) SetStudentStatus(_ context.Context, id, status string) (roster.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	s.Status = status
	f.students[id] = s
	return s, nil
}

func (f *rosterStore) CountActiveStudents(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.students {
		if s.Status == roster.StatusActive {
			n++
		}
	}
	return n, nil
}

// scanStore backs the scan processor with the same conditional append
// semantics the SQL layer has.
type scanStore struct {
	roster *rosterStore
	mu     sync.Mutex
	logs   map[string][]attendance.Entry
}

func newScanStore(r *rosterStore) *scanStore {
	return &scanStore{roster: r, logs: map[string][]attendance.Entry{}}
}

func (f *scanStore) FindActiveByToken(_ context.Context, token string) (roster.Student, error) {
	f.roster.mu.Lock()
	defer f.roster.mu.Unlock()
	for _, s := range f.roster.students {
		if s.QRToken == token && s.Status == roster.StatusActive {
			return s, nil
		}
	}
	return roster.Student{}, roster.ErrNotFound
}

func (f *scanStore) LatestAction(_ context.Context, studentPK string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.logs[studentPK]
	if len(rows) == 0 {
		return "", nil
	}
	return rows[len(rows)-1].Action, nil
}

func (f *scanStore) AppendLog(_ context.Context, e attendance.Entry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	latest := attendance.ActionOut
	if rows := f.logs[e.StudentPK]; len(rows) > 0 {
		latest = rows[len(rows)-1].Action
	}
	if latest == e.Action {
		return false, nil
	}
	f.logs[e.StudentPK] = append(f.logs[e.StudentPK], e)
	return true, nil
}

type fakeCreds struct {
	username, password string
}

func (f fakeCreds) Verify(_ context.Context, username, password string) error {
	if username != f.username || password != f.password {
		return auth.ErrBadCredentials
	}
	return nil
}

type testApp struct {
	engine *gin.Engine
	roster *rosterStore
	scans  *scanStore
	queue  *queue.InMemory
	cfg    config.App
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.App{
		Env:               "test",
		AdminGatePassword: "gate-pass",
		SessionSigningKey: "test-signing-key",
		SessionIssuer:     "quitescan",
		SessionTTL:        time.Hour,
		PageSize:          10,
		BaseURL:           "http://localhost:8080",
	}
	rs := newRosterStore()
	ss := newScanStore(rs)
	q := queue.NewInMemory(16)

	tokenSeq := 0
	rosterSvc := roster.NewService(rs, cfg.PageSize, func() string {
		tokenSeq++
		return "tok-" + strconv.Itoa(tokenSeq)
	})
	scanSvc := attendance.NewService(ss, attendance.NewMemoryLocker())

	h := New(cfg, rosterSvc, scanSvc, nil, fakeCreds{username: "admin", password: "secret"}, q)
	engine := gin.New()
	h.Register(engine)

	return &testApp{engine: engine, roster: rs, scans: ss, queue: q, cfg: cfg}
}

func (a *testApp) do(t *testing.T, method, path string, body any, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: cookie})
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			return c.Value
		}
	}
	t.Fatal("no session cookie set")
	return ""
}

func (a *testApp) adminCookie(t *testing.T) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/admin-gate/", gin.H{"password": "gate-pass"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("gate: %d %s", w.Code, w.Body.String())
	}
	gate := sessionCookie(t, w)
	w = a.do(t, http.MethodPost, "/admin/login/", gin.H{"username": "admin", "password": "secret"}, gate)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	return sessionCookie(t, w)
}

func (a *testApp) seedDepartment(t *testing.T) roster.Department {
	t.Helper()
	d, err := a.roster.InsertDepartment(context.Background(), roster.Department{
		Name: "Computer Science", Code: "CS", IsActive: true,
	})
	if err != nil {
		t.Fatalf("seed department: %v", err)
	}
	return d
}

func TestGateFlow(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/admin-gate/", gin.H{"password": "wrong"}, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("wrong gate password: got %d, want 403", w.Code)
	}
	if msg := decode(t, w)["error"]; msg != "Incorrect password" {
		t.Errorf("gate error: got %v", msg)
	}

	w = app.do(t, http.MethodPost, "/admin-gate/", gin.H{"password": "gate-pass"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("gate: got %d, want 200", w.Code)
	}
	gate := sessionCookie(t, w)

	w = app.do(t, http.MethodGet, "/admin-gate/", nil, gate)
	if got := decode(t, w)["gate_passed"]; got != true {
		t.Errorf("gate_passed: got %v, want true", got)
	}

	// Login is refused without the gate and with bad credentials.
	w = app.do(t, http.MethodPost, "/admin/login/", gin.H{"username": "admin", "password": "secret"}, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("login without gate: got %d, want 403", w.Code)
	}
	w = app.do(t, http.MethodPost, "/admin/login/", gin.H{"username": "admin", "password": "nope"}, gate)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad credentials: got %d, want 401", w.Code)
	}

	w = app.do(t, http.MethodPost, "/admin/login/", gin.H{"username": "admin", "password": "secret"}, gate)
	if w.Code != http.StatusOK {
		t.Fatalf("login: got %d, want 200", w.Code)
	}
	admin := sessionCookie(t, w)

	// A gate-only session cannot reach admin routes; the admin session can.
	w = app.do(t, http.MethodGet, "/admin/pending-registrations/", nil, gate)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("admin route with gate-only session: got %d, want 401", w.Code)
	}
	w = app.do(t, http.MethodGet, "/admin/pending-registrations/", nil, admin)
	if w.Code != http.StatusOK {
		t.Errorf("admin route: got %d, want 200 (%s)", w.Code, w.Body.String())
	}
}

func TestRegistrationEndpoint(t *testing.T) {
	app := newTestApp(t)
	dept := app.seedDepartment(t)

	w := app.do(t, http.MethodPost, "/student/register/", gin.H{
		"student_id":    "S300",
		"first_name":    "Alan",
		"last_name":     "Turing",
		"email":         "s300@x.com",
		"department_id": dept.ID,
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register: got %d, want 201 (%s)", w.Code, w.Body.String())
	}
	body := decode(t, w)
	student, _ := body["student"].(map[string]any)
	if student["registration_status"] != "pending" {
		t.Errorf("registration_status: got %v, want pending", student["registration_status"])
	}
	if student["qr_token"] == "" || student["qr_token"] == nil {
		t.Error("expected qr_token in response")
	}

	// The image render job lands on the queue.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := app.queue.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case msg := <-msgs:
		if msg.Type != queue.TypeQRImage {
			t.Errorf("queued job type: got %q", msg.Type)
		}
		if string(msg.Body) != student["id"] {
			t.Errorf("queued job body: got %q, want %v", msg.Body, student["id"])
		}
	case <-ctx.Done():
		t.Fatal("no QR render job queued")
	}

	// Duplicate registration reports field errors.
	w = app.do(t, http.MethodPost, "/student/register/", gin.H{
		"student_id":    "S300",
		"first_name":    "Alan",
		"last_name":     "Turing",
		"email":         "s300@x.com",
		"department_id": dept.ID,
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register: got %d, want 400", w.Code)
	}
	if _, ok := decode(t, w)["errors"]; !ok {
		t.Errorf("expected field errors, got %s", w.Body.String())
	}

	// Binding failures are rejected before validation.
	w = app.do(t, http.MethodPost, "/student/register/", gin.H{"first_name": "NoID"}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("incomplete register: got %d, want 400", w.Code)
	}
}

func TestApproveEndpoint(t *testing.T) {
	app := newTestApp(t)
	dept := app.seedDepartment(t)
	admin := app.adminCookie(t)

	w := app.do(t, http.MethodPost, "/student/register/", gin.H{
		"student_id":    "S400",
		"first_name":    "Edsger",
		"last_name":     "Dijkstra",
		"email":         "s400@x.com",
		"department_id": dept.ID,
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	student, _ := decode(t, w)["student"].(map[string]any)
	id, _ := student["id"].(string)

	w = app.do(t, http.MethodPost, "/admin/approve-student/"+id+"/",
		gin.H{"registration_status": "approved"}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: got %d (%s)", w.Code, w.Body.String())
	}
	approved, _ := decode(t, w)["student"].(map[string]any)
	if approved["registration_status"] != "approved" {
		t.Errorf("registration_status: got %v", approved["registration_status"])
	}
	if approved["approved_by"] != "admin" {
		t.Errorf("approved_by: got %v, want admin", approved["approved_by"])
	}

	// Deciding twice is a conflict.
	w = app.do(t, http.MethodPost, "/admin/approve-student/"+id+"/",
		gin.H{"registration_status": "approved"}, admin)
	if w.Code != http.StatusConflict {
		t.Errorf("second approve: got %d, want 409", w.Code)
	}

	// Unknown student is a 404.
	w = app.do(t, http.MethodPost, "/admin/approve-student/missing/",
		gin.H{"registration_status": "approved"}, admin)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown student: got %d, want 404", w.Code)
	}
}

func TestProcessScanEndpoint(t *testing.T) {
	app := newTestApp(t)
	dept := app.seedDepartment(t)
	deptID := dept.ID
	if _, err := app.roster.InsertStudent(context.Background(), roster.Student{
		ID:                 "pk-scan",
		StudentID:          "S500",
		FirstName:          "Barbara",
		LastName:           "Liskov",
		Email:              "s500@x.com",
		DepartmentID:       &deptID,
		QRToken:            "tok-barbara",
		Status:             roster.StatusActive,
		RegistrationStatus: roster.RegistrationApproved,
	}); err != nil {
		t.Fatalf("seed student: %v", err)
	}

	w := app.do(t, http.MethodPost, "/student/process-scan/", gin.H{"qr_code": "tok-barbara"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("scan: got %d, want 200", w.Code)
	}
	body := decode(t, w)
	if body["success"] != true {
		t.Fatalf("scan failed: %s", w.Body.String())
	}
	if body["action"] != attendance.ActionIn {
		t.Errorf("first action: got %v, want IN", body["action"])
	}
	if body["message"] != "Checked in successfully, Barbara!" {
		t.Errorf("message: got %v", body["message"])
	}
	if body["student_name"] != "Barbara Liskov" {
		t.Errorf("student_name: got %v", body["student_name"])
	}
	if ts, _ := body["timestamp"].(string); ts != "" {
		if _, err := time.Parse("2006-01-02 15:04:05", ts); err != nil {
			t.Errorf("timestamp format: %v", err)
		}
	} else {
		t.Error("missing timestamp")
	}

	w = app.do(t, http.MethodPost, "/student/process-scan/", gin.H{"qr_code": "tok-barbara"}, "")
	if got := decode(t, w)["action"]; got != attendance.ActionOut {
		t.Errorf("second action: got %v, want OUT", got)
	}

	// Unknown and missing tokens still answer 200 with a failure payload.
	w = app.do(t, http.MethodPost, "/student/process-scan/", gin.H{"qr_code": "bogus"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("invalid scan: got %d, want 200", w.Code)
	}
	body = decode(t, w)
	if body["success"] != false || body["message"] != "Invalid QR code" {
		t.Errorf("invalid scan payload: %s", w.Body.String())
	}

	w = app.do(t, http.MethodPost, "/student/process-scan/", gin.H{}, "")
	body = decode(t, w)
	if w.Code != http.StatusOK || body["message"] != "QR code is required" {
		t.Errorf("empty scan payload: %d %s", w.Code, w.Body.String())
	}
}

func TestDepartmentEndpoints(t *testing.T) {
	app := newTestApp(t)
	admin := app.adminCookie(t)

	w := app.do(t, http.MethodPost, "/admin/manage-departments/",
		gin.H{"name": "Physics", "code": "PHY", "is_active": true}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create department: got %d (%s)", w.Code, w.Body.String())
	}
	dep, _ := decode(t, w)["department"].(map[string]any)
	id, _ := dep["id"].(string)

	w = app.do(t, http.MethodPost, "/admin/manage-departments/",
		gin.H{"name": "Physics", "code": "PH2", "is_active": true}, admin)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate department: got %d, want 409", w.Code)
	}

	w = app.do(t, http.MethodPost, "/admin/edit-department/"+id+"/",
		gin.H{"name": "Applied Physics", "code": "PHY", "is_active": false}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("edit department: got %d (%s)", w.Code, w.Body.String())
	}
	edited, _ := decode(t, w)["department"].(map[string]any)
	if edited["name"] != "Applied Physics" || edited["is_active"] != false {
		t.Errorf("edited department: %v", edited)
	}

	// An inactive department no longer appears on the registration form.
	w = app.do(t, http.MethodGet, "/student/register/", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("registration form: got %d", w.Code)
	}
	deps, _ := decode(t, w)["departments"].([]any)
	if len(deps) != 0 {
		t.Errorf("active departments: got %d, want 0", len(deps))
	}
}

func TestLogoutClearsSession(t *testing.T) {
	app := newTestApp(t)
	admin := app.adminCookie(t)

	w := app.do(t, http.MethodPost, "/logout/", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: got %d", w.Code)
	}
	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie not cleared")
	}
}
