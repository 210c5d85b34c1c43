package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gilkh/livret/internal/auth"
	"github.com/gilkh/livret/internal/database"
	"github.com/gilkh/livret/internal/export"
	"github.com/gilkh/livret/internal/middleware"
	"github.com/gilkh/livret/internal/pollers"
	"github.com/gilkh/livret/internal/rendering"
	"github.com/gilkh/livret/internal/validation"
)

type stubBackend struct {
	readyErr error
}

func (s *stubBackend) Name() string { return rendering.BackendVector }

func (s *stubBackend) Render(ctx context.Context, job *rendering.RenderJob) ([]byte, error) {
	return []byte("%PDF-1.4 " + job.AssignmentID), nil
}

func (s *stubBackend) Ready(ctx context.Context) error { return s.readyErr }
func (s *stubBackend) Close() error                    { return nil }

type testEnv struct {
	h          *Handlers
	router     *gin.Engine
	tokens     *auth.Tokens
	backend    *stubBackend
	bearer     string
	student    *database.Student
	orphan     *database.Student
	signer     *database.User
	template   *database.Template
	assignment *database.TemplateAssignment
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenMemory("handlers_" + name)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	students := database.NewStudentService(db)
	class := &database.Class{Name: "GS B", Level: "GS"}
	if err := students.CreateClass(class); err != nil {
		t.Fatal(err)
	}
	student := &database.Student{FirstName: "Lina", LastName: "Haddad", ClassID: &class.ID, DateOfBirth: time.Date(2019, 5, 2, 0, 0, 0, 0, time.UTC)}
	orphan := &database.Student{FirstName: "Karim", LastName: "Saad"}
	for _, s := range []*database.Student{student, orphan} {
		if err := students.CreateStudent(s); err != nil {
			t.Fatal(err)
		}
	}
	signer := &database.User{DisplayName: "Mme Khoury", Email: "khoury@example.com", SignatureURL: "data:image/png;base64,AAAA"}
	if err := students.CreateUser(signer); err != nil {
		t.Fatal(err)
	}

	templates := database.NewTemplateService(db)
	tpl, err := templates.Create(database.TemplateInput{
		Name:  "Livret GS",
		Pages: json.RawMessage(`[{"blocks":[{"type":"text","props":{"x":40,"y":40,"text":"Carnet de {student.firstName}"}}]}]`),
	})
	if err != nil {
		t.Fatal(err)
	}
	assign := database.NewAssignmentService(db)
	a, err := assign.Create(student.ID, tpl.ID)
	if err != nil {
		t.Fatal(err)
	}

	backend := &stubBackend{}
	svc := export.NewService(database.NewStore(db), backend, export.Options{})
	tokens := auth.NewTokens("test-secret", time.Minute)
	bearer, err := tokens.Issue(signer.ID, "SUBADMIN", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	h := &Handlers{
		Export:     svc,
		Batch:      export.NewBatchWriter(svc, 2),
		HTML:       rendering.NewHTMLRenderer(rendering.HTMLOptions{}),
		Monitor:    rendering.NewMonitoringService(backend, nil, &rendering.RenderMetrics{}),
		Tokens:     tokens,
		Gate:       auth.NewPasswordGate(middleware.NewKeyedLimiter(3)),
		Validator:  validation.NewTemplateValidator([]string{"PS", "MS", "GS"}),
		Templates:  templates,
		Assign:     assign,
		Signatures: database.NewSignatureService(db, nil),
		Promotions: database.NewPromotionService(db),
	}
	router := gin.New()
	h.Register(router)

	return &testEnv{
		h: h, router: router, tokens: tokens, backend: backend, bearer: bearer,
		student: student, orphan: orphan, signer: signer, template: tpl, assignment: a,
	}
}

func (e *testEnv) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %q", w.Body.String())
	}
	return body.Error
}

func TestExportStudentPDF(t *testing.T) {
	env := setup(t)

	tests := []struct {
		name     string
		path     string
		want     int
		wantCode string
	}{
		{"ok", fmt.Sprintf("/api/export/students/%s/pdf?templateId=%s", env.student.ID, env.template.ID), http.StatusOK, ""},
		{"missing template id", fmt.Sprintf("/api/export/students/%s/pdf", env.student.ID), http.StatusBadRequest, "missing_template_id"},
		{"unknown student", fmt.Sprintf("/api/export/students/nobody/pdf?templateId=%s", env.template.ID), http.StatusNotFound, "student_not_found"},
		{"unknown template", fmt.Sprintf("/api/export/students/%s/pdf?templateId=nothing", env.student.ID), http.StatusNotFound, "template_not_found"},
		{"no assignment", fmt.Sprintf("/api/export/students/%s/pdf?templateId=%s", env.orphan.ID, env.template.ID), http.StatusNotFound, "assignment_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, tt.path, "", true)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.wantCode != "" {
				if code := errorCode(t, w); code != tt.wantCode {
					t.Errorf("error = %q, want %q", code, tt.wantCode)
				}
				return
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
				t.Errorf("Content-Type = %q", ct)
			}
			if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="carnet-Haddad-Lina.pdf"` {
				t.Errorf("Content-Disposition = %q", cd)
			}
			if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
				t.Errorf("body = %q", w.Body.String())
			}
		})
	}
}

func TestExportPasswordAccess(t *testing.T) {
	env := setup(t)
	path := fmt.Sprintf("/api/export/assignments/%s/pdf", env.assignment.ID)

	if w := env.do(http.MethodGet, path, "", false); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", w.Code)
	}

	w := env.do(http.MethodPut, "/api/templates/"+env.template.ID+"/export-password", `{"password":"carnet2025"}`, true)
	if w.Code != http.StatusNoContent {
		t.Fatalf("set password status = %d (%s)", w.Code, w.Body.String())
	}

	tests := []struct {
		name     string
		password string
		want     int
		wantCode string
	}{
		{"right password", "carnet2025", http.StatusOK, ""},
		{"wrong password", "nope", http.StatusUnauthorized, "invalid_password"},
		{"right again", "carnet2025", http.StatusOK, ""},
		{"rate limited", "carnet2025", http.StatusTooManyRequests, "too_many_attempts"},
	}
	for _, tt := range tests {
		w := env.do(http.MethodGet, path+"?password="+tt.password, "", false)
		if w.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d (%s)", tt.name, w.Code, tt.want, w.Body.String())
		}
		if tt.wantCode != "" {
			if code := errorCode(t, w); code != tt.wantCode {
				t.Errorf("%s: error = %q, want %q", tt.name, code, tt.wantCode)
			}
		}
	}
}

func TestExportBatch(t *testing.T) {
	env := setup(t)
	body := fmt.Sprintf(`{"assignmentIds":[%q,"missing"]}`, env.assignment.ID)

	if w := env.do(http.MethodPost, "/api/export/batch", body, false); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous batch status = %d, want 401", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/export/batch", `{"assignmentIds":[]}`, true); w.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want 400", w.Code)
	}

	w := env.do(http.MethodPost, "/api/export/batch", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"carnet-Haddad-Lina.pdf", "errors/missing.txt", "info.txt"} {
		if !names[want] {
			t.Errorf("zip is missing %s (has %v)", want, names)
		}
	}

	env.backend.readyErr = errors.New("chrome did not start")
	w = env.do(http.MethodPost, "/api/export/batch", body, true)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("backend down status = %d, want 500", w.Code)
	}
	if code := errorCode(t, w); code != "backend_unavailable" {
		t.Errorf("error = %q", code)
	}
}

func TestRenderPage(t *testing.T) {
	env := setup(t)
	token, err := env.tokens.RenderToken(env.assignment.ID)
	if err != nil {
		t.Fatal(err)
	}
	other, _ := env.tokens.RenderToken("someone-else")

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"token for another assignment", other, http.StatusUnauthorized},
		{"api token", env.bearer, http.StatusUnauthorized},
		{"valid", token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, "/render/assignments/"+env.assignment.ID+"?token="+tt.token, "", false)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			body := w.Body.String()
			if !strings.Contains(body, `class="page"`) || !strings.Contains(body, "Carnet de Lina") {
				t.Errorf("unexpected page: %s", body)
			}
		})
	}
}

func TestTemplateRoutes(t *testing.T) {
	env := setup(t)

	w := env.do(http.MethodPost, "/api/templates/validate", `[{"blocks":[{"type":"hologram","props":{}}]}]`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d", w.Code)
	}
	var result validation.ValidationResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Valid || len(result.Errors) == 0 {
		t.Errorf("validation result = %+v", result)
	}

	w = env.do(http.MethodPost, "/api/templates", `{"name":"Bad","pages":[{"blocks":[{"type":"hologram","props":{}}]}]}`, true)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_template" {
		t.Errorf("invalid create status = %d body = %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodPost, "/api/templates", `{"name":"Livret MS","pages":[{"blocks":[]}]}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	var created database.Template
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	w = env.do(http.MethodPut, "/api/templates/"+created.ID, `{"name":"Livret MS","pages":[{"title":"Page 1","blocks":[]}]}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d (%s)", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, "/api/templates/"+created.ID, "", true)
	var fetched database.Template
	if err := json.Unmarshal(w.Body.Bytes(), &fetched); err != nil {
		t.Fatal(err)
	}
	if fetched.CurrentVersion != 2 || len(fetched.Versions) != 1 {
		t.Errorf("version = %d, history = %d", fetched.CurrentVersion, len(fetched.Versions))
	}

	if w := env.do(http.MethodGet, "/api/templates/nothing", "", true); w.Code != http.StatusNotFound {
		t.Errorf("unknown template status = %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/templates", "", false); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list status = %d", w.Code)
	}
}

func TestSignatureRoutes(t *testing.T) {
	env := setup(t)
	path := "/api/assignments/" + env.assignment.ID + "/signatures"

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		want     int
		wantCode string
	}{
		{"sign as caller", http.MethodPost, path, `{"level":"GS"}`, http.StatusCreated, ""},
		{"sign twice", http.MethodPost, path, `{}`, http.StatusConflict, "already_signed"},
		{"bad type", http.MethodPost, path, `{"type":"annual"}`, http.StatusBadRequest, "invalid_request"},
		{"end of year", http.MethodPost, path, `{"type":"end_of_year"}`, http.StatusCreated, ""},
		{"unsign", http.MethodDelete, path + "/standard", "", http.StatusNoContent, ""},
		{"unsign again", http.MethodDelete, path + "/standard", "", http.StatusNotFound, "not_signed"},
		{"unknown assignment", http.MethodPost, "/api/assignments/nope/signatures", `{}`, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		w := env.do(tt.method, tt.path, tt.body, true)
		if w.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d (%s)", tt.name, w.Code, tt.want, w.Body.String())
		}
		if tt.wantCode != "" {
			if code := errorCode(t, w); code != tt.wantCode {
				t.Errorf("%s: error = %q, want %q", tt.name, code, tt.wantCode)
			}
		}
	}

	w := env.do(http.MethodGet, path, "", true)
	var list struct {
		Signatures []database.TemplateSignature `json:"signatures"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Signatures) != 1 || list.Signatures[0].Type != database.SignatureEndOfYear {
		t.Errorf("signatures = %+v", list.Signatures)
	}
}

func TestAssignmentRoutes(t *testing.T) {
	env := setup(t)

	w := env.do(http.MethodPatch, "/api/assignments/"+env.assignment.ID+"/data", `{"dropdown_1":"Acquis"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d (%s)", w.Code, w.Body.String())
	}
	w = env.do(http.MethodPatch, "/api/assignments/"+env.assignment.ID+"/data", `{"signatures":[]}`, true)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_payload" {
		t.Errorf("signatures patch status = %d body = %s", w.Code, w.Body.String())
	}
	w = env.do(http.MethodPatch, "/api/assignments/"+env.assignment.ID+"/completion", `{"isCompleted":true}`, true)
	if w.Code != http.StatusNoContent {
		t.Errorf("completion status = %d", w.Code)
	}

	w = env.do(http.MethodPost, "/api/assignments", fmt.Sprintf(`{"studentId":%q,"templateId":%q}`, env.orphan.ID, env.template.ID), true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}

	w = env.do(http.MethodPost, "/api/students/"+env.student.ID+"/promotions", `{"toLevel":"CP","year":"2025/2026"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("promote status = %d (%s)", w.Code, w.Body.String())
	}
	var record database.PromotionRecord
	if err := json.Unmarshal(w.Body.Bytes(), &record); err != nil {
		t.Fatal(err)
	}
	if record.From != "GS" || record.To != "CP" {
		t.Errorf("promotion = %+v", record)
	}

	w = env.do(http.MethodGet, "/api/students/"+env.student.ID+"/assignments", "", true)
	var list struct {
		Assignments []database.TemplateAssignment `json:"assignments"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Assignments) != 1 || !list.Assignments[0].IsCompleted {
		t.Errorf("assignments = %+v", list.Assignments)
	}
}

func TestHealthAndVersion(t *testing.T) {
	env := setup(t)
	if w := env.do(http.MethodGet, "/api/version", "", false); w.Code != http.StatusOK {
		t.Errorf("version status = %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/health", "", false); w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
	env.backend.readyErr = errors.New("down")
	if w := env.do(http.MethodGet, "/api/health", "", false); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", w.Code)
	}
}

func TestHealthReportsFailingJobs(t *testing.T) {
	env := setup(t)

	job := pollers.NewJob(pollers.DefaultConfig("dependency_check", time.Hour), func(context.Context) error {
		return errors.New("redis: connection refused")
	})
	manager := pollers.NewManager()
	manager.Register(job)
	env.h.Jobs = manager

	var body struct {
		Status string           `json:"status"`
		Jobs   []pollers.Status `json:"jobs"`
	}
	w := env.do(http.MethodGet, "/api/health", "", false)
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || body.Status != "healthy" || len(body.Jobs) != 1 || body.Jobs[0].Running {
		t.Fatalf("before start: %d %s", w.Code, w.Body.String())
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer manager.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for job.Status().Rounds == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	w = env.do(http.MethodGet, "/api/health", "", false)
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || body.Status != "degraded" {
		t.Errorf("health = %d %s, want 200 degraded", w.Code, w.Body.String())
	}
	if len(body.Jobs) != 1 || !body.Jobs[0].Failing() || !strings.Contains(body.Jobs[0].LastError, "connection refused") {
		t.Errorf("jobs = %+v", body.Jobs)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("wrapped: %w", export.ErrTemplateNotFound), http.StatusNotFound, "template_not_found"},
		{export.ErrMissingTemplateID, http.StatusBadRequest, "missing_template_id"},
		{auth.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
		{fmt.Errorf("render: %w", rendering.ErrEmptyDocument), http.StatusInternalServerError, "empty_document"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		status, code := errorStatus(tt.err)
		if status != tt.wantStatus || code != tt.wantCode {
			t.Errorf("errorStatus(%v) = %d %q, want %d %q", tt.err, status, code, tt.wantStatus, tt.wantCode)
		}
	}
}

func TestExportRateLimit(t *testing.T) {
	env := setup(t)
	env.h.ExportLimiter = middleware.NewKeyedLimiter(1)
	env.router = gin.New()
	env.h.Register(env.router)

	path := "/api/export/assignments/" + env.assignment.ID + "/pdf"
	if w := env.do(http.MethodGet, path, "", true); w.Code != http.StatusOK {
		t.Fatalf("first export status = %d", w.Code)
	}
	if w := env.do(http.MethodGet, path, "", true); w.Code != http.StatusTooManyRequests {
		t.Errorf("second export status = %d, want 429", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/version", "", false); w.Code != http.StatusOK {
		t.Errorf("version status = %d, limiter leaked outside exports", w.Code)
	}
}
