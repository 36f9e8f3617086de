package app

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/memstore"
	"github.com/Spok95/student-debt-ledger/internal/models"
	"github.com/Spok95/student-debt-ledger/internal/sisimport"
)

const secret = "test-secret"

type harness struct {
	t    *testing.T
	srv  *httptest.Server
	auth *Authenticator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc := ledger.New(memstore.New())
	auth := NewAuthenticator(secret)
	api := NewAPI(svc, sisimport.NewImporter(svc, nil), auth, nil, nil)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, auth: auth}
}

func (h *harness) token(p models.Principal) string {
	h.t.Helper()
	tok, err := h.auth.Issue(p, time.Hour)
	if err != nil {
		h.t.Fatal(err)
	}
	return tok
}

func (h *harness) do(method, path string, p *models.Principal, body any) *http.Response {
	h.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			h.t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		h.t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p != nil {
		req.Header.Set("Authorization", "Bearer "+h.token(*p))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatal(err)
	}
	h.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expect(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	if resp.StatusCode != status {
		var b bytes.Buffer
		_, _ = b.ReadFrom(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, status, b.String())
	}
}

var (
	admin     = models.Principal{UserID: 1, Role: models.RoleAdmin}
	finance   = models.Principal{UserID: 2, Role: models.RoleFinance}
	registrar = models.Principal{UserID: 3, Role: models.RoleRegistrar}
)

func TestAPI_PaymentWorkflow(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodPost, "/api/admin/students", &admin, map[string]any{
		"student_number": "S-1",
		"full_name":      "Meron Alemu",
		"department":     "Physics",
		"schedule": map[string]any{
			"semesters": 1, "start_year": 2024, "tuition_base_annual": "20000", "living_stipend": true,
		},
	})
	expect(t, resp, http.StatusCreated)
	st := decodeBody[models.Student](t, resp)
	id := st.ID
	me := models.Principal{UserID: 10, Role: models.RoleStudent, StudentID: &id}

	resp = h.do(http.MethodGet, "/api/debt/balance", &me, nil)
	expect(t, resp, http.StatusOK)
	stmt := decodeBody[ledger.Statement](t, resp)
	if !stmt.CurrentBalance.Equal(decimal.NewFromInt(17000)) || len(stmt.OpenComponents) != 3 {
		t.Fatalf("statement %+v", stmt)
	}

	resp = h.do(http.MethodPost, "/api/payments/requests", &me, map[string]any{
		"amount": "1500",
		"target": map[string]any{"semester": stmt.Components[0].Semester, "academic_year": stmt.Components[0].AcademicYear, "component_type": "TUITION"},
	})
	expect(t, resp, http.StatusForbidden)
	blocked := decodeBody[errorBody](t, resp)
	if blocked.Error != "policy_blocked" || blocked.Blocking != 1 {
		t.Fatalf("blocked %+v", blocked)
	}

	resp = h.do(http.MethodPost, "/api/payments/requests", &me, map[string]any{"amount": "15000"})
	expect(t, resp, http.StatusCreated)
	req := decodeBody[models.PaymentRequest](t, resp)
	if req.Status != models.Pending || req.StudentID != id {
		t.Fatalf("request %+v", req)
	}

	resp = h.do(http.MethodGet, "/api/finance/requests?status=pending", &finance, nil)
	expect(t, resp, http.StatusOK)
	queue := decodeBody[struct {
		Requests []models.PaymentRequest `json:"requests"`
	}](t, resp)
	if len(queue.Requests) != 1 {
		t.Fatalf("queue %+v", queue)
	}

	path := "/api/finance/requests/" + strconv.FormatInt(req.ID, 10) + "/verify"
	resp = h.do(http.MethodPost, path, &finance, nil)
	expect(t, resp, http.StatusOK)
	res := decodeBody[ledger.AllocationResult](t, resp)
	if !res.Balance.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("balance %s", res.Balance)
	}

	resp = h.do(http.MethodPost, path, &finance, nil)
	expect(t, resp, http.StatusConflict)
	if e := decodeBody[errorBody](t, resp); e.Error != "request_not_pending" {
		t.Fatalf("error %+v", e)
	}

	resp = h.do(http.MethodPost, "/api/registrar/issue", &registrar, map[string]any{"student_id": id})
	expect(t, resp, http.StatusForbidden)
	ob := decodeBody[errorBody](t, resp)
	if ob.Error != "outstanding_balance" || ob.Amount == nil || !ob.Amount.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("outstanding %+v", ob)
	}

	resp = h.do(http.MethodGet, "/api/payments/requests", &me, nil)
	expect(t, resp, http.StatusOK)

	resp = h.do(http.MethodGet, "/api/admin/debt-report", &admin, nil)
	expect(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("content type %q", ct)
	}
}

func TestAPI_Auth(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodGet, "/api/admin/stats", nil, nil)
	expect(t, resp, http.StatusUnauthorized)

	sid := int64(5)
	student := models.Principal{UserID: 9, Role: models.RoleStudent, StudentID: &sid}
	resp = h.do(http.MethodGet, "/api/finance/requests", &student, nil)
	expect(t, resp, http.StatusForbidden)

	resp = h.do(http.MethodGet, "/api/admin/stats", &admin, nil)
	expect(t, resp, http.StatusOK)

	other := NewAuthenticator("another-secret")
	tok, err := other.Issue(admin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/api/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	bad, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = bad.Body.Close() }()
	expect(t, bad, http.StatusUnauthorized)
}

func TestAuthenticator_Parse(t *testing.T) {
	a := NewAuthenticator(secret)
	sid := int64(7)
	tok, err := a.Issue(models.Principal{UserID: 4, Role: models.RoleStudent, StudentID: &sid}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	p, err := a.Parse(tok)
	if err != nil || p.UserID != 4 || p.StudentID == nil || *p.StudentID != 7 {
		t.Fatalf("p=%+v err=%v", p, err)
	}

	expired, _ := a.Issue(admin, -time.Minute)
	if _, err := a.Parse(expired); err == nil {
		t.Fatal("expired token accepted")
	}

	noStudent, _ := a.Issue(models.Principal{UserID: 4, Role: models.RoleStudent}, time.Minute)
	if _, err := a.Parse(noStudent); err == nil {
		t.Fatal("student token without student_id accepted")
	}
}

func TestAPI_ImportDryRunAndCommit(t *testing.T) {
	h := newHarness(t)
	csv := "Student Number,Full Name,Department,Semesters,Start Year,Tuition Base\nS-9,Liya,Math,2,2024,18000\n"

	upload := func(dry string) *http.Response {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "students.csv")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(csv))
		_ = mw.WriteField("dry_run", dry)
		_ = mw.Close()
		req, _ := http.NewRequest(http.MethodPost, h.srv.URL+"/api/admin/sis-import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+h.token(admin))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := upload("true")
	expect(t, resp, http.StatusOK)
	prev := decodeBody[sisimport.Preview](t, resp)
	if prev.Summary.TotalStudents != 1 || len(prev.Rows) != 1 {
		t.Fatalf("preview %+v", prev)
	}
	stats := decodeBody[models.LedgerStats](t, expectOK(t, h.do(http.MethodGet, "/api/admin/stats", &admin, nil)))
	if !stats.OutstandingDebt.IsZero() {
		t.Fatal("dry run wrote to the ledger")
	}

	resp = upload("false")
	expect(t, resp, http.StatusCreated)
	batch := decodeBody[models.ImportBatch](t, resp)
	if batch.StudentCount != 1 {
		t.Fatalf("batch %+v", batch)
	}
	stats = decodeBody[models.LedgerStats](t, expectOK(t, h.do(http.MethodGet, "/api/admin/stats", &admin, nil)))
	if stats.OutstandingDebt.IsZero() {
		t.Fatal("commit did not reach the ledger")
	}
}

func expectOK(t *testing.T, resp *http.Response) *http.Response {
	t.Helper()
	expect(t, resp, http.StatusOK)
	return resp
}

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		ledger.ErrValidation:                   http.StatusBadRequest,
		ledger.ErrInsufficientComponentBalance: http.StatusBadRequest,
		ledger.ErrNotFound:                     http.StatusNotFound,
		ledger.ErrRequestNotPending:            http.StatusConflict,
		ledger.ErrConcurrencyConflict:          http.StatusConflict,
		ledger.ErrPolicyBlocked:                http.StatusForbidden,
		ledger.ErrForbidden:                    http.StatusForbidden,
		http.ErrBodyNotAllowed:                 http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusOf(ledger.KindOf(err)); got != want {
			t.Errorf("%v: got %d want %d", err, got, want)
		}
	}
}
