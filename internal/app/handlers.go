package app

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Spok95/student-debt-ledger/internal/export"
	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/models"
	"github.com/Spok95/student-debt-ledger/internal/sisimport"
)

// studentParam resolves whose ledger is addressed: ?student_id= or, for a
// student, their own record.
func studentParam(r *http.Request) (int64, error) {
	var own int64
	if p := principal(r); p.StudentID != nil {
		own = *p.StudentID
	}
	id, err := queryInt(r, "student_id", own)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("%w: student_id is required", ledger.ErrValidation)
	}
	return id, nil
}

func attachment(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}

// --- student ---

func (a *API) getStatement(w http.ResponseWriter, r *http.Request) {
	id, err := studentParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.svc.Statement(r.Context(), principal(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) getStatementXLSX(w http.ResponseWriter, r *http.Request) {
	id, err := studentParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.svc.Statement(r.Context(), principal(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	wb, err := export.Statement(st)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer func() { _ = wb.Close() }()
	attachment(w, export.BuildStatementFilename(st.Student.StudentNumber, st.Student.FullName))
	_ = wb.Write(w)
}

func (a *API) getComponents(w http.ResponseWriter, r *http.Request) {
	id, err := studentParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var typ *models.ComponentType
	if s := r.URL.Query().Get("type"); s != "" {
		t, err := models.ParseComponentType(s)
		if err != nil {
			a.fail(w, r, fmt.Errorf("%w: %v", ledger.ErrValidation, err))
			return
		}
		typ = &t
	}
	comps, err := a.svc.OpenComponents(r.Context(), principal(r), id, typ)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student_id": id, "components": comps})
}

func (a *API) postRequest(w http.ResponseWriter, r *http.Request) {
	var in ledger.SubmitInput
	if err := decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	p := principal(r)
	if in.StudentID == 0 && p.StudentID != nil {
		in.StudentID = *p.StudentID
	}
	req, err := a.svc.RequestPayment(r.Context(), p, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (a *API) getMyRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.svc.MyRequests(r.Context(), principal(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (a *API) getPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := studentParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	p := principal(r)
	if p.Role == models.RoleStudent && (p.StudentID == nil || *p.StudentID != id) {
		a.fail(w, r, fmt.Errorf("%w: students may only check their own ledger", ledger.ErrForbidden))
		return
	}
	typ, err := models.ParseComponentType(r.URL.Query().Get("type"))
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", ledger.ErrValidation, err))
		return
	}
	d, err := a.svc.CheckSubmission(r.Context(), id, typ)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) getClearance(w http.ResponseWriter, r *http.Request) {
	id, err := studentParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	letter, err := a.svc.LatestClearance(r.Context(), principal(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	eligible, err := a.svc.IsEligible(r.Context(), id)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student_id": id, "eligible": eligible, "letter": letter})
}

// --- finance ---

func (a *API) getQueue(w http.ResponseWriter, r *http.Request) {
	var status *models.RequestStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := models.ParseRequestStatus(strings.ToUpper(s))
		if err != nil {
			a.fail(w, r, fmt.Errorf("%w: %v", ledger.ErrValidation, err))
			return
		}
		status = &st
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	reqs, err := a.svc.ListRequests(r.Context(), principal(r), status, int(limit))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (a *API) postVerify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.svc.Verify(r.Context(), principal(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) postReject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decode(w, r, &body); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	req, err := a.svc.Reject(r.Context(), principal(r), id, body.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (a *API) postPayment(w http.ResponseWriter, r *http.Request) {
	var in ledger.PaymentInput
	if err := decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.svc.Allocate(r.Context(), principal(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// --- registrar ---

func (a *API) getEligible(w http.ResponseWriter, r *http.Request) {
	rows, err := a.svc.EligibleStudents(r.Context(), principal(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": rows})
}

func (a *API) getEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	bal, err := a.svc.Balance(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id":      id,
		"eligible":        bal.Sign() <= 0,
		"current_balance": bal,
	})
}

func (a *API) postIssue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StudentID int64  `json:"student_id"`
		Notes     string `json:"notes"`
	}
	if err := decode(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	letter, err := a.svc.IssueClearance(r.Context(), principal(r), body.StudentID, body.Notes)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, letter)
}

// --- admin ---

type studentBody struct {
	StudentNumber string                 `json:"student_number"`
	FullName      string                 `json:"full_name"`
	Email         string                 `json:"email"`
	Department    string                 `json:"department"`
	Batch         *int                   `json:"batch"`
	Schedule      *ledger.ScheduleParams `json:"schedule"`
	OtherFees     decimal.Decimal        `json:"other_fees"`
	OpeningDebt   *decimal.Decimal       `json:"opening_debt"`
}

func (b studentBody) enrollment() ledger.Enrollment {
	return ledger.Enrollment{
		Student: models.Student{
			StudentNumber:    strings.TrimSpace(b.StudentNumber),
			FullName:         strings.TrimSpace(b.FullName),
			Email:            strings.ToLower(strings.TrimSpace(b.Email)),
			Department:       strings.TrimSpace(b.Department),
			Batch:            b.Batch,
			EnrollmentStatus: models.Active,
		},
		Schedule:    b.Schedule,
		OtherFees:   b.OtherFees,
		OpeningDebt: b.OpeningDebt,
	}
}

func (a *API) postStudent(w http.ResponseWriter, r *http.Request) {
	var body studentBody
	if err := decode(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.svc.RegisterStudent(r.Context(), principal(r), body.enrollment())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (a *API) deleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.svc.DeleteStudent(r.Context(), principal(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) postSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var params ledger.ScheduleParams
	if err := decode(w, r, &params); err != nil {
		a.fail(w, r, err)
		return
	}
	comps, err := a.svc.Generate(r.Context(), principal(r), id, params)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student_id": id, "components": comps})
}

const maxUpload = 32 << 20

func (a *API) postImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		a.fail(w, r, fmt.Errorf("%w: bad upload: %v", ledger.ErrValidation, err))
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: file is required", ledger.ErrValidation))
		return
	}
	defer func() { _ = file.Close() }()

	dry, _ := strconv.ParseBool(r.FormValue("dry_run"))
	if dry {
		prev, err := a.importer.Preview(file, hdr.Filename)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, prev)
		return
	}

	batch, err := a.importer.Commit(r.Context(), principal(r), file, hdr.Filename, r.FormValue("notes"))
	var re *sisimport.RowsError
	if errors.As(err, &re) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   ledger.KindOf(err),
			"message": "file has invalid rows, nothing was imported",
			"rows":    re.Rows,
		})
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) getDebtReport(w http.ResponseWriter, r *http.Request) {
	rows, err := a.svc.DebtReport(r.Context(), principal(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	stats, err := a.svc.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	now := a.now()
	wb, err := export.DebtReport(rows, stats, now)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer func() { _ = wb.Close() }()
	attachment(w, export.BuildDebtReportFilename(now))
	_ = wb.Write(w)
}
