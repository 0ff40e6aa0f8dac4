package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/campus-kiosk/apptdesk/internal/appointment"
	"github.com/campus-kiosk/apptdesk/internal/config"
	"github.com/campus-kiosk/apptdesk/internal/store"
)

type nullNotifier struct{}

func (nullNotifier) Created(context.Context, *appointment.Appointment, *appointment.Professor) error {
	return nil
}
func (nullNotifier) Accepted(context.Context, *appointment.Appointment, *appointment.Professor) error {
	return nil
}
func (nullNotifier) Rejected(context.Context, *appointment.Appointment, *appointment.Professor) error {
	return nil
}
func (nullNotifier) AutoRejected(context.Context, *appointment.Appointment, *appointment.Professor) error {
	return nil
}
func (nullNotifier) RescheduleSuggested(context.Context, *appointment.Appointment, *appointment.Professor) error {
	return nil
}

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "apptdesk.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.AddProfessor(context.Background(), &appointment.Professor{
		ID:        "prof-1",
		FirstName: "Maria",
		LastName:  "Cruz",
		Title:     "Prof.",
		Email:     "cruz@example.edu",
	}); err != nil {
		t.Fatalf("AddProfessor() error = %v", err)
	}

	engine := appointment.NewEngine(st, nullNotifier{}, 48*time.Hour)
	cfg := &config.Config{}
	srv := NewServer(cfg, st, engine, nil)
	return srv, st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createViaAPI(t *testing.T, router http.Handler) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/appointment/create-appointment", map[string]string{
		"student_name":   "Juan Dela Cruz",
		"student_id":     "2021-101043",
		"student_email":  "juan@example.edu",
		"professor_uuid": "prof-1",
		"concern":        "Thesis consultation",
		"start_time":     "2025-06-01 10:00 AM",
		"end_time":       "2025-06-01 11:00 AM",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp["reference"]) != appointment.RefCodeLen {
		t.Fatalf("reference %q has length %d, want %d", resp["reference"], len(resp["reference"]), appointment.RefCodeLen)
	}
	if resp["status"] != string(appointment.StatusPending) {
		t.Fatalf("status = %q, want %q", resp["status"], appointment.StatusPending)
	}
	return resp["reference"]
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	srv, st := testServer(t)
	router := srv.setupRouter()

	ref := createViaAPI(t, router)

	appt, err := st.FindByRefCode(context.Background(), ref)
	if err != nil {
		t.Fatalf("FindByRefCode() error = %v", err)
	}
	if appt.Status != appointment.StatusPending {
		t.Errorf("persisted status = %q, want %q", appt.Status, appointment.StatusPending)
	}
}

func TestCreateAppointmentRejectsBadTimes(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	rec := doJSON(t, router, http.MethodPost, "/appointment/create-appointment", map[string]string{
		"student_name":   "Juan",
		"student_email":  "juan@example.edu",
		"professor_uuid": "prof-1",
		"start_time":     "sometime tomorrow",
		"end_time":       "2025-06-01 11:00 AM",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestActionAppointmentEndpoint(t *testing.T) {
	srv, st := testServer(t)
	router := srv.setupRouter()
	ref := createViaAPI(t, router)

	rec := doJSON(t, router, http.MethodPut, "/appointment/action-appointment/"+ref, map[string]string{
		"status": "accept",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != string(appointment.StatusAccepted) {
		t.Errorf("status = %q, want %q", resp["status"], appointment.StatusAccepted)
	}

	appt, _ := st.FindByRefCode(context.Background(), ref)
	if appt.Status != appointment.StatusAccepted {
		t.Errorf("persisted status = %q, want %q", appt.Status, appointment.StatusAccepted)
	}
}

func TestActionAppointmentErrors(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()
	ref := createViaAPI(t, router)

	// Unknown reference is a 404.
	rec := doJSON(t, router, http.MethodPut, "/appointment/action-appointment/ZZZZZZ", map[string]string{
		"status": "accept",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown reference status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	// Unknown action token is a 400.
	rec = doJSON(t, router, http.MethodPut, "/appointment/action-appointment/"+ref, map[string]string{
		"status": "maybe",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	// Acting twice hits a terminal state, also a 400.
	doJSON(t, router, http.MethodPut, "/appointment/action-appointment/"+ref, map[string]string{"status": "accept"})
	rec = doJSON(t, router, http.MethodPut, "/appointment/action-appointment/"+ref, map[string]string{"status": "reject"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("terminal state status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestProfessorAppointmentsEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()
	createViaAPI(t, router)

	rec := doJSON(t, router, http.MethodGet, "/appointment/professor-appointments/prof-1/2025-06-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var windows []map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &windows); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("got %d busy windows, want 1", len(windows))
	}
	if windows[0]["start_time"] != "10:00:00" || windows[0]["end_time"] != "11:00:00" {
		t.Errorf("window = %v, want 10:00:00-11:00:00", windows[0])
	}

	rec = doJSON(t, router, http.MethodGet, "/appointment/professor-appointments/prof-1/June-1st", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetAppointmentsEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()
	ref := createViaAPI(t, router)

	rec := doJSON(t, router, http.MethodGet, "/appointment/get-appointments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var rows []appointmentRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].ProfessorName != "Prof. Maria Cruz" {
		t.Errorf("professor name = %q, want %q", rows[0].ProfessorName, "Prof. Maria Cruz")
	}

	rec = doJSON(t, router, http.MethodGet, "/appointment/get-appointment-by-reference/"+ref, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("by-reference status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/appointment/get-appointment-by-reference/ZZZZZZ", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown reference status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCheckEmailWithoutPoller(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	rec := doJSON(t, router, http.MethodGet, "/appointment/check-email", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestProfessorEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	rec := doJSON(t, router, http.MethodPost, "/professor/add-professor", map[string]string{
		"professor_id": "prof-2",
		"first_name":   "Jose",
		"last_name":    "Santos",
		"title":        "Dr.",
		"email":        "santos@example.edu",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/professor/get-professors", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var profs []map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &profs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(profs) != 2 {
		t.Errorf("got %d professors, want 2", len(profs))
	}

	rec = doJSON(t, router, http.MethodPost, "/professor/add-professor", map[string]string{
		"first_name": "Nameless",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("incomplete add status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAddProfessorGeneratesID(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	rec := doJSON(t, router, http.MethodPost, "/professor/add-professor", map[string]string{
		"first_name": "Ana",
		"last_name":  "Reyes",
		"email":      "reyes@example.edu",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["professor_id"] == "" {
		t.Error("professor_id missing from response when omitted in the request")
	}
}

func TestAddProfessorDuplicateConflicts(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	body := map[string]string{
		"professor_id": "prof-1",
		"first_name":   "Maria",
		"last_name":    "Cruz",
		"email":        "cruz@example.edu",
	}
	rec := doJSON(t, router, http.MethodPost, "/professor/add-professor", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v, want ok", resp["status"])
	}
}
