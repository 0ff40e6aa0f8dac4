package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/campus-kiosk/apptdesk/internal/appointment"
	"github.com/campus-kiosk/apptdesk/internal/config"
	"github.com/campus-kiosk/apptdesk/internal/inbox"
	"github.com/campus-kiosk/apptdesk/internal/store"
)

// Server exposes the kiosk-facing JSON API. It owns no business rules:
// every transition goes through the appointment engine.
type Server struct {
	config     *config.Config
	store      *store.Store
	engine     *appointment.Engine
	poller     *inbox.Poller
	httpServer *http.Server
}

func NewServer(cfg *config.Config, st *store.Store, engine *appointment.Engine, poller *inbox.Poller) *Server {
	return &Server{
		config: cfg,
		store:  st,
		engine: engine,
		poller: poller,
	}
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	router := s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.HTTP.Host, s.config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	fmt.Printf("Appointment API listening on http://%s\n", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/appointment", func(r chi.Router) {
		r.Post("/create-appointment", s.handleCreateAppointment)
		r.Put("/action-appointment/{reference}", s.handleActionAppointment)
		r.Get("/professor-appointments/{professorID}/{date}", s.handleProfessorAppointments)
		r.Get("/get-appointments", s.handleGetAppointments)
		r.Get("/get-appointment-by-reference/{reference}", s.handleGetAppointmentByReference)
		r.Get("/check-email", s.handleCheckEmail)
	})

	r.Route("/professor", func(r chi.Router) {
		r.Get("/get-professors", s.handleGetProfessors)
		r.Post("/add-professor", s.handleAddProfessor)
	})

	r.Get("/api/health", s.handleHealth)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's error taxonomy to HTTP statuses: unknown
// references are 404, illegal actions 400, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, appointment.ErrNotFound), errors.Is(err, appointment.ErrProfessorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, appointment.ErrInvalidTransition):
		status = http.StatusBadRequest
	case errors.Is(err, appointment.ErrVersionConflict), errors.Is(err, appointment.ErrProfessorExists):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type createAppointmentRequest struct {
	StudentName   string `json:"student_name"`
	StudentID     string `json:"student_id"`
	StudentEmail  string `json:"student_email"`
	ProfessorUUID string `json:"professor_uuid"`
	Concern       string `json:"concern"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

// kioskTimeLayouts are the datetime shapes the kiosk frontend sends.
var kioskTimeLayouts = []string{
	"2006-01-02 3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

func parseKioskTime(s string) (time.Time, error) {
	for _, layout := range kioskTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}

func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	start, err := parseKioskTime(req.StartTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	end, err := parseKioskTime(req.EndTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	appt, err := s.engine.Create(r.Context(), appointment.CreateRequest{
		StudentName:  req.StudentName,
		StudentID:    req.StudentID,
		StudentEmail: req.StudentEmail,
		ProfessorID:  req.ProfessorUUID,
		Concern:      req.Concern,
		StartTime:    start,
		EndTime:      end,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":   "Appointment created successfully",
		"reference": appt.RefCode(),
		"status":    string(appt.Status),
	})
}

type actionRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleActionAppointment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	appt, err := s.engine.Act(r.Context(), reference, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Appointment updated",
		"status":  string(appt.Status),
	})
}

// handleProfessorAppointments returns the busy windows for one staff
// member on one day, for the kiosk slot picker. Only Pending and Accepted
// appointments block a slot.
func (s *Server) handleProfessorAppointments(w http.ResponseWriter, r *http.Request) {
	professorID := chi.URLParam(r, "professorID")
	date := chi.URLParam(r, "date")

	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}

	appts, err := s.store.ListByProfessorAndDate(r.Context(), professorID, date,
		[]appointment.Status{appointment.StatusPending, appointment.StatusAccepted})
	if err != nil {
		writeError(w, err)
		return
	}

	windows := make([]map[string]string, 0, len(appts))
	for _, a := range appts {
		windows = append(windows, map[string]string{
			"start_time": a.StartTime.Format("15:04:05"),
			"end_time":   a.EndTime.Format("15:04:05"),
		})
	}
	writeJSON(w, http.StatusOK, windows)
}

type appointmentRow struct {
	UUID          string `json:"uuid"`
	Reference     string `json:"reference"`
	StudentName   string `json:"student_name"`
	StudentID     string `json:"student_id"`
	StudentEmail  string `json:"student_email"`
	ProfessorID   string `json:"professor_id"`
	ProfessorName string `json:"professor_name"`
	Concern       string `json:"concern"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
}

func (s *Server) appointmentRow(ctx context.Context, a *appointment.Appointment) appointmentRow {
	row := appointmentRow{
		UUID:         a.UUID,
		Reference:    a.RefCode(),
		StudentName:  a.StudentName,
		StudentID:    a.StudentID,
		StudentEmail: a.StudentEmail,
		ProfessorID:  a.ProfessorID,
		Concern:      a.Concern,
		StartTime:    a.StartTime.Format("2006-01-02 15:04:05"),
		EndTime:      a.EndTime.Format("2006-01-02 15:04:05"),
		Status:       string(a.Status),
	}
	if prof, err := s.store.Professor(ctx, a.ProfessorID); err == nil {
		row.ProfessorName = prof.DisplayName()
	}
	return row
}

func (s *Server) handleGetAppointments(w http.ResponseWriter, r *http.Request) {
	appts, err := s.store.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	rows := make([]appointmentRow, 0, len(appts))
	for i := range appts {
		rows = append(rows, s.appointmentRow(r.Context(), &appts[i]))
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetAppointmentByReference(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	appt, err := s.store.FindByRefCode(r.Context(), reference)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.appointmentRow(r.Context(), appt))
}

// handleCheckEmail triggers one poller cycle synchronously and returns
// its stats. Sub-job failures are logged, same as the background loop.
func (s *Server) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	if s.poller == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reply polling is not configured"})
		return
	}

	stats := s.poller.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Mailbox scan complete",
		"stats":   stats,
	})
}

func (s *Server) handleGetProfessors(w http.ResponseWriter, r *http.Request) {
	profs, err := s.store.ListProfessors(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	type professorRow struct {
		ProfessorID string `json:"professor_id"`
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		Title       string `json:"title"`
		Email       string `json:"email"`
		OfficeHours string `json:"office_hours,omitempty"`
	}
	rows := make([]professorRow, 0, len(profs))
	for _, p := range profs {
		rows = append(rows, professorRow{
			ProfessorID: p.ID,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Title:       p.Title,
			Email:       p.Email,
			OfficeHours: p.OfficeHours,
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

type addProfessorRequest struct {
	ProfessorID string `json:"professor_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Title       string `json:"title"`
	Email       string `json:"email"`
	OfficeHours string `json:"office_hours"`
}

func (s *Server) handleAddProfessor(w http.ResponseWriter, r *http.Request) {
	var req addProfessorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.FirstName == "" || req.LastName == "" || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "first_name, last_name and email are required"})
		return
	}
	if req.ProfessorID == "" {
		req.ProfessorID = uuid.New().String()
	}

	prof := &appointment.Professor{
		ID:          req.ProfessorID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Title:       req.Title,
		Email:       req.Email,
		OfficeHours: req.OfficeHours,
	}
	if err := s.store.AddProfessor(r.Context(), prof); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":      "Professor added",
		"professor_id": prof.ID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountByStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"appointments": counts,
	})
}
