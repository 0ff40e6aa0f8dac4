package appointment

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract the engine consumes. The SQLite
// implementation lives in internal/store.
type Store interface {
	Create(ctx context.Context, appt *Appointment) error
	// Update persists all mutable fields and must fail with
	// ErrVersionConflict when appt.Version is no longer current.
	Update(ctx context.Context, appt *Appointment) error
	FindByRefCode(ctx context.Context, code string) (*Appointment, error)
	FindByUUID(ctx context.Context, id string) (*Appointment, error)
	ListByStatusOlderThan(ctx context.Context, statuses []Status, cutoff time.Time) ([]Appointment, error)
	ListByProfessorAndDate(ctx context.Context, professorID, date string, statuses []Status) ([]Appointment, error)
	Professor(ctx context.Context, id string) (*Professor, error)
}

// Notifier builds and delivers the transition emails. Failures are logged
// by the engine but never roll back a committed status change.
type Notifier interface {
	Created(ctx context.Context, appt *Appointment, prof *Professor) error
	Accepted(ctx context.Context, appt *Appointment, prof *Professor) error
	Rejected(ctx context.Context, appt *Appointment, prof *Professor) error
	AutoRejected(ctx context.Context, appt *Appointment, prof *Professor) error
	RescheduleSuggested(ctx context.Context, appt *Appointment, prof *Professor) error
}

// Suggestion is an extracted alternate slot attached to a reschedule reply.
type Suggestion struct {
	Start time.Time
	End   time.Time
}

// Engine validates and applies status changes. It is the single point of
// truth for legal transitions: the HTTP actions, the reply poller and the
// auto-reject sweeper all go through it.
type Engine struct {
	store      Store
	notifier   Notifier
	staleAfter time.Duration
	now        func() time.Time
}

func NewEngine(store Store, notifier Notifier, staleAfter time.Duration) *Engine {
	if staleAfter <= 0 {
		staleAfter = 48 * time.Hour
	}
	return &Engine{
		store:      store,
		notifier:   notifier,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// SetClock overrides the engine's time source. Used by tests and by the
// sweeper tests to age appointments without sleeping.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// CreateRequest is the booking payload received from the kiosk.
type CreateRequest struct {
	StudentName  string
	StudentID    string
	StudentEmail string
	ProfessorID  string
	Concern      string
	StartTime    time.Time
	EndTime      time.Time
}

// Create books a new Pending appointment and notifies both parties.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if req.StudentName == "" || req.StudentEmail == "" {
		return nil, fmt.Errorf("student name and email are required")
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("end_time must be after start_time")
	}

	prof, err := e.store.Professor(ctx, req.ProfessorID)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		UUID:         uuid.New().String(),
		StudentName:  req.StudentName,
		StudentID:    req.StudentID,
		StudentEmail: req.StudentEmail,
		ProfessorID:  prof.ID,
		Concern:      req.Concern,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Status:       StatusPending,
		CreatedAt:    e.now(),
	}

	if err := e.store.Create(ctx, appt); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	// Commit first, notify best-effort.
	if err := e.notifier.Created(ctx, appt, prof); err != nil {
		log.Printf("appointment %s created but notification failed: %v", appt.RefCode(), err)
	}
	return appt, nil
}

// Act applies a direct administrative accept or reject by reference code.
func (e *Engine) Act(ctx context.Context, refCode, action string) (*Appointment, error) {
	var intent Intent
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "accept":
		intent = IntentAccept
	case "reject":
		intent = IntentReject
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	appt, err := e.store.FindByRefCode(ctx, refCode)
	if err != nil {
		return nil, err
	}
	if err := e.applyDecision(ctx, appt, intent, false); err != nil {
		return nil, err
	}
	return appt, nil
}

// ResolveStaffReply applies a classified staff email reply. Only Pending
// appointments are eligible; a reschedule intent needs an extracted slot.
func (e *Engine) ResolveStaffReply(ctx context.Context, refCode string, intent Intent, sug *Suggestion) error {
	appt, err := e.store.FindByRefCode(ctx, refCode)
	if err != nil {
		return err
	}
	if appt.Status != StatusPending {
		return fmt.Errorf("%w: staff reply for appointment %s in state %s", ErrInvalidTransition, appt.RefCode(), appt.Status)
	}

	switch intent {
	case IntentAccept:
		return e.applyDecision(ctx, appt, IntentAccept, false)
	case IntentReject:
		return e.applyDecision(ctx, appt, IntentReject, false)
	case IntentReschedule:
		if sug == nil {
			return fmt.Errorf("%w: reschedule reply without an extractable date/time", ErrInvalidTransition)
		}
		return e.applyReschedule(ctx, appt, *sug)
	default:
		return fmt.Errorf("%w: intent %q", ErrInvalidTransition, intent)
	}
}

// ResolveStudentReply applies a classified student reply to a reschedule
// suggestion. Only Rescheduled-Pending appointments are eligible and only
// accept/reject are meaningful.
func (e *Engine) ResolveStudentReply(ctx context.Context, refCode string, intent Intent) error {
	appt, err := e.store.FindByRefCode(ctx, refCode)
	if err != nil {
		return err
	}
	if appt.Status != StatusRescheduled {
		return fmt.Errorf("%w: student reply for appointment %s in state %s", ErrInvalidTransition, appt.RefCode(), appt.Status)
	}
	if intent != IntentAccept && intent != IntentReject {
		return fmt.Errorf("%w: intent %q on a reschedule suggestion", ErrInvalidTransition, intent)
	}
	return e.applyDecision(ctx, appt, intent, false)
}

// applyDecision commits an accept or reject and sends the matching
// notification. For an accept out of Rescheduled-Pending the suggested slot
// becomes the confirmed slot; the suggestion fields are always cleared.
func (e *Engine) applyDecision(ctx context.Context, appt *Appointment, intent Intent, auto bool) error {
	if appt.Status.Terminal() {
		return fmt.Errorf("%w: appointment %s is already %s", ErrInvalidTransition, appt.RefCode(), appt.Status)
	}

	switch intent {
	case IntentAccept:
		if appt.Status == StatusRescheduled && appt.SuggestedStart != nil && appt.SuggestedEnd != nil {
			appt.StartTime = *appt.SuggestedStart
			appt.EndTime = *appt.SuggestedEnd
		}
		appt.Status = StatusAccepted
	case IntentReject:
		appt.Status = StatusRejected
	default:
		return fmt.Errorf("%w: intent %q", ErrInvalidTransition, intent)
	}
	appt.SuggestedStart = nil
	appt.SuggestedEnd = nil

	if err := e.store.Update(ctx, appt); err != nil {
		return fmt.Errorf("failed to persist %s transition: %w", appt.Status, err)
	}
	e.notify(ctx, appt, intent, auto)
	return nil
}

// applyReschedule stores the suggested slot and moves the appointment into
// Rescheduled-Pending.
func (e *Engine) applyReschedule(ctx context.Context, appt *Appointment, sug Suggestion) error {
	if appt.Status.Terminal() {
		return fmt.Errorf("%w: appointment %s is already %s", ErrInvalidTransition, appt.RefCode(), appt.Status)
	}
	if !sug.End.After(sug.Start) {
		return fmt.Errorf("%w: suggested end must be after suggested start", ErrInvalidTransition)
	}

	start, end := sug.Start, sug.End
	appt.SuggestedStart = &start
	appt.SuggestedEnd = &end
	appt.Status = StatusRescheduled

	if err := e.store.Update(ctx, appt); err != nil {
		return fmt.Errorf("failed to persist reschedule: %w", err)
	}

	prof, err := e.store.Professor(ctx, appt.ProfessorID)
	if err != nil {
		log.Printf("appointment %s rescheduled but professor lookup failed: %v", appt.RefCode(), err)
		return nil
	}
	if err := e.notifier.RescheduleSuggested(ctx, appt, prof); err != nil {
		log.Printf("appointment %s rescheduled but notification failed: %v", appt.RefCode(), err)
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, appt *Appointment, intent Intent, auto bool) {
	prof, err := e.store.Professor(ctx, appt.ProfessorID)
	if err != nil {
		log.Printf("appointment %s transitioned but professor lookup failed: %v", appt.RefCode(), err)
		return
	}

	switch {
	case intent == IntentAccept:
		err = e.notifier.Accepted(ctx, appt, prof)
	case auto:
		err = e.notifier.AutoRejected(ctx, appt, prof)
	default:
		err = e.notifier.Rejected(ctx, appt, prof)
	}
	if err != nil {
		log.Printf("appointment %s transitioned to %s but notification failed: %v", appt.RefCode(), appt.Status, err)
	}
}

// SweepStale force-rejects every Pending or Rescheduled-Pending appointment
// older than the configured threshold. Each appointment is committed
// individually so one failure does not lose progress on the others.
// Returns the number of appointments rejected.
func (e *Engine) SweepStale(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.staleAfter)
	stale, err := e.store.ListByStatusOlderThan(ctx, []Status{StatusPending, StatusRescheduled}, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale appointments: %w", err)
	}

	count := 0
	for i := range stale {
		appt := stale[i]
		if err := e.applyDecision(ctx, &appt, IntentReject, true); err != nil {
			log.Printf("auto-reject of appointment %s failed: %v", appt.RefCode(), err)
			continue
		}
		count++
	}
	return count, nil
}
