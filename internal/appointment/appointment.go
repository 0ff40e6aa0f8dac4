package appointment

import (
	"time"
)

// Status is the lifecycle state of an appointment. Accepted and Rejected
// are terminal.
type Status string

const (
	StatusPending     Status = "Pending"
	StatusRescheduled Status = "Rescheduled-Pending"
	StatusAccepted    Status = "Accepted"
	StatusRejected    Status = "Rejected"
)

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRescheduled, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Intent is the classified outcome of a free-text reply.
type Intent string

const (
	IntentAccept     Intent = "accept"
	IntentReject     Intent = "reject"
	IntentReschedule Intent = "reschedule"
	IntentNone       Intent = "none"
)

// RefCodeLen is the number of trailing UUID characters shared with humans.
const RefCodeLen = 6

type Appointment struct {
	ID           int64
	UUID         string
	StudentName  string
	StudentID    string
	StudentEmail string
	ProfessorID  string
	Concern      string
	StartTime    time.Time
	EndTime      time.Time

	// Suggested slot offered by staff; non-nil only in Rescheduled-Pending.
	SuggestedStart *time.Time
	SuggestedEnd   *time.Time

	Status    Status
	CreatedAt time.Time

	// Version backs optimistic locking in the store: an update only
	// applies if the loaded version is still current.
	Version int64
}

// RefCode returns the human-shareable reference: the last 6 characters of
// the UUID, case preserved.
func (a *Appointment) RefCode() string {
	if len(a.UUID) < RefCodeLen {
		return a.UUID
	}
	return a.UUID[len(a.UUID)-RefCodeLen:]
}

// Professor is a staff record. Read-only from this package's perspective.
type Professor struct {
	ID          string
	FirstName   string
	LastName    string
	Title       string
	Email       string
	OfficeHours string
}

// DisplayName is the form used in every notification: "Dr. Jane Doe".
func (p *Professor) DisplayName() string {
	return p.Title + " " + p.FirstName + " " + p.LastName
}
