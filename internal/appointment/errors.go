package appointment

import "errors"

var (
	// ErrNotFound means no appointment matched the reference or UUID.
	ErrNotFound = errors.New("appointment not found")

	// ErrProfessorNotFound means the referenced staff record does not exist.
	ErrProfessorNotFound = errors.New("professor not found")

	// ErrProfessorExists means a staff record with that id is already
	// registered.
	ErrProfessorExists = errors.New("professor already exists")

	// ErrInvalidTransition means an action was attempted on a terminal
	// appointment, or the action token itself was not recognized.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrVersionConflict means another writer changed the appointment
	// between load and update. The caller should reload and retry or skip.
	ErrVersionConflict = errors.New("appointment was modified concurrently")
)
