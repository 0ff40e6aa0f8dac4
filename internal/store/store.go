package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/campus-kiosk/apptdesk/internal/appointment"
)

// Store is the SQLite-backed persistence layer. It implements
// appointment.Store plus the processed-message log used by the reply
// poller as its idempotency source of truth.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS appointments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		student_name TEXT NOT NULL,
		student_id TEXT NOT NULL,
		student_email TEXT NOT NULL,
		professor_id TEXT NOT NULL,
		concern TEXT,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		suggested_start_time DATETIME,
		suggested_end_time DATETIME,
		status TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_appt_status ON appointments(status);
	CREATE INDEX IF NOT EXISTS idx_appt_professor ON appointments(professor_id);
	CREATE INDEX IF NOT EXISTS idx_appt_created_at ON appointments(created_at);

	CREATE TABLE IF NOT EXISTS professors (
		professor_id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		title TEXT,
		email TEXT NOT NULL,
		office_hours TEXT
	);

	-- Mailbox messages the poller has fully handled. The read/unread flag
	-- on the provider is kept in sync but this table is authoritative.
	CREATE TABLE IF NOT EXISTS processed_messages (
		message_id TEXT PRIMARY KEY,
		reference TEXT,
		intent TEXT,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

const apptColumns = `id, uuid, student_name, student_id, student_email, professor_id, concern,
	start_time, end_time, suggested_start_time, suggested_end_time, status, created_at, version`

// sqliteTimeLayout is the only datetime shape written to the database.
// The driver would otherwise serialize time.Time with Go's String()
// format, which sqlite's date functions cannot parse; binding formatted
// UTC strings keeps columns usable by date()/datetime() and lexically
// ordered.
const sqliteTimeLayout = "2006-01-02 15:04:05"

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func fmtNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseDBTime(s string) (time.Time, error) {
	return time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
}

func scanAppointment(scanner interface{ Scan(...any) error }) (*appointment.Appointment, error) {
	var a appointment.Appointment
	var concern sql.NullString
	var start, end string
	var sugStart, sugEnd, createdAt sql.NullString
	var status string

	err := scanner.Scan(&a.ID, &a.UUID, &a.StudentName, &a.StudentID, &a.StudentEmail,
		&a.ProfessorID, &concern, &start, &end, &sugStart, &sugEnd,
		&status, &createdAt, &a.Version)
	if err != nil {
		return nil, err
	}

	if a.StartTime, err = parseDBTime(start); err != nil {
		return nil, fmt.Errorf("bad start_time %q: %w", start, err)
	}
	if a.EndTime, err = parseDBTime(end); err != nil {
		return nil, fmt.Errorf("bad end_time %q: %w", end, err)
	}
	if createdAt.Valid {
		if a.CreatedAt, err = parseDBTime(createdAt.String); err != nil {
			return nil, fmt.Errorf("bad created_at %q: %w", createdAt.String, err)
		}
	}
	if sugStart.Valid {
		t, err := parseDBTime(sugStart.String)
		if err != nil {
			return nil, fmt.Errorf("bad suggested_start_time %q: %w", sugStart.String, err)
		}
		a.SuggestedStart = &t
	}
	if sugEnd.Valid {
		t, err := parseDBTime(sugEnd.String)
		if err != nil {
			return nil, fmt.Errorf("bad suggested_end_time %q: %w", sugEnd.String, err)
		}
		a.SuggestedEnd = &t
	}

	a.Concern = concern.String
	a.Status = appointment.Status(status)
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *appointment.Appointment) error {
	query := `
	INSERT INTO appointments (uuid, student_name, student_id, student_email, professor_id,
		concern, start_time, end_time, suggested_start_time, suggested_end_time, status, created_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`

	result, err := s.db.ExecContext(ctx, query,
		a.UUID, a.StudentName, a.StudentID, a.StudentEmail, a.ProfessorID,
		a.Concern, fmtTime(a.StartTime), fmtTime(a.EndTime),
		fmtNullTime(a.SuggestedStart), fmtNullTime(a.SuggestedEnd),
		string(a.Status), fmtTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	a.Version = 1
	return nil
}

// Update persists the mutable fields with an optimistic version check; a
// concurrent writer makes the compare-and-swap miss and the caller gets
// appointment.ErrVersionConflict.
func (s *Store) Update(ctx context.Context, a *appointment.Appointment) error {
	query := `
	UPDATE appointments SET start_time = ?, end_time = ?, suggested_start_time = ?,
		suggested_end_time = ?, status = ?, version = version + 1
	WHERE id = ? AND version = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		fmtTime(a.StartTime), fmtTime(a.EndTime),
		fmtNullTime(a.SuggestedStart), fmtNullTime(a.SuggestedEnd),
		string(a.Status), a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return appointment.ErrVersionConflict
	}
	a.Version++
	return nil
}

// FindByRefCode matches the reference against the UUID suffix. A short
// code can in principle collide; the first match (lowest id) wins.
func (s *Store) FindByRefCode(ctx context.Context, code string) (*appointment.Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments WHERE uuid LIKE ? ORDER BY id LIMIT 1`

	a, err := scanAppointment(s.db.QueryRowContext(ctx, query, "%"+code))
	if err == sql.ErrNoRows {
		return nil, appointment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query appointment: %w", err)
	}
	return a, nil
}

func (s *Store) FindByUUID(ctx context.Context, id string) (*appointment.Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments WHERE uuid = ?`

	a, err := scanAppointment(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, appointment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query appointment: %w", err)
	}
	return a, nil
}

func statusPlaceholders(statuses []appointment.Status) (string, []any) {
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		marks[i] = "?"
		args[i] = string(st)
	}
	return strings.Join(marks, ", "), args
}

func (s *Store) ListByStatusOlderThan(ctx context.Context, statuses []appointment.Status, cutoff time.Time) ([]appointment.Appointment, error) {
	marks, args := statusPlaceholders(statuses)
	query := `SELECT ` + apptColumns + ` FROM appointments
		WHERE status IN (` + marks + `) AND created_at <= ? ORDER BY id`
	args = append(args, fmtTime(cutoff))

	return s.queryAppointments(ctx, query, args...)
}

// ListByProfessorAndDate returns the professor's appointments whose start
// falls on the given calendar date (YYYY-MM-DD), filtered by status.
func (s *Store) ListByProfessorAndDate(ctx context.Context, professorID, date string, statuses []appointment.Status) ([]appointment.Appointment, error) {
	marks, args := statusPlaceholders(statuses)
	query := `SELECT ` + apptColumns + ` FROM appointments
		WHERE professor_id = ? AND date(start_time) = ?
		AND status IN (` + marks + `) ORDER BY start_time`

	all := []any{professorID, date}
	all = append(all, args...)
	return s.queryAppointments(ctx, query, all...)
}

// ListAll returns every appointment, newest first. Used by the admin table.
func (s *Store) ListAll(ctx context.Context) ([]appointment.Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments ORDER BY created_at DESC`
	return s.queryAppointments(ctx, query)
}

func (s *Store) queryAppointments(ctx context.Context, query string, args ...any) ([]appointment.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var appts []appointment.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

// CountByStatus returns how many appointments sit in each state.
func (s *Store) CountByStatus(ctx context.Context) (map[appointment.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM appointments GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[appointment.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[appointment.Status(status)] = n
	}
	return counts, rows.Err()
}

// ==================== Professor Methods ====================

func (s *Store) Professor(ctx context.Context, id string) (*appointment.Professor, error) {
	query := `SELECT professor_id, first_name, last_name, title, email, office_hours
		FROM professors WHERE professor_id = ?`

	var p appointment.Professor
	var title, officeHours sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.FirstName, &p.LastName, &title, &p.Email, &officeHours)
	if err == sql.ErrNoRows {
		return nil, appointment.ErrProfessorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query professor: %w", err)
	}
	p.Title = title.String
	p.OfficeHours = officeHours.String
	return &p, nil
}

func (s *Store) AddProfessor(ctx context.Context, p *appointment.Professor) error {
	query := `INSERT OR IGNORE INTO professors (professor_id, first_name, last_name, title, email, office_hours)
		VALUES (?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query, p.ID, p.FirstName, p.LastName, p.Title, p.Email, p.OfficeHours)
	if err != nil {
		return fmt.Errorf("failed to insert professor: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", appointment.ErrProfessorExists, p.ID)
	}
	return nil
}

func (s *Store) ListProfessors(ctx context.Context) ([]appointment.Professor, error) {
	query := `SELECT professor_id, first_name, last_name, title, email, office_hours
		FROM professors ORDER BY last_name, first_name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query professors: %w", err)
	}
	defer rows.Close()

	var profs []appointment.Professor
	for rows.Next() {
		var p appointment.Professor
		var title, officeHours sql.NullString
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &title, &p.Email, &officeHours); err != nil {
			return nil, fmt.Errorf("failed to scan professor: %w", err)
		}
		p.Title = title.String
		p.OfficeHours = officeHours.String
		profs = append(profs, p)
	}
	return profs, rows.Err()
}

// ==================== Processed Message Log ====================

// MessageProcessed reports whether the poller already handled a mailbox
// message. The provider's read flag alone is fragile: a human opening the
// mailbox marks messages read and would silently skip them.
func (s *Store) MessageProcessed(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_messages WHERE message_id = ?`, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query processed message: %w", err)
	}
	return true, nil
}

func (s *Store) MarkMessageProcessed(ctx context.Context, messageID, reference string, intent appointment.Intent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_messages (message_id, reference, intent) VALUES (?, ?, ?)`,
		messageID, reference, string(intent))
	if err != nil {
		return fmt.Errorf("failed to record processed message: %w", err)
	}
	return nil
}
