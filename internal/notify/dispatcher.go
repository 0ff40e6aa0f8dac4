package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/campus-kiosk/apptdesk/internal/appointment"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

// MailSender is the outbound slice of the mail gateway the dispatcher
// needs. The IMAP gateway satisfies it; tests use a recording fake.
type MailSender interface {
	Send(ctx context.Context, to, from, subject, body string) (string, error)
}

// EmailData contains all data available to notification templates.
type EmailData struct {
	StudentName   string
	ProfessorName string
	Concern       string
	Reference     string

	Date      string
	StartTime string
	EndTime   string

	SuggestedDate  string
	SuggestedStart string
	SuggestedEnd   string
}

// Dispatcher renders the notification templates and hands them to the
// mail sender. Subject lines are load-bearing: the reply poller matches
// on them, so they are assembled here and nowhere else.
type Dispatcher struct {
	sender    MailSender
	from      string
	templates map[string]*template.Template
}

var templateNames = []string{
	"created_student",
	"created_staff",
	"accepted",
	"rejected",
	"auto_rejected",
	"reschedule",
}

// NewDispatcher parses the embedded templates and wires the sender.
func NewDispatcher(sender MailSender, from string) (*Dispatcher, error) {
	d := &Dispatcher{
		sender:    sender,
		from:      from,
		templates: make(map[string]*template.Template),
	}

	for _, name := range templateNames {
		content, err := embeddedTemplates.ReadFile("templates/" + name + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template %s: %w", name, err)
		}

		tmpl, err := template.New(name).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		d.templates[name] = tmpl
	}

	return d, nil
}

// Created notifies both parties that a new request exists. The staff copy
// opens the thread the reply poller later scans, so it carries the
// reference marker in its body.
func (d *Dispatcher) Created(ctx context.Context, appt *appointment.Appointment, prof *appointment.Professor) error {
	data := buildData(appt, prof)

	studentBody, err := d.render("created_student", data)
	if err != nil {
		return err
	}
	staffBody, err := d.render("created_staff", data)
	if err != nil {
		return err
	}

	var errs []error
	if _, err := d.sender.Send(ctx, appt.StudentEmail, d.from, "Your Appointment has been created", studentBody); err != nil {
		errs = append(errs, fmt.Errorf("student copy: %w", err))
	}
	subject := fmt.Sprintf("%s has created an appointment", appt.StudentName)
	if _, err := d.sender.Send(ctx, prof.Email, d.from, subject, staffBody); err != nil {
		errs = append(errs, fmt.Errorf("staff copy: %w", err))
	}
	return errors.Join(errs...)
}

// Accepted tells the student their request was confirmed.
func (d *Dispatcher) Accepted(ctx context.Context, appt *appointment.Appointment, prof *appointment.Professor) error {
	body, err := d.render("accepted", buildData(appt, prof))
	if err != nil {
		return err
	}
	subject := "Appointment Accepted - Reference #" + appt.RefCode()
	_, err = d.sender.Send(ctx, appt.StudentEmail, d.from, subject, body)
	return err
}

// Rejected tells the student the staff member turned the request down.
func (d *Dispatcher) Rejected(ctx context.Context, appt *appointment.Appointment, prof *appointment.Professor) error {
	body, err := d.render("rejected", buildData(appt, prof))
	if err != nil {
		return err
	}
	subject := "Appointment Request Update - Reference #" + appt.RefCode()
	_, err = d.sender.Send(ctx, appt.StudentEmail, d.from, subject, body)
	return err
}

// AutoRejected tells the student their request expired unanswered.
func (d *Dispatcher) AutoRejected(ctx context.Context, appt *appointment.Appointment, prof *appointment.Professor) error {
	body, err := d.render("auto_rejected", buildData(appt, prof))
	if err != nil {
		return err
	}
	subject := "Appointment Request Expired - Reference #" + appt.RefCode()
	_, err = d.sender.Send(ctx, appt.StudentEmail, d.from, subject, body)
	return err
}

// RescheduleSuggested opens the thread the student answers with accept or
// reject; the reply poller matches on this subject and the body marker.
func (d *Dispatcher) RescheduleSuggested(ctx context.Context, appt *appointment.Appointment, prof *appointment.Professor) error {
	body, err := d.render("reschedule", buildData(appt, prof))
	if err != nil {
		return err
	}
	subject := "Appointment Reschedule Suggestion - Reference #" + appt.RefCode()
	_, err = d.sender.Send(ctx, appt.StudentEmail, d.from, subject, body)
	return err
}

func (d *Dispatcher) render(name string, data EmailData) (string, error) {
	tmpl, ok := d.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template: %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

func buildData(appt *appointment.Appointment, prof *appointment.Professor) EmailData {
	data := EmailData{
		StudentName:   appt.StudentName,
		ProfessorName: prof.DisplayName(),
		Concern:       appt.Concern,
		Reference:     appt.RefCode(),
		Date:          appt.StartTime.Format("2006-01-02"),
		StartTime:     formatClock(appt.StartTime),
		EndTime:       formatClock(appt.EndTime),
	}
	if appt.SuggestedStart != nil {
		data.SuggestedDate = appt.SuggestedStart.Format("2006-01-02")
		data.SuggestedStart = formatClock(*appt.SuggestedStart)
	}
	if appt.SuggestedEnd != nil {
		data.SuggestedEnd = formatClock(*appt.SuggestedEnd)
	}
	return data
}

func formatClock(t time.Time) string {
	return t.Format("03:04 PM")
}
