package inbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/campus-kiosk/apptdesk/internal/appointment"
	"github.com/campus-kiosk/apptdesk/internal/config"
)

// Subject fragments the scans match on. These must stay in sync with the
// notification subject lines, which human repliers answer in place.
const (
	staffSubjectQuery      = "has created an appointment"
	rescheduleSubjectQuery = "Appointment Reschedule Suggestion"
)

// ProcessedLog records which inbound messages have already driven a
// transition, so a reply is never applied twice even if the read flag is
// lost provider-side.
type ProcessedLog interface {
	MessageProcessed(ctx context.Context, messageID string) (bool, error)
	MarkMessageProcessed(ctx context.Context, messageID, reference string, intent appointment.Intent) error
}

// CycleStats summarizes one poller cycle.
type CycleStats struct {
	StaffReplies   int `json:"staff_replies"`
	StudentReplies int `json:"student_replies"`
	AutoRejected   int `json:"auto_rejected"`
}

// Poller drives the inbound side of the service: every cycle it scans
// staff reply threads, then student reply threads, then runs the
// auto-reject sweep.
type Poller struct {
	gateway Gateway
	engine  *appointment.Engine
	log     ProcessedLog
	vocab   *Vocabulary
	cfg     config.PollerConfig
}

func NewPoller(gateway Gateway, engine *appointment.Engine, processed ProcessedLog, cfg config.PollerConfig) *Poller {
	return &Poller{
		gateway: gateway,
		engine:  engine,
		log:     processed,
		vocab:   DefaultVocabulary(),
		cfg:     cfg,
	}
}

// Run executes cycles at the configured interval until ctx is cancelled.
// The in-flight cycle finishes its current message before returning.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("Reply poller started (interval %s)", p.cfg.Interval())

	ticker := time.NewTicker(p.cfg.Interval())
	defer ticker.Stop()

	p.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Reply poller stopped")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes one full cycle: staff scan, student scan, stale sweep.
// A failed sub-job is logged and the cycle moves on; the next cycle tries
// again.
func (p *Poller) RunOnce(ctx context.Context) CycleStats {
	var stats CycleStats

	n, err := p.scanStaffReplies(ctx)
	if err != nil {
		log.Printf("Staff reply scan failed: %v", err)
	}
	stats.StaffReplies = n

	n, err = p.scanStudentReplies(ctx)
	if err != nil {
		log.Printf("Student reply scan failed: %v", err)
	}
	stats.StudentReplies = n

	swept, err := p.engine.SweepStale(ctx)
	if err != nil {
		log.Printf("Auto-reject sweep failed: %v", err)
	}
	stats.AutoRejected = swept

	return stats
}

// scanStaffReplies processes unread replies in the "created" notification
// threads, where staff accept, reject or counter-propose.
func (p *Poller) scanStaffReplies(ctx context.Context) (int, error) {
	return p.scan(ctx, staffSubjectQuery, p.resolveStaffReply)
}

// scanStudentReplies processes unread replies in the reschedule suggestion
// threads, where only the student's yes or no matters.
func (p *Poller) scanStudentReplies(ctx context.Context) (int, error) {
	return p.scan(ctx, rescheduleSubjectQuery, p.resolveStudentReply)
}

// scan lists unread messages for one subject pattern and processes each
// independently. An error on one message is logged and the scan continues;
// a processed count and the first listing error are returned.
func (p *Poller) scan(ctx context.Context, subjectQuery string, resolve func(ctx context.Context, ref, body string) (appointment.Intent, error)) (int, error) {
	var ids []string
	err := p.withRetry(ctx, "list unread", func() error {
		var err error
		ids, err = p.gateway.ListUnread(ctx, subjectQuery, p.cfg.ScanLimit)
		return err
	})
	if err != nil {
		return 0, err
	}

	processed := 0
	for i, id := range ids {
		if i > 0 {
			if err := sleepCtx(ctx, p.cfg.MessageDelay()); err != nil {
				return processed, err
			}
		}
		done, err := p.processMessage(ctx, id, resolve)
		if err != nil {
			log.Printf("Warning: failed to process message %s: %v", id, err)
			continue
		}
		if done {
			processed++
		}
	}
	return processed, nil
}

// processMessage handles one unread reply end to end. It reports done=true
// when the message reached a final outcome (transition applied, or
// permanently skippable) and was marked read.
func (p *Poller) processMessage(ctx context.Context, id string, resolve func(ctx context.Context, ref, body string) (appointment.Intent, error)) (bool, error) {
	seen, err := p.log.MessageProcessed(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check processed log: %w", err)
	}
	if seen {
		// Already applied in an earlier cycle; just clear the unread flag.
		if err := p.gateway.MarkRead(ctx, id); err != nil {
			log.Printf("Warning: failed to mark %s read: %v", id, err)
		}
		return false, nil
	}

	var thread []Message
	err = p.withRetry(ctx, "get thread", func() error {
		var err error
		thread, err = p.gateway.GetThread(ctx, id)
		return err
	})
	if err != nil {
		return false, err
	}
	if len(thread) == 0 {
		return false, nil
	}

	reply := thread[len(thread)-1]
	if len(thread) < 2 && !isReplySubject(reply.Subject) {
		// Just our own notification, nobody has answered yet. Leave it
		// unread.
		return false, nil
	}

	raw := p.gateway.GetBody(reply)

	// The original notification anchors the thread when the mailbox holds
	// it, but sent mail usually lands in a different folder. The reply
	// alone still identifies the appointment: reschedule subjects carry
	// the code, and the quoted history repeats the body marker.
	var ref string
	if len(thread) >= 2 {
		ref = ExtractReference(p.gateway.GetBody(thread[0]))
	}
	if ref == "" {
		ref = ExtractSubjectReference(reply.Subject)
	}
	if ref == "" {
		ref = ExtractReference(raw)
	}
	if ref == "" {
		log.Printf("Warning: no reference in thread %q, skipping", reply.Subject)
		return p.finishMessage(ctx, id, "", appointment.IntentNone)
	}

	body := StripQuotedHistory(raw)
	intent, err := resolve(ctx, ref, body)
	if err != nil {
		switch {
		case errors.Is(err, appointment.ErrNotFound),
			errors.Is(err, appointment.ErrInvalidTransition):
			// Nothing this message can ever do; retrying forever would
			// just burn quota.
			log.Printf("Skipping reply for %s: %v", ref, err)
			return p.finishMessage(ctx, id, ref, intent)
		default:
			return false, fmt.Errorf("resolve reply for %s: %w", ref, err)
		}
	}
	if intent == appointment.IntentNone {
		// No usable signal yet; leave the message for a future cycle.
		return false, nil
	}

	return p.finishMessage(ctx, id, ref, intent)
}

// finishMessage records the message as processed and clears its unread
// flag. The log write comes first: losing the read flag only costs a
// redundant scan, losing the log entry could apply a reply twice.
func (p *Poller) finishMessage(ctx context.Context, id, ref string, intent appointment.Intent) (bool, error) {
	if err := p.log.MarkMessageProcessed(ctx, id, ref, intent); err != nil {
		return false, fmt.Errorf("record processed message: %w", err)
	}
	if err := p.gateway.MarkRead(ctx, id); err != nil {
		log.Printf("Warning: failed to mark %s read: %v", id, err)
	}
	return true, nil
}

// resolveStaffReply classifies a staff reply and applies the transition.
// A reschedule intent additionally needs an extractable alternate slot; if
// both times cannot be resolved the reply is treated as no signal.
func (p *Poller) resolveStaffReply(ctx context.Context, ref, body string) (appointment.Intent, error) {
	intent := Classify(p.vocab, body)

	var sug *appointment.Suggestion
	if intent == appointment.IntentReschedule {
		ext, ok := Extract(body)
		if !ok {
			log.Printf("Reschedule reply for %s has no extractable date, leaving for next cycle", ref)
			return appointment.IntentNone, nil
		}
		start, end, err := ParseSlot(ext)
		if err != nil {
			log.Printf("Reschedule reply for %s: %v, leaving for next cycle", ref, err)
			return appointment.IntentNone, nil
		}
		sug = &appointment.Suggestion{Start: start, End: end}
	}
	if intent == appointment.IntentNone {
		return appointment.IntentNone, nil
	}

	if err := p.engine.ResolveStaffReply(ctx, ref, intent, sug); err != nil {
		return intent, err
	}
	log.Printf("Applied staff reply for %s: %s", ref, intent)
	return intent, nil
}

// resolveStudentReply applies a student's answer to a reschedule
// suggestion. The strict two-way classifier is used here: rejection wins
// whenever a reply mixes both vocabularies.
func (p *Poller) resolveStudentReply(ctx context.Context, ref, body string) (appointment.Intent, error) {
	intent := ClassifyDecision(p.vocab, body)
	if intent == appointment.IntentNone {
		return appointment.IntentNone, nil
	}

	if err := p.engine.ResolveStudentReply(ctx, ref, intent); err != nil {
		return intent, err
	}
	log.Printf("Applied student reply for %s: %s", ref, intent)
	return intent, nil
}

// withRetry runs fn once plus up to the configured number of retries,
// doubling the backoff between calls (2s, 4s, 8s at the defaults).
// Exhausting the retries wraps the last error in ErrGatewayUnavailable.
func (p *Poller) withRetry(ctx context.Context, name string, fn func() error) error {
	retries := p.cfg.RetryAttempts
	if retries < 0 {
		retries = 0
	}
	calls := retries + 1

	var last error
	delay := p.cfg.RetryBase()
	for call := 1; call <= calls; call++ {
		last = fn()
		if last == nil {
			return nil
		}
		if call < calls {
			log.Printf("%s failed (attempt %d/%d), retrying in %s: %v", name, call, calls, delay, last)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
	}
	return fmt.Errorf("%s: %w: %v", name, ErrGatewayUnavailable, last)
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
