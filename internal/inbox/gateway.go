package inbox

import (
	"context"
	"errors"
	"time"
)

// ErrGatewayUnavailable wraps mail provider failures that survived the
// retry budget. Synchronous callers surface it as a 500; the background
// poller logs it and waits for the next cycle.
var ErrGatewayUnavailable = errors.New("mail gateway unavailable")

// Message is one mail message as seen by the poller. Headers carry the
// subset of header fields the pipeline inspects.
type Message struct {
	ID      string
	UID     uint32
	Subject string
	From    string
	Date    time.Time
	Body    string
	HTML    string
	Headers map[string]string
}

// Gateway is the mailbox the poller scans and the dispatcher sends
// through. Implementations wrap a concrete provider (IMAP plus an
// outbound sender); tests substitute an in-memory fake.
type Gateway interface {
	// ListUnread returns the IDs of up to max unread messages whose
	// subject contains subjectQuery, oldest first.
	ListUnread(ctx context.Context, subjectQuery string, max int) ([]string, error)

	// GetThread returns every message sharing the given message's
	// conversation, ordered oldest to newest.
	GetThread(ctx context.Context, messageID string) ([]Message, error)

	// GetBody returns the plain-text body of a message, falling back to a
	// text rendering of its HTML part.
	GetBody(m Message) string

	// GetHeader returns a single header value, "" when absent.
	GetHeader(m Message, name string) string

	// Send delivers a plaintext message and returns the provider's id for
	// it.
	Send(ctx context.Context, to, from, subject, body string) (string, error)

	// MarkRead flags a message as seen so later scans skip it.
	MarkRead(ctx context.Context, messageID string) error
}
