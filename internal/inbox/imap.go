package inbox

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/campus-kiosk/apptdesk/internal/config"
	"github.com/campus-kiosk/apptdesk/internal/email"
)

// IMAPGateway reads the appointment mailbox over IMAP and sends outbound
// mail through the configured Sender. It reconnects lazily: any call that
// hits a dead connection drops it so the next call dials again.
type IMAPGateway struct {
	cfg    config.IMAPConfig
	sender email.Sender

	mu     sync.Mutex
	client *client.Client
	uids   map[string]uint32 // Message-Id header -> IMAP UID
}

// NewIMAPGateway builds a gateway over the configured mailbox. Sending is
// delegated to sender so the outbound provider can differ from the inbound
// one.
func NewIMAPGateway(cfg config.IMAPConfig, sender email.Sender) *IMAPGateway {
	return &IMAPGateway{
		cfg:    cfg,
		sender: sender,
		uids:   make(map[string]uint32),
	}
}

// ensureConnected dials and logs in if there is no live session. Caller
// must hold g.mu.
func (g *IMAPGateway) ensureConnected() error {
	if g.client != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", g.cfg.Server, g.cfg.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(g.cfg.Email, g.cfg.Password); err != nil {
		c.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	if _, err := c.Select(g.cfg.Folder, false); err != nil {
		c.Logout()
		return fmt.Errorf("failed to select mailbox %s: %w", g.cfg.Folder, err)
	}

	g.client = c
	return nil
}

// drop discards the current session after a protocol error so the next
// call reconnects. Caller must hold g.mu.
func (g *IMAPGateway) drop() {
	if g.client != nil {
		g.client.Logout()
		g.client = nil
	}
}

// Close logs out of the IMAP session.
func (g *IMAPGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Logout()
	g.client = nil
	return err
}

// ListUnread returns message IDs of up to max unread messages whose
// subject contains subjectQuery, oldest first.
func (g *IMAPGateway) ListUnread(ctx context.Context, subjectQuery string, max int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureConnected(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Header.Add("Subject", subjectQuery)

	uids, err := g.client.UidSearch(criteria)
	if err != nil {
		g.drop()
		return nil, fmt.Errorf("failed to search unread messages: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	// UIDs ascend with delivery order, so the oldest come first.
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > max {
		uids = uids[:max]
	}

	msgs, err := g.fetch(uids, false)
	if err != nil {
		g.drop()
		return nil, err
	}

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		g.uids[m.ID] = m.UID
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// GetThread returns every message whose subject reduces to the same
// conversation subject as the given message, ordered oldest to newest.
// Subject-based threading is good enough here because every conversation
// subject carries either the student name or the reference code.
func (g *IMAPGateway) GetThread(ctx context.Context, messageID string) ([]Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureConnected(); err != nil {
		return nil, err
	}

	uid, ok := g.uids[messageID]
	if !ok {
		found, err := g.searchByMessageID(messageID)
		if err != nil {
			g.drop()
			return nil, err
		}
		uid = found
		g.uids[messageID] = uid
	}

	anchor, err := g.fetch([]uint32{uid}, true)
	if err != nil {
		g.drop()
		return nil, err
	}
	if len(anchor) == 0 {
		return nil, fmt.Errorf("message %s not found in %s", messageID, g.cfg.Folder)
	}

	base := baseSubject(anchor[0].Subject)
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Subject", base)

	uids, err := g.client.UidSearch(criteria)
	if err != nil {
		g.drop()
		return nil, fmt.Errorf("failed to search thread: %w", err)
	}

	msgs, err := g.fetch(uids, true)
	if err != nil {
		g.drop()
		return nil, err
	}

	thread := msgs[:0]
	for _, m := range msgs {
		if baseSubject(m.Subject) == base {
			if m.ID != "" {
				g.uids[m.ID] = m.UID
			}
			thread = append(thread, m)
		}
	}
	sort.Slice(thread, func(i, j int) bool { return thread[i].Date.Before(thread[j].Date) })
	return thread, nil
}

// GetBody returns the plain-text body, rendering the HTML part when no
// text part exists.
func (g *IMAPGateway) GetBody(m Message) string {
	if strings.TrimSpace(m.Body) != "" {
		return m.Body
	}
	if m.HTML != "" {
		return HTMLToText(m.HTML)
	}
	return ""
}

// GetHeader returns a single header value, "" when absent.
func (g *IMAPGateway) GetHeader(m Message, name string) string {
	return m.Headers[strings.ToLower(name)]
}

// Send delivers a plaintext message through the configured sender.
func (g *IMAPGateway) Send(ctx context.Context, to, from, subject, body string) (string, error) {
	result := g.sender.Send(ctx, email.Message{
		To:      to,
		From:    from,
		Subject: subject,
		Body:    body,
	})
	if result.Error != nil {
		return "", result.Error
	}
	return result.MessageID, nil
}

// MarkRead sets the \Seen flag so later scans skip the message.
func (g *IMAPGateway) MarkRead(ctx context.Context, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureConnected(); err != nil {
		return err
	}

	uid, ok := g.uids[messageID]
	if !ok {
		found, err := g.searchByMessageID(messageID)
		if err != nil {
			g.drop()
			return err
		}
		uid = found
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := g.client.UidStore(seqSet, item, flags, nil); err != nil {
		g.drop()
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// searchByMessageID resolves a Message-Id header to a UID when the cache
// misses (e.g., after a reconnect). Caller must hold g.mu.
func (g *IMAPGateway) searchByMessageID(messageID string) (uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-Id", messageID)

	uids, err := g.client.UidSearch(criteria)
	if err != nil {
		return 0, fmt.Errorf("failed to search by message id: %w", err)
	}
	if len(uids) == 0 {
		return 0, fmt.Errorf("message %s not found in %s", messageID, g.cfg.Folder)
	}
	return uids[0], nil
}

// fetch retrieves envelopes (and bodies when withBody is set) for the
// given UIDs. Caller must hold g.mu.
func (g *IMAPGateway) fetch(uids []uint32, withBody bool) ([]Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}
	if withBody {
		items = append(items, section.FetchItem())
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- g.client.UidFetch(seqSet, items, messages)
	}()

	var out []Message
	for msg := range messages {
		m, err := parseMessage(msg, section)
		if err != nil {
			log.Printf("Warning: failed to parse message: %v", err)
			continue
		}
		if m != nil {
			out = append(out, *m)
		}
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return out, nil
}

// parseMessage converts an IMAP message to our Message struct.
func parseMessage(msg *imap.Message, section *imap.BodySectionName) (*Message, error) {
	if msg == nil || msg.Envelope == nil {
		return nil, nil
	}

	m := &Message{
		UID:     msg.Uid,
		ID:      msg.Envelope.MessageId,
		Subject: msg.Envelope.Subject,
		Date:    msg.Envelope.Date,
		Headers: map[string]string{
			"subject":    msg.Envelope.Subject,
			"message-id": msg.Envelope.MessageId,
		},
	}
	if msg.Envelope.InReplyTo != "" {
		m.Headers["in-reply-to"] = msg.Envelope.InReplyTo
	}
	if len(msg.Envelope.From) > 0 {
		m.From = msg.Envelope.From[0].Address()
		m.Headers["from"] = m.From
	}

	r := msg.GetBody(section)
	if r == nil {
		return m, nil
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return m, nil // Return without body on parse error
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, _ := io.ReadAll(p.Body)

			if strings.HasPrefix(ct, "text/plain") && m.Body == "" {
				m.Body = string(body)
			} else if strings.HasPrefix(ct, "text/html") && m.HTML == "" {
				m.HTML = string(body)
			}
		}
	}

	return m, nil
}

// baseSubject strips reply and forward prefixes so all messages of a
// conversation compare equal.
// isReplySubject reports whether a subject carries a reply or forward
// prefix. The notifications this service sends never do.
func isReplySubject(s string) bool {
	s = strings.TrimSpace(s)
	return baseSubject(s) != s
}

func baseSubject(s string) string {
	s = strings.TrimSpace(s)
	for {
		lower := strings.ToLower(s)
		switch {
		case strings.HasPrefix(lower, "re:"):
			s = strings.TrimSpace(s[3:])
		case strings.HasPrefix(lower, "fwd:"):
			s = strings.TrimSpace(s[4:])
		case strings.HasPrefix(lower, "fw:"):
			s = strings.TrimSpace(s[3:])
		default:
			return s
		}
	}
}
