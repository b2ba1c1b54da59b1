// Package notify emails the site owner when a contact message arrives.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/Zachkp/stats-consult/internal/config"
	"github.com/Zachkp/stats-consult/internal/store"
)

// Notifier is told about every stored contact message.
type Notifier interface {
	ContactReceived(ctx context.Context, m *store.Message) error
}

// New returns an SMTP notifier, or a no-op one when credentials are missing.
func New(cfg config.SMTP) Notifier {
	if !cfg.Enabled() {
		log.Println("Contact notifications disabled: SMTP_USER/SMTP_PASS not set")
		return Nop{}
	}
	return &SMTP{cfg: cfg, send: smtp.SendMail}
}

type Nop struct{}

func (Nop) ContactReceived(context.Context, *store.Message) error { return nil }

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTP struct {
	cfg  config.SMTP
	send sendFunc
}

func (s *SMTP) ContactReceived(ctx context.Context, m *store.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	addr := s.cfg.Host + ":" + s.cfg.Port
	if err := s.send(addr, auth, s.cfg.User, []string{s.cfg.To}, Compose(s.cfg, m)); err != nil {
		return fmt.Errorf("failed to send contact email: %w", err)
	}
	log.Printf("Contact email sent for message %s", m.ID)
	return nil
}

// Compose builds the RFC 5322 message for m. Visitor-supplied values are
// stripped of line breaks before they go into headers.
func Compose(cfg config.SMTP, m *store.Message) []byte {
	name := headerSafe(m.Name)
	subject := fmt.Sprintf("Consulting Inquiry: %s", name)
	body := fmt.Sprintf(`New contact form submission from your website:

Name: %s
Email: %s
Message:
%s

---
Sent from your website contact form
`, m.Name, m.Email, m.Body)

	var b strings.Builder
	b.WriteString("To: " + cfg.To + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("From: " + cfg.User + "\r\n")
	b.WriteString("Reply-To: " + headerSafe(m.Email) + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func headerSafe(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
}
