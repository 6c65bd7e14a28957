// Package notify emails one summary per push to the repository owner.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/outcome"
	"github.com/NielsdaWheelz/pushci/internal/pipeline"
)

// Message is a composed summary email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender transports a composed message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Notifier composes push summaries and hands them to a Sender.
type Notifier struct {
	// Recipients maps repository owner to email address. Owners without
	// an entry are not notified.
	Recipients map[string]string
	From       string
	Sender     Sender

	// LogURL returns the log page URL for an outcome. May be nil.
	LogURL func(pipeline.CommitOutcome) string
}

// Notify composes and sends the summary for one push. It is a no-op when
// the owner has no configured recipient.
func (n *Notifier) Notify(ctx context.Context, batch pipeline.PushBatch, outcomes []pipeline.CommitOutcome) error {
	m, ok := n.Compose(batch, outcomes)
	if !ok {
		return nil
	}
	if err := n.Sender.Send(ctx, m); err != nil {
		return errors.WrapWithDetails(errors.ENotifyFailed, "failed to send push summary", err, map[string]string{
			"repo": batch.FullName(),
		})
	}
	return nil
}

// Compose builds the summary for a push. ok is false when the owner has no
// recipient.
func (n *Notifier) Compose(batch pipeline.PushBatch, outcomes []pipeline.CommitOutcome) (m Message, ok bool) {
	to := n.Recipients[batch.Owner]
	if to == "" {
		return Message{}, false
	}

	failed := 0
	var b strings.Builder
	for _, o := range outcomes {
		if o.Status != outcome.Success {
			failed++
		}
		fmt.Fprintf(&b, "sha: %s\n", o.SHA)
		fmt.Fprintf(&b, "commit information: %s\n", firstLine(o.Message))
		fmt.Fprintf(&b, "result: %s\n", o.Description)
		if n.LogURL != nil {
			if u := n.LogURL(o); u != "" {
				fmt.Fprintf(&b, "log: %s\n", u)
			}
		}
		b.WriteString("\n")
	}

	subject := fmt.Sprintf("[%s] %d commit(s) built, all passed", batch.FullName(), len(outcomes))
	if failed > 0 {
		subject = fmt.Sprintf("[%s] %d of %d commit(s) failed", batch.FullName(), failed, len(outcomes))
	}

	return Message{
		From:    n.From,
		To:      to,
		Subject: subject,
		Body:    b.String(),
	}, true
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	Addr     string // host:port
	Username string
	Password string
}

// Send delivers m. PLAIN auth is used when a username is configured.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.Username != "" {
		host, _, err := net.SplitHostPort(s.Addr)
		if err != nil {
			return fmt.Errorf("invalid smtp address %q: %w", s.Addr, err)
		}
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}
	return smtp.SendMail(s.Addr, auth, m.From, []string{m.To}, m.Bytes())
}

// Bytes renders m as an RFC 5322 message.
func (m Message) Bytes() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(m.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
