package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier emails each recipient separately so one bad address does
// not block the rest.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send sendFunc
	now  func() time.Time
}

// NewSMTPNotifier creates an SMTP notifier.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("smtp: addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return nil, fmt.Errorf("smtp: invalid addr %q: %w", cfg.Addr, err)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp: from is required")
	}
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail, now: time.Now}, nil
}

// Notify implements Notifier.
func (n *SMTPNotifier) Notify(ctx context.Context, message string, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("smtp: no recipients")
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		host, _, _ := net.SplitHostPort(n.cfg.Addr)
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, host)
	}

	var failed []string
	var lastErr error
	for _, to := range recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.send(n.cfg.Addr, auth, n.cfg.From, []string{to}, n.buildMessage(to, message)); err != nil {
			failed = append(failed, to)
			lastErr = err
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("smtp: failed to send to %s: %w", strings.Join(failed, ", "), lastErr)
	}
	return nil
}

func (n *SMTPNotifier) buildMessage(to, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}
