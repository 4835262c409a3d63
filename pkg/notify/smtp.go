package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Fallback   []string
	Production bool
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender renders an HTML mail per recipient. Subject and body are stripped of markup first.
type SMTPSender struct {
	cfg       SMTPConfig
	sanitizer *bluemonday.Policy
	send      SendMailFunc
	now       func() time.Time
}

// NewSMTPSender constructs an SMTPSender. A nil send uses smtp.SendMail.
func NewSMTPSender(cfg SMTPConfig, send SendMailFunc) *SMTPSender {
	if send == nil {
		send = smtp.SendMail
	}
	return &SMTPSender{cfg: cfg, sanitizer: bluemonday.StrictPolicy(), send: send, now: time.Now}
}

var mailTemplate = template.Must(template.New("mail").Parse(`<html><body style="font-family: sans-serif; color: #333;">
<h2 style="color: {{.Color}};">{{.Subject}}</h2>
<p>{{.Body}}</p>
<p><small>Sent: {{.SentAt}}</small></p>
</body></html>`))

// Name implements Sender.
func (s *SMTPSender) Name() string { return "smtp" }

// Tag returns the environment marker prefixed to every subject.
func (s *SMTPSender) Tag() string {
	if s.cfg.Production {
		return "[PROD]"
	}
	return "[TEST SYSTEM]"
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, n Notification) error {
	recipients := n.Recipients
	if len(recipients) == 0 {
		recipients = s.cfg.Fallback
	}
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return fmt.Errorf("smtp credentials missing")
	}

	cleanSubject := s.sanitizer.Sanitize(n.Subject)
	subject := fmt.Sprintf("%s %s", s.Tag(), html.UnescapeString(cleanSubject))
	color := "#f0ad4e"
	if s.cfg.Production {
		color = "#d9534f"
	}
	var body bytes.Buffer
	if err := mailTemplate.Execute(&body, map[string]interface{}{
		"Color":   color,
		"Subject": template.HTML(cleanSubject),
		"Body":    template.HTML(s.sanitizer.Sanitize(n.Body)),
		"SentAt":  s.now().Format("2006-01-02 15:04:05"),
	}); err != nil {
		return fmt.Errorf("render mail: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	for _, to := range recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := buildMessage(s.cfg.Username, to, subject, body.String())
		if err := s.send(addr, auth, s.cfg.Username, []string{to}, msg); err != nil {
			return fmt.Errorf("send mail to %s: %w", to, err)
		}
	}
	return nil
}

func buildMessage(from, to, subject, content string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + strings.NewReplacer("\r", "", "\n", " ").Replace(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(content)
	return []byte(b.String())
}
