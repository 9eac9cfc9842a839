// Package mailer delivers paystub notification emails over SMTP.
package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"os"
	"path/filepath"
	"time"

	"paystubs/internal/utils"
)

const maxRetries = 3

// Message is a single outbound email. AttachmentPath, when set, must point
// at an existing file.
type Message struct {
	To             string
	Subject        string
	Body           string
	AttachmentPath string
	CC             []string
}

// Result mirrors the per-recipient delivery report returned by the API.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Email   string `json:"email"`
}

// Sender sends notification emails. The SMTP implementation is the only
// production one; tests inject fakes.
type Sender interface {
	Send(m Message) Result
}

// SMTPSender sends mail through a plain SMTP relay with optional auth.
type SMTPSender struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string

	// sendMail and retryBackoff are swappable for tests.
	sendMail     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	retryBackoff time.Duration
}

// New builds an SMTPSender from the application config.
func New(cfg utils.Config) *SMTPSender {
	return &SMTPSender{
		Server:       cfg.SMTP.Server,
		Port:         cfg.SMTP.Port,
		Username:     cfg.SMTP.Username,
		Password:     cfg.SMTP.Password,
		From:         cfg.SMTP.From,
		sendMail:     smtp.SendMail,
		retryBackoff: time.Second,
	}
}

// Send delivers the message, retrying transient failures with exponential
// backoff. An unconfigured server skips delivery instead of failing the
// whole processing run.
func (s *SMTPSender) Send(m Message) Result {
	if s.Server == "" {
		utils.Warn("SMTP not configured, skipping email", "to", m.To, "subject", m.Subject)
		return Result{Status: "skipped", Message: "SMTP not configured", Email: m.To}
	}

	if m.AttachmentPath != "" {
		if _, err := os.Stat(m.AttachmentPath); err != nil {
			return Result{
				Status:  "failed",
				Message: "Attachment not found: " + m.AttachmentPath,
				Email:   m.To,
			}
		}
	}

	raw, err := s.buildMIME(m)
	if err != nil {
		return Result{Status: "failed", Message: err.Error(), Email: m.To}
	}

	addr := fmt.Sprintf("%s:%d", s.Server, s.Port)
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Server)
	}

	rcpts := append([]string{m.To}, m.CC...)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := s.sendMail(addr, auth, s.From, rcpts, raw); err == nil {
			utils.Info("Email sent", "to", m.To, "subject", m.Subject, "attempt", attempt)
			return Result{Status: "success", Message: "Email sent successfully", Email: m.To}
		} else {
			lastErr = err
			utils.Error("Email send failed", "to", m.To, "attempt", attempt, "error", err)
		}
		if attempt < maxRetries {
			backoff := s.retryBackoff
			if backoff == 0 {
				backoff = time.Second
			}
			time.Sleep(backoff << (attempt - 1))
		}
	}

	return Result{
		Status:  "failed",
		Message: fmt.Sprintf("SMTP error after %d attempts: %v", maxRetries, lastErr),
		Email:   m.To,
	}
}

// buildMIME assembles a multipart/mixed message with a plain-text body and
// an optional base64 attachment.
func (s *SMTPSender) buildMIME(m Message) ([]byte, error) {
	var buf bytes.Buffer
	boundary := "paystub-mime-boundary"

	fmt.Fprintf(&buf, "From: %s\r\n", s.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	for _, cc := range m.CC {
		fmt.Fprintf(&buf, "Cc: %s\r\n", cc)
	}
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n", boundary)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	buf.WriteString(m.Body)
	buf.WriteString("\r\n")

	if m.AttachmentPath != "" {
		data, err := os.ReadFile(m.AttachmentPath)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		name := filepath.Base(m.AttachmentPath)
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		buf.WriteString("Content-Type: application/pdf\r\n")
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", name)

		enc := base64.StdEncoding.EncodeToString(data)
		for len(enc) > 76 {
			buf.WriteString(enc[:76])
			buf.WriteString("\r\n")
			enc = enc[76:]
		}
		buf.WriteString(enc)
		buf.WriteString("\r\n")
	}

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes(), nil
}
