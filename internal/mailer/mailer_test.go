package mailer

import (
	"net/smtp"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSend_SkippedWhenUnconfigured(t *testing.T) {
	s := &SMTPSender{From: "payroll@company.com"}

	res := s.Send(Message{To: "john@example.com", Subject: "Hi", Body: "Body"})
	assert.Equal(t, "skipped", res.Status)
	assert.Equal(t, "john@example.com", res.Email)
}

func TestSend_MissingAttachmentFails(t *testing.T) {
	s := &SMTPSender{Server: "smtp.example.com", Port: 2525, From: "payroll@company.com"}

	res := s.Send(Message{
		To:             "john@example.com",
		Subject:        "Your Paystub",
		Body:           "Attached",
		AttachmentPath: "/does/not/exist.pdf",
	})
	assert.Equal(t, "failed", res.Status)
	assert.Contains(t, res.Message, "Attachment not found")
}

func TestSend_Success(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s := &SMTPSender{
		Server:   "smtp.example.com",
		Port:     2525,
		Username: "user",
		Password: "pass",
		From:     "payroll@company.com",
		sendMail: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			return nil
		},
	}

	attachment := filepath.Join(t.TempDir(), "paystub_John_Doe_2023-12-15.pdf")
	assert.NoError(t, os.WriteFile(attachment, []byte("%PDF-1.4 fake"), 0o644))

	res := s.Send(Message{
		To:             "john@example.com",
		Subject:        "Your Paystub is Ready",
		Body:           "Dear John",
		AttachmentPath: attachment,
		CC:             []string{"hr@company.com"},
	})

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, "payroll@company.com", gotFrom)
	assert.Equal(t, []string{"john@example.com", "hr@company.com"}, gotTo)

	raw := string(gotMsg)
	assert.Contains(t, raw, "To: john@example.com")
	assert.Contains(t, raw, "Cc: hr@company.com")
	assert.Contains(t, raw, "Content-Type: multipart/mixed")
	assert.Contains(t, raw, "Content-Disposition: attachment; filename=\"paystub_John_Doe_2023-12-15.pdf\"")
	assert.Contains(t, raw, "Dear John")
}

func TestSend_ReportsFailureAfterRetries(t *testing.T) {
	attempts := 0
	s := &SMTPSender{
		Server:       "smtp.example.com",
		Port:         2525,
		From:         "payroll@company.com",
		retryBackoff: time.Millisecond,
		sendMail: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			attempts++
			return assert.AnError
		},
	}

	res := s.Send(Message{To: "john@example.com", Subject: "Hi", Body: "Body"})
	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, maxRetries, attempts)
	assert.Contains(t, res.Message, "SMTP error")
}

func TestPaystubTemplate(t *testing.T) {
	subject, body := PaystubTemplate("John Doe", "en")
	assert.Equal(t, "Your Paystub is Ready", subject)
	assert.Contains(t, body, "Dear John Doe")

	subject, body = PaystubTemplate("Ana Pérez", "do")
	assert.Equal(t, "Su Comprobante de Pago Está Listo", subject)
	assert.Contains(t, body, "Estimado/a Ana Pérez")
	assert.Contains(t, body, "Departamento de Nómina")

	// Unknown languages fall back to English.
	subject, _ = PaystubTemplate("John", "fr")
	assert.Equal(t, "Your Paystub is Ready", subject)
}
