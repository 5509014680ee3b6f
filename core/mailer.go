package core

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers transactional mail (currently only the OTP message).
type Mailer interface {
	SendOTP(ctx context.Context, to, code string) error
}

// SMTPMailer sends through a plain SMTP relay with optional AUTH.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
	}
}

func (m *SMTPMailer) SendOTP(_ context.Context, to, code string) error {
	subject := "Your password reset code"
	body := fmt.Sprintf("Your one-time password reset code is: %s\r\n\r\nIt expires in 10 minutes. If you did not request this, ignore this message.\r\n", code)

	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg))
}
