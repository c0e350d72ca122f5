package service

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// EmailService sends billing notices. Delivery is best effort: callers get a
// boolean rather than an error because a bounced notice never aborts the
// billing action that triggered it.
type EmailService interface {
	Send(to, subject, body string) bool
	SendInvoiceNotice(to string, amount int64, dueDate string) bool
	SendSuspensionNotice(to, subFor string) bool
}

type emailService struct {
	host     string
	port     int
	username string
	password string
	from     string

	emailLogger zerolog.Logger
}

// NewEmailService creates a new EmailService
func NewEmailService(host string, port int, username, password, from string, logger zerolog.Logger) EmailService {
	return &emailService{
		host:        host,
		port:        port,
		username:    username,
		password:    password,
		from:        from,
		emailLogger: logger.With().Str("service", "EmailService").Logger(),
	}
}

func (s *emailService) Send(to, subject, body string) bool {
	if s.host == "" {
		s.emailLogger.Debug().Str("to", to).Str("subject", subject).Msg("smtp not configured, notice dropped")
		return false
	}

	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(msg)); err != nil {
		s.emailLogger.Error().Err(err).Str("to", to).Msg("notice delivery failed")
		return false
	}
	return true
}

func (s *emailService) SendInvoiceNotice(to string, amount int64, dueDate string) bool {
	body := fmt.Sprintf("A new invoice of %d is due on %s. Unpaid invoices lead to service suspension.", amount, dueDate)
	return s.Send(to, "New invoice on your account", body)
}

func (s *emailService) SendSuspensionNotice(to, subFor string) bool {
	body := fmt.Sprintf("Your service %q has been suspended over an unpaid invoice. Settle it to restore access; suspended services are removed after two weeks.", subFor)
	return s.Send(to, "Service suspended", body)
}
