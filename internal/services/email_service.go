package services

import (
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"carwash/internal/models"
)

type EmailService interface {
	SendVerificationCode(email, code string, ttl time.Duration) error
	SendKYCStatusEmail(to, name string, status models.KYCStatus, reason string) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// NewEmailService — пустой smtpHost включает dry-run: письма только логируются.
func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string, logger *zap.Logger) EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &emailService{from: fromEmail, logger: logger}
	if smtpHost != "" {
		s.dialer = gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	}
	return s
}

func (s *emailService) send(to, subject, body string) error {
	if s.dialer == nil {
		s.logger.Info("email dry-run", zap.String("to", to), zap.String("subject", subject))
		return nil
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	return s.dialer.DialAndSend(m)
}

func (s *emailService) SendVerificationCode(email, code string, ttl time.Duration) error {
	body := fmt.Sprintf(`
		<h3>Confirm your email</h3>
		<p>Your verification code: <strong>%s</strong></p>
		<p>The code is valid for %d minutes. If you did not request it, ignore this email.</p>
	`, code, int(ttl.Minutes()))

	if err := s.send(email, "Your verification code", body); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

func (s *emailService) SendKYCStatusEmail(to, name string, status models.KYCStatus, reason string) error {
	var subject, body string
	switch status {
	case models.KYCVerified:
		subject = "Your account is verified"
		body = fmt.Sprintf(`
			<h2>Hi %s,</h2>
			<p>Your KYC review is complete and your account is now active.</p>
		`, html.EscapeString(name))
	case models.KYCRejected:
		subject = "Your KYC was not approved"
		body = fmt.Sprintf(`
			<h2>Hi %s,</h2>
			<p>We could not approve your KYC submission.</p>
			<p>Reason: %s</p>
			<p>Update your profile or documents and resubmit.</p>
		`, html.EscapeString(name), html.EscapeString(reason))
	default:
		return nil
	}
	if err := s.send(to, subject, body); err != nil {
		return fmt.Errorf("failed to send kyc status email: %w", err)
	}
	return nil
}
