// Package email sends portal transactional mail via SMTP.
package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"reviewport/api/internal/config"
)

// Service sends plain-text mail. When SMTP is not configured it degrades to
// logging the message, which keeps password resets usable in development.
type Service struct {
	cfg    config.SMTPConfig
	server string
	auth   smtp.Auth
	logger *zap.Logger
}

func NewService(cfg config.SMTPConfig, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		server: cfg.Host + ":" + cfg.Port,
		auth:   smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host),
		logger: logger.With(zap.String("component", "email")),
	}
}

func (s *Service) IsConfigured() bool {
	return s.cfg.Host != "" && s.cfg.Port != "" && s.cfg.From != ""
}

// Send delivers a plain-text message to one recipient.
func (s *Service) Send(to, subject, body string) error {
	if !s.IsConfigured() {
		s.logger.Info("smtp not configured, mail suppressed",
			zap.String("to", to),
			zap.String("subject", subject),
		)
		return nil
	}

	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	}

	msg := []byte(strings.Join([]string{
		"To: " + to,
		"From: " + from,
		"Subject: " + subject,
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n"))

	if err := smtp.SendMail(s.server, s.auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// SendPasswordReset mails the reset link for a requested password reset.
func (s *Service) SendPasswordReset(to, name, resetURL string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nA password reset was requested for your account.\n\nReset your password: %s\n\nThe link expires in one hour. If you did not request this, you can ignore this message.\n",
		name, resetURL,
	)
	return s.Send(to, "Reset your password", body)
}
