// Package mailer delivers transactional mail such as password reset links.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

const (
	defaultDialTimeout   = 20 * time.Second
	passwordResetSubject = "Reset your password"
)

var (
	errMissingHost   = errors.New("smtp host is required")
	errMissingSender = errors.New("smtp sender is required")
)

// SMTPConfig configures the SMTP mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	dialer *mail.Dialer
	from   string
	logger *zap.Logger
}

// NewSMTPMailer validates the configuration and prepares the dialer.
func NewSMTPMailer(cfg SMTPConfig, logger *zap.Logger) (*SMTPMailer, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errMissingHost
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}
	if from == "" {
		return nil, errMissingSender
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := mail.NewDialer(host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = defaultDialTimeout
	if cfg.Timeout > 0 {
		dialer.Timeout = cfg.Timeout
	}
	return &SMTPMailer{dialer: dialer, from: from, logger: logger}, nil
}

// SendPasswordReset mails the reset link to the recipient.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to string, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	message := newPasswordResetMessage(m.from, to, link)
	if err := m.dialer.DialAndSend(message); err != nil {
		m.logger.Error("password reset mail failed", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send password reset: %w", err)
	}
	m.logger.Info("password reset mail sent", zap.String("to", to))
	return nil
}

func newPasswordResetMessage(from, to, link string) *mail.Message {
	message := mail.NewMessage()
	message.SetHeader("From", from)
	message.SetHeader("To", to)
	message.SetHeader("Subject", passwordResetSubject)
	message.SetBody("text/plain", fmt.Sprintf("Someone requested a password reset for your account.\n\nOpen this link to choose a new password:\n%s\n\nIf you did not ask for this, ignore this email.", link))
	message.AddAlternative("text/html", fmt.Sprintf(`<p>Someone requested a password reset for your account.</p><p><a href="%s">Choose a new password</a></p><p>If you did not ask for this, ignore this email.</p>`, link))
	return message
}

// LogMailer records reset links in the log instead of sending them. It backs development setups without SMTP.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// SendPasswordReset logs the reset link.
func (m *LogMailer) SendPasswordReset(_ context.Context, to string, link string) error {
	m.logger.Info("password reset link", zap.String("to", to), zap.String("link", link))
	return nil
}
