// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

// Package mail delivers magic-link tokens to enrolled email addresses.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"text/template"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// MessageParams is passed as data when executing the message template.
type MessageParams struct {
	Email         string
	Token         string
	ExpiryMinutes float64
}

// DefaultTemplate is the default magic-link message body.
const DefaultTemplate = `Hello {{.Email}},

You requested to log in to your Sorae account. Use the token below to
complete your login:

    {{.Token}}

This token will expire in {{printf "%.f" .ExpiryMinutes}} minutes.

If you didn't request this login, please ignore this email.

Best regards,
The Sorae Team
`

// renderBody executes tmpl (or DefaultTemplate if nil) with the link params.
func renderBody(tmpl *template.Template, email, token string, expiry time.Duration) (string, error) {
	if tmpl == nil {
		tmpl = template.Must(template.New("magiclink").Parse(DefaultTemplate))
	}
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, MessageParams{
		Email:         email,
		Token:         token,
		ExpiryMinutes: expiry.Minutes(),
	})
	if err != nil {
		return "", oops.Code("MAIL_TEMPLATE_FAILED").Wrap(err)
	}
	return buf.String(), nil
}

// SMTPConfig configures wire delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Subject  string
	Username string
	Password string

	// Template overrides DefaultTemplate when set.
	Template *template.Template
}

// SMTPSender delivers magic links over SMTP with bounded retries. Transient
// delivery failures are retried with exponential backoff before the
// enrollment or rotation is failed.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("from address is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "Your Sorae Magic Link"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{cfg: cfg, logger: logger, send: smtp.SendMail}, nil
}

// SendMagicLink delivers the token to the address.
func (s *SMTPSender) SendMagicLink(ctx context.Context, email, token string, expiry time.Duration) error {
	body, err := renderBody(s.cfg.Template, email, token, expiry)
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.cfg.From, email, s.cfg.Subject, body)

	var auth smtp.Auth
	if s.cfg.Password != "" {
		username := s.cfg.Username
		if username == "" {
			username = s.cfg.From
		}
		auth = smtp.PlainAuth("", username, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(_ context.Context) error {
		if sendErr := s.send(addr, auth, s.cfg.From, []string{email}, []byte(msg)); sendErr != nil {
			s.logger.Warn("magic link delivery attempt failed",
				"host", s.cfg.Host,
				"error", sendErr)
			return retry.RetryableError(sendErr)
		}
		return nil
	})
	if err != nil {
		return oops.Code("MAIL_DELIVERY_FAILED").
			With("host", s.cfg.Host).
			Wrap(err)
	}

	s.logger.Info("magic link email sent", "email", email)
	return nil
}

// LogSender writes magic links to the logger instead of the wire. It stands
// in for real delivery in demos and development.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// SendMagicLink logs the token at info level.
func (s *LogSender) SendMagicLink(_ context.Context, email, token string, expiry time.Duration) error {
	s.logger.Info("magic link issued",
		"email", email,
		"token", token,
		"expires_in", expiry.String())
	return nil
}
