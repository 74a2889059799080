// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

// Package mailer delivers transactional mail over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/skynet-visitas/authd/internal/auth"
)

// Verify interface is satisfied.
var _ auth.Mailer = (*SMTPMailer)(nil)

// resetSubject is the subject line of the password-reset mail.
const resetSubject = "Restablecer contraseña - SkyNet Visitas"

// resetBodyTemplate is the plain-text body of the password-reset mail.
const resetBodyTemplate = `Hola {{.Name}},

Recibimos una solicitud para restablecer tu contraseña de SkyNet Visitas.

Para elegir una nueva contraseña, abre este enlace:

  {{.Link}}

El enlace expira en {{.TTL}}. Si no solicitaste el cambio, ignora este
mensaje; tu contraseña actual sigue siendo válida.

SkyNet Visitas
`

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// ResetTTL is rendered into the mail body so the recipient knows how
	// long the link lives.
	ResetTTL time.Duration
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Host == "" {
		return oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return oops.Code("MAIL_CONFIG_INVALID").With("port", c.Port).Errorf("smtp port is out of range")
	}
	if c.From == "" {
		return oops.Code("MAIL_CONFIG_INVALID").Errorf("from address is required")
	}
	return nil
}

// sendFunc matches smtp.SendMail, swapped out in tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends password-reset mail through a single SMTP relay.
// Transient delivery failures are retried with a constant backoff.
type SMTPMailer struct {
	cfg    Config
	tmpl   *template.Template
	logger *slog.Logger
	send   sendFunc

	retryInterval time.Duration
	maxRetries    uint64
}

// New creates an SMTPMailer.
func New(cfg Config, logger *slog.Logger) (*SMTPMailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.New("reset").Parse(resetBodyTemplate)
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_INVALID").Wrap(err)
	}
	return &SMTPMailer{
		cfg:           cfg,
		tmpl:          tmpl,
		logger:        logger,
		send:          smtp.SendMail,
		retryInterval: 2 * time.Second,
		maxRetries:    2,
	}, nil
}

// SendPasswordReset delivers the reset link to one recipient.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, name, link string) error {
	msg, err := m.buildMessage(to, name, link)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	backoff := retry.WithMaxRetries(m.maxRetries, retry.NewConstant(m.retryInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if sendErr := m.send(addr, auth, m.cfg.From, []string{to}, msg); sendErr != nil {
			m.logger.DebugContext(ctx, "smtp delivery attempt failed",
				slog.String("host", m.cfg.Host),
				slog.String("error", sendErr.Error()))
			return retry.RetryableError(sendErr)
		}
		return nil
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("host", m.cfg.Host).
			Wrap(err)
	}
	return nil
}

// buildMessage renders the full RFC 5322 message, headers included. The
// subject carries non-ASCII text and is Q-encoded.
func (m *SMTPMailer) buildMessage(to, name, link string) ([]byte, error) {
	var body bytes.Buffer
	err := m.tmpl.Execute(&body, struct {
		Name string
		Link string
		TTL  string
	}{
		Name: name,
		Link: link,
		TTL:  formatTTL(m.cfg.ResetTTL),
	})
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_FAILED").Wrap(err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", resetSubject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))

	return msg.Bytes(), nil
}

// formatTTL renders a duration for humans: "30 minutos", "24 horas".
func formatTTL(d time.Duration) string {
	if d <= 0 {
		d = 30 * time.Minute
	}
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", h)
	}
	minutes := int(d / time.Minute)
	if minutes <= 1 {
		return "1 minuto"
	}
	return fmt.Sprintf("%d minutos", minutes)
}
