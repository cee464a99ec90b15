package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"insiderwatch/backend/internal/logger"
)

const defaultSMTPTimeout = 20 * time.Second

// ErrMailerNotConfigured is returned when no SMTP host or sender is set.
var ErrMailerNotConfigured = errors.New("alert: SMTP mailer not configured")

// ErrNoValidRecipients is returned when every recipient address is malformed.
var ErrNoValidRecipients = errors.New("alert: no valid email recipients")

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From    string
	Timeout time.Duration
}

// SMTPMailer sends alert emails over SMTP with mandatory STARTTLS.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer returns a mailer for cfg.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &SMTPMailer{cfg: cfg}
}

// Configured reports whether the mailer can send.
func (m *SMTPMailer) Configured() bool {
	return m != nil && m.cfg.Host != "" && m.cfg.From != ""
}

// Send delivers e to every recipient as a separate message over one connection.
func (m *SMTPMailer) Send(ctx context.Context, recipients []string, e Email) error {
	if !m.Configured() {
		return ErrMailerNotConfigured
	}
	if len(recipients) == 0 {
		return nil
	}
	msgs, err := m.messages(recipients, e)
	if err != nil {
		return err
	}
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password))
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msgs...); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) messages(recipients []string, e Email) ([]*mail.Msg, error) {
	msgs := make([]*mail.Msg, 0, len(recipients))
	for _, to := range recipients {
		msg := mail.NewMsg()
		if err := msg.From(m.cfg.From); err != nil {
			return nil, fmt.Errorf("sender %q: %w", m.cfg.From, err)
		}
		if err := msg.To(to); err != nil {
			logger.Get().Warn("alert: skipping invalid recipient", zap.String("recipient", to), zap.Error(err))
			continue
		}
		msg.Subject(e.Subject)
		msg.SetBodyString(mail.TypeTextPlain, e.Text)
		if e.HTML != "" {
			msg.AddAlternativeString(mail.TypeTextHTML, e.HTML)
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil, ErrNoValidRecipients
	}
	return msgs, nil
}
