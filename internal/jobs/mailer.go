package jobs

import (
	"context"
	"fmt"
	"strings"

	"cadence/config"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Mail is one outgoing message.
type Mail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers mail and returns the Message-ID it was sent with.
type Mailer interface {
	Send(ctx context.Context, m Mail) (string, error)
}

// SMTPMailer sends through the configured SMTP relay, one connection per
// message.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger.Named("smtp")}
}

func (s *SMTPMailer) Send(ctx context.Context, m Mail) (string, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return "", fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return "", fmt.Errorf("to address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	if m.Text != "" {
		msg.AddAlternativeString(mail.TypeTextPlain, m.Text)
	}
	id := messageID(s.cfg.From)
	msg.SetGenHeader(mail.HeaderMessageID, "<"+id+">")

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password))
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Debug("mail sent", zap.String("to", m.To), zap.String("message_id", id))
	return id, nil
}

// messageID builds a unique id in the sender's domain.
func messageID(from string) string {
	domain := "cadence.local"
	if at := strings.LastIndex(from, "@"); at >= 0 {
		domain = strings.TrimRight(from[at+1:], "> ")
	}
	return uuid.NewString() + "@" + domain
}
