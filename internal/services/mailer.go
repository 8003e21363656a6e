package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

type OutgoingEmail struct {
	To          string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Mailer sends one email and returns its message id.
type Mailer interface {
	Send(ctx context.Context, msg OutgoingEmail) (string, error)
}

type SMTPMailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

type SMTPMailer struct {
	client   *mail.Client
	from     string
	fromName string
	domain   string
}

func NewSMTPMailer(cfg SMTPMailerConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	domain := cfg.Host
	if at := strings.LastIndex(cfg.From, "@"); at >= 0 {
		domain = cfg.From[at+1:]
	}
	return &SMTPMailer{client: client, from: cfg.From, fromName: cfg.FromName, domain: domain}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, email OutgoingEmail) (string, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.fromName, m.from); err != nil {
		return "", fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(email.To); err != nil {
		return "", fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextHTML, email.HTMLBody)

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.domain)
	msg.SetGenHeader(mail.HeaderMessageID, messageID)

	for _, a := range email.Attachments {
		err := msg.AttachReader(a.Name, bytes.NewReader(a.Content),
			mail.WithFileContentType(mail.ContentType(a.ContentType)))
		if err != nil {
			return "", fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID, nil
}
