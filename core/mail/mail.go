// Package mail delivers application email over SMTP. Transport settings come
// from the organization when it has its own SMTP host, otherwise from the
// service configuration.
package mail

import (
	"context"
	"errors"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"blik/config"
	"blik/core/store"
	"blik/core/utils"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, org *store.Organization, msg *Message) error
}

type smtpSender struct {
	cfg       *config.AppConfig
	encryptor *utils.Encryptor
	logger    *utils.Logger
}

func NewSMTPSender(cfg *config.AppConfig, encryptor *utils.Encryptor, logger *utils.Logger) Sender {
	return &smtpSender{cfg: cfg, encryptor: encryptor, logger: logger}
}

type transport struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	From     string
}

func (s *smtpSender) resolveTransport(org *store.Organization) (*transport, error) {
	if org != nil && strings.TrimSpace(org.SMTPHost) != "" {
		t := &transport{
			Host:     org.SMTPHost,
			Port:     org.SMTPPort,
			Username: org.SMTPUsername,
			UseTLS:   org.SMTPUseTLS,
			From:     org.SMTPFrom,
		}
		if len(org.SMTPPasswordEnc) > 0 {
			if s.encryptor == nil {
				return nil, errors.New("mail: organization smtp password set but no encryption key configured")
			}
			plain, err := s.encryptor.DecryptBlob(org.SMTPPasswordEnc)
			if err != nil {
				return nil, err
			}
			t.Password = string(plain)
		}
		if t.From == "" {
			t.From = s.cfg.SMTP.From
		}
		return t, nil
	}
	if strings.TrimSpace(s.cfg.SMTP.Host) == "" {
		return nil, errors.New("mail: no smtp transport configured")
	}
	return &transport{
		Host:     s.cfg.SMTP.Host,
		Port:     s.cfg.SMTP.Port,
		Username: s.cfg.SMTP.Username,
		Password: s.cfg.SMTP.Password,
		UseTLS:   s.cfg.SMTP.UseTLS,
		From:     s.cfg.SMTP.From,
	}, nil
}

func (s *smtpSender) Send(ctx context.Context, org *store.Organization, msg *Message) error {
	if msg == nil || strings.TrimSpace(msg.To) == "" {
		return errors.New("mail: message has no recipient")
	}
	t, err := s.resolveTransport(org)
	if err != nil {
		return err
	}
	m := gomail.NewMsg()
	if err := m.From(t.From); err != nil {
		return err
	}
	if err := m.To(msg.To); err != nil {
		return err
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	opts := []gomail.Option{gomail.WithPort(t.Port)}
	if t.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.Username),
			gomail.WithPassword(t.Password))
	}
	if t.UseTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	client, err := gomail.NewClient(t.Host, opts...)
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Printf("sent mail %q to %s", msg.Subject, msg.To)
	}
	return nil
}
