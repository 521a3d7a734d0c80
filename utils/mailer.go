package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"outreach/config"
)

type MailServiceInterface interface {
	Send(email Email) (string, error)
}

type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// SMTPMailer delivers outreach emails through a single SMTP account
type SMTPMailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
	domain   string
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	domain := "localhost"
	if at := strings.LastIndex(cfg.FromEmail, "@"); at >= 0 {
		domain = cfg.FromEmail[at+1:]
	}
	return &SMTPMailer{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.FromEmail,
		fromName: cfg.FromName,
		domain:   domain,
	}
}

// Send delivers the email and returns the Message-ID it was sent with
func (m *SMTPMailer) Send(email Email) (string, error) {
	msg, messageID := m.buildMessage(email)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("error sending email: %w", err)
	}
	return messageID, nil
}

func (m *SMTPMailer) buildMessage(email Email) (*gomail.Message, string) {
	from := email.From
	if from == "" {
		from = m.from
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), m.domain)

	msg := gomail.NewMessage()
	if m.fromName != "" {
		msg.SetAddressHeader("From", from, m.fromName)
	} else {
		msg.SetHeader("From", from)
	}
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/plain", email.Body)
	return msg, messageID
}
