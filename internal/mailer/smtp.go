package mailer

import (
	"errors"
	"net/http"

	mail "gopkg.in/mail.v2"
)

// SMTPClient is the dev/local transport: same Client contract as the
// SendGrid adapter, pointed at a catch-all SMTP box.
type SMTPClient struct {
	dialer    *mail.Dialer
	fromEmail string
}

func NewSMTPClient(host string, port int, username, password, fromEmail string) (*SMTPClient, error) {
	if host == "" {
		return nil, errors.New("smtp host is required")
	}
	if fromEmail == "" {
		return nil, errors.New("from email is required")
	}
	return &SMTPClient{
		dialer:    mail.NewDialer(host, port, username, password),
		fromEmail: fromEmail,
	}, nil
}

func (c *SMTPClient) Send(templateFile, username, email string, data any) (int, error) {
	subject, body, err := renderTemplate(templateFile, data)
	if err != nil {
		return -1, err
	}

	m := mail.NewMessage()
	m.SetAddressHeader("From", c.fromEmail, FromName)
	m.SetAddressHeader("To", email, username)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := c.dialer.DialAndSend(m); err != nil {
		return -1, err
	}
	return http.StatusOK, nil
}
