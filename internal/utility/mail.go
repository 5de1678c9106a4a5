package utility

import (
	"net/smtp"
	"os"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	Host     string
	Port     string
	From     string
	Password string
	Sender   string

	send sendFunc
}

// NewMailerFromEnv reads MAILING_ADDRESS, MAILING_SERVICE_PSWD and optionally
// SMTP_HOST and SMTP_PORT.
func NewMailerFromEnv() *Mailer {
	m := &Mailer{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     os.Getenv("SMTP_PORT"),
		From:     os.Getenv("MAILING_ADDRESS"),
		Password: os.Getenv("MAILING_SERVICE_PSWD"),
		Sender:   "Checkout",
	}
	if m.Host == "" {
		m.Host = "smtp.gmail.com"
	}
	if m.Port == "" {
		m.Port = "587"
	}
	return m
}

func (m *Mailer) Configured() bool {
	return m != nil && m.From != "" && m.Password != ""
}

func (m *Mailer) SendMail(msg string, receiver string, subject string) error {
	message := []byte(
		"From: " + m.Sender + " <" + m.From + ">\r\n" +
			"To: " + receiver + "\r\n" +
			"Subject: " + subject + "\r\n\r\n" +
			msg,
	)

	auth := smtp.PlainAuth("", m.From, m.Password, m.Host)

	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	return send(m.Host+":"+m.Port, auth, m.From, []string{receiver}, message)
}
