package mailer

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Sender hands a message to the mail collaborator. Callers treat failures as
// log-only; nothing upstream depends on delivery.
type Sender interface {
	Send(to, toName, subject, htmlBody string) error
}

type SMTPSender struct {
	host     string
	port     string
	user     string
	pass     string
	from     string
	fromName string
}

func NewSMTPSender(host, port, user, pass, from, fromName string) *SMTPSender {
	return &SMTPSender{host: host, port: port, user: user, pass: pass, from: from, fromName: fromName}
}

func (s *SMTPSender) Send(to, toName, subject, htmlBody string) error {
	fromHeader := fmt.Sprintf("%s <%s>", s.fromName, s.from)
	toHeader := to
	if toName != "" {
		toHeader = fmt.Sprintf("%s <%s>", toName, to)
	}

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", toHeader),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody,
	}, "\r\n")

	log.Printf("[MAIL] smtp sending to=%s via=%s:%s", to, s.host, s.port)
	if err := s.sendWithTimeout(to, []byte(msg)); err != nil {
		return err
	}
	log.Printf("[MAIL] sent to=%s", to)
	return nil
}

func (s *SMTPSender) sendWithTimeout(to string, msg []byte) error {
	addr := net.JoinHostPort(s.host, s.port)

	conn, err := net.DialTimeout("tcp", addr, 8*time.Second)
	if err != nil {
		return err
	}
	// deadline covers the whole exchange, not just the dial
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))

	return s.exchange(conn, to, msg)
}

// exchange runs the SMTP conversation on an established connection and owns
// closing it on every path.
func (s *SMTPSender) exchange(conn net.Conn, to string, msg []byte) error {
	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = c.Quit() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return err
		}
	}
	if s.user != "" {
		auth := smtp.PlainAuth("", s.user, s.pass, s.host)
		if err := c.Auth(auth); err != nil {
			return err
		}
	}

	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
