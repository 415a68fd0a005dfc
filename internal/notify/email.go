package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/constants"
)

// EmailSender 通过 SMTP 发送纯文本邮件
type EmailSender struct {
	cfg  config.EmailConfig
	send func(addr string, auth smtp.Auth, host, from string, to []string, msg []byte) error
}

// NewEmailSender 创建邮件发送方
func NewEmailSender(cfg config.EmailConfig) (*EmailSender, error) {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port == 0 || strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp host, port and from are required")
	}
	s := &EmailSender{cfg: cfg}
	switch {
	case cfg.UseSSL:
		s.send = sendMailWithSSL
	case cfg.UseTLS:
		s.send = sendMailWithStartTLS
	default:
		s.send = sendMailPlain
	}
	return s, nil
}

// Channel 渠道名称
func (s *EmailSender) Channel() string {
	return constants.NotifyChannelEmail
}

// Send 发送邮件；SMTP 调用本身不支持 context，仅在发送前检查取消
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.Email)
	if to == "" {
		return ErrRecipientMissing
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return ErrRecipientInvalid
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := buildFromAddress(s.cfg.From, s.cfg.FromName)
	body := buildEmailMessage(from, to, msg.Subject, msg.Body)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" || s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.Host, s.cfg.From, []string{to}, []byte(body)); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

func buildFromAddress(from, name string) string {
	if strings.TrimSpace(name) == "" {
		return from
	}
	encoded := mime.QEncoding.Encode("UTF-8", name)
	return (&mail.Address{Name: encoded, Address: from}).String()
}

func buildEmailMessage(from, to, subject, body string) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.String()
}

func sendMailWithSSL(addr string, auth smtp.Auth, host, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer client.Close()
	return authAndSend(client, auth, from, to, msg)
}

func sendMailWithStartTLS(addr string, auth smtp.Auth, host, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return err
	}
	return authAndSend(client, auth, from, to, msg)
}

func sendMailPlain(addr string, auth smtp.Auth, _ string, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()
	return authAndSend(client, auth, from, to, msg)
}

func authAndSend(client *smtp.Client, auth smtp.Auth, from string, to []string, msg []byte) error {
	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
