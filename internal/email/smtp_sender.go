package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig describe el relay de salida.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// UseTLS abre la conexion con TLS implicito (puerto 465 tipicamente).
	UseTLS bool
}

// SMTPSender envia correos via SMTP.
type SMTPSender struct {
	cfg  SMTPConfig
	addr string
	auth smtp.Auth
	now  func() time.Time
}

var ErrNotConfigured = errors.New("smtp host and from address are required")

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	s := &SMTPSender{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		now:  time.Now,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s, nil
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	to := strings.TrimSpace(m.To)
	if to == "" {
		return errors.New("recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw := []byte(buildMessage(s.cfg.From, s.cfg.FromName, to, m.Subject, m.Body, s.now()))
	if !s.cfg.UseTLS {
		return smtp.SendMail(s.addr, s.auth, s.cfg.From, []string{to}, raw)
	}
	return s.sendImplicitTLS(ctx, to, raw)
}

func (s *SMTPSender) sendImplicitTLS(ctx context.Context, to string, raw []byte) error {
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: s.cfg.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Quit()

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// buildMessage arma headers y cuerpo. Los valores de header no pueden traer
// saltos de linea.
func buildMessage(from, fromName, to, subject, body string, date time.Time) string {
	fromHeader := from
	if name := headerValue(fromName); name != "" {
		fromHeader = fmt.Sprintf("%s <%s>", name, from)
	}

	var b strings.Builder
	b.WriteString("From: " + headerValue(fromHeader) + "\r\n")
	b.WriteString("To: " + headerValue(to) + "\r\n")
	b.WriteString("Subject: " + headerValue(subject) + "\r\n")
	b.WriteString("Date: " + date.UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}

func headerValue(v string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(v))
}
