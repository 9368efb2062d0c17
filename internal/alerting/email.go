package alerting

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ErrSMTPNotConfigured is returned when host or credentials are missing.
var ErrSMTPNotConfigured = errors.New("alerting: smtp not configured")

// SMTPOptions configure the email notifier.
type SMTPOptions struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromEmail string
	FromName  string
	// UseSSL dials TLS directly; otherwise UseTLS upgrades with STARTTLS.
	UseSSL  bool
	UseTLS  bool
	Timeout time.Duration
}

// EmailNotifier sends plain-text mail over SMTP.
type EmailNotifier struct {
	opts   SMTPOptions
	logger zerolog.Logger
	send   func(ctx context.Context, from, to string, body []byte) error
}

// NewEmailNotifier constructs an SMTP notifier.
func NewEmailNotifier(opts SMTPOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.FromName == "" {
		opts.FromName = "BroadcastBoard"
	}
	if opts.FromEmail == "" {
		opts.FromEmail = opts.User
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	n := &EmailNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
	n.send = n.deliver
	return n
}

// Notify mails msg to the address.
func (n *EmailNotifier) Notify(ctx context.Context, to string, msg Message) error {
	if to == "" {
		return ErrNoDestination
	}
	if n.opts.Host == "" || n.opts.User == "" || n.opts.Password == "" {
		return ErrSMTPNotConfigured
	}

	body, err := n.buildMessage(to, msg)
	if err != nil {
		return err
	}
	if err := n.send(ctx, n.opts.FromEmail, to, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	n.logger.Debug().Str("to", to).Msg("alert sent (email)")
	return nil
}

func (n *EmailNotifier) buildMessage(to string, msg Message) ([]byte, error) {
	from := mail.Address{Name: n.opts.FromName, Address: n.opts.FromEmail}
	rcpt := mail.Address{Address: to}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", rcpt.String())
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.Text)); err != nil {
		return nil, fmt.Errorf("encode email body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode email body: %w", err)
	}
	return buf.Bytes(), nil
}

func (n *EmailNotifier) deliver(ctx context.Context, from, to string, body []byte) error {
	addr := net.JoinHostPort(n.opts.Host, strconv.Itoa(n.opts.Port))
	dialer := &net.Dialer{Timeout: n.opts.Timeout}
	tlsConfig := &tls.Config{ServerName: n.opts.Host}

	var (
		conn net.Conn
		err  error
	)
	if n.opts.UseSSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(n.opts.Timeout))
	}

	client, err := smtp.NewClient(conn, n.opts.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if !n.opts.UseSSL && n.opts.UseTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if err := client.Auth(smtp.PlainAuth("", n.opts.User, n.opts.Password, n.opts.Host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

var _ Notifier = (*EmailNotifier)(nil)
