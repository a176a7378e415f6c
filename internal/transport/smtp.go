package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/luisant/mailcore/internal/domain"
)

// SMTPTransport delivers mail over a direct authenticated SMTP connection
// using the sender's host, port and password.
type SMTPTransport struct {
	dialTimeout time.Duration
}

// NewSMTPTransport creates the plain-SMTP transport.
func NewSMTPTransport(dialTimeout time.Duration) *SMTPTransport {
	return &SMTPTransport{dialTimeout: dialTimeout}
}

// Send opens a connection, authenticates with AUTH PLAIN and submits the
// message. Connection and auth failures happen before anything is sent and
// are fatal for the whole campaign; a rejected recipient is terminal for
// that recipient only.
func (t *SMTPTransport) Send(ctx context.Context, sender *domain.Sender, msg *Message) Outcome {
	if sender.Host == "" || sender.Port == 0 {
		return Failed(KindFatal, fmt.Errorf("sender %s has no SMTP host/port", sender.ID))
	}

	addr := fmt.Sprintf("%s:%d", sender.Host, sender.Port)
	c, err := dialSubmission(ctx, addr, sender.Host, t.dialTimeout)
	if err != nil {
		return Failed(KindFatal, fmt.Errorf("smtp dial %s: %w", addr, err))
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", sender.Email, sender.Password)); err != nil {
		return Failed(KindAuth, fmt.Errorf("smtp auth for %s: %w", sender.Email, err))
	}

	return submit(c, sender.Name, sender.Email, msg)
}

// dialSubmission connects to an SMTP submission endpoint. Port 465 is
// implicit TLS; everything else upgrades via STARTTLS when the server
// offers it.
func dialSubmission(ctx context.Context, addr, serverName string, timeout time.Duration) (*smtp.Client, error) {
	d := net.Dialer{Timeout: timeout}
	tlsConfig := &tls.Config{ServerName: serverName}

	if _, port, err := net.SplitHostPort(addr); err == nil && port == "465" {
		conn, err := tls.DialWithDialer(&d, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn), nil
	}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("starttls: %w", err)
	}
	return c, nil
}

// submit runs the MAIL/RCPT/DATA sequence on an authenticated client.
func submit(c *smtp.Client, fromName, fromAddr string, msg *Message) Outcome {
	raw, err := composeMIME(fromName, fromAddr, msg)
	if err != nil {
		return Failed(KindProtocol, err)
	}

	if err := c.Mail(fromAddr, nil); err != nil {
		return Failed(classifySMTP(err, KindFatal), fmt.Errorf("mail from: %w", err))
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return Failed(classifySMTP(err, KindRecipient), fmt.Errorf("rcpt %s: %w", msg.To, err))
	}

	w, err := c.Data()
	if err != nil {
		return Failed(classifySMTP(err, KindProtocol), fmt.Errorf("data: %w", err))
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return Failed(KindTransient, fmt.Errorf("write body: %w", err))
	}
	if err := w.Close(); err != nil {
		return Failed(classifySMTP(err, KindProtocol), fmt.Errorf("close data: %w", err))
	}

	c.Quit()
	return Delivered()
}

// classifySMTP maps an SMTP error to an outcome kind. 4xx responses and
// network errors are transient; 5xx responses take the phase's permanent
// kind (a 5xx on RCPT condemns the recipient, a 5xx on MAIL condemns the
// campaign).
func classifySMTP(err error, permanent Kind) Kind {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		if smtpErr.Code >= 400 && smtpErr.Code < 500 {
			return KindTransient
		}
		return permanent
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindTransient
}
