// internal/dispatch/smtp.go
package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPDialer opens SMTP connections with optional STARTTLS.
type SMTPDialer struct{}

func (SMTPDialer) Dial(ctx context.Context, cfg TransportConfig) (Conn, error) {
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	netConn, err := d.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	// The deadline covers the greeting, EHLO, STARTTLS and AUTH; Authenticate
	// clears it.
	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	} else if cfg.ConnectTimeout > 0 {
		_ = netConn.SetDeadline(time.Now().Add(cfg.ConnectTimeout))
	}

	client, err := smtp.NewClient(netConn, cfg.Host)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("failed to read SMTP greeting: %w", err)
	}

	localName := cfg.LocalName
	if localName == "" {
		localName = "localhost"
	}
	if err := client.Hello(localName); err != nil {
		client.Close()
		return nil, fmt.Errorf("EHLO failed: %w", err)
	}

	if cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			client.Close()
			return nil, fmt.Errorf("server %s does not support STARTTLS", cfg.Address())
		}
		tlsConfig := &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	return &smtpConn{client: client, netConn: netConn}, nil
}

type smtpConn struct {
	client  *smtp.Client
	netConn net.Conn
}

func (c *smtpConn) Authenticate(username, password string) error {
	if username != "" {
		if err := c.client.Auth(sasl.NewPlainClient("", username, password)); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	return c.netConn.SetDeadline(time.Time{})
}

func (c *smtpConn) Send(from, to string, msg []byte) error {
	err := c.client.SendMail(from, []string{to}, bytes.NewReader(msg))
	if err != nil && !IsDisconnected(err) {
		// leave the connection ready for the next MAIL FROM
		_ = c.client.Reset()
	}
	return err
}

func (c *smtpConn) Quit() error {
	return c.client.Quit()
}

func (c *smtpConn) Close() error {
	return c.client.Close()
}

var disconnectPhrases = []string{
	"connection reset",
	"broken pipe",
	"use of closed network connection",
	"connection closed",
	"server disconnected",
	"not connected",
}

// IsDisconnected reports whether err means the session is gone and a
// reconnect may succeed.
func IsDisconnected(err error) bool {
	if err == nil {
		return false
	}

	for _, target := range []error{
		errNotConnected,
		io.EOF,
		io.ErrUnexpectedEOF,
		net.ErrClosed,
		syscall.ECONNRESET,
		syscall.EPIPE,
		syscall.ECONNABORTED,
	} {
		if stderrors.Is(err, target) {
			return true
		}
	}

	var smtpErr *smtp.SMTPError
	if stderrors.As(err, &smtpErr) {
		return smtpErr.Code == 421
	}

	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range disconnectPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
