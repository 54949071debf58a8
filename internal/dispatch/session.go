// internal/dispatch/session.go
package dispatch

import (
	"context"
	stderrors "errors"
	"net"
	"strconv"
	"time"

	"batch-mailer/internal/common/errors"
	"batch-mailer/internal/common/logger"
	"batch-mailer/internal/common/metrics"
)

// TransportConfig holds the mail server parameters. Username is also the
// sender address.
type TransportConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	LocalName          string
}

func (c TransportConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dialer connects to the mail server and completes the greeting and the
// security handshake. A returned Conn is not yet authenticated.
type Dialer interface {
	Dial(ctx context.Context, cfg TransportConfig) (Conn, error)
}

// Conn is one live connection to the mail server.
type Conn interface {
	Authenticate(username, password string) error
	Send(from, to string, msg []byte) error
	Quit() error
	Close() error
}

var errNotConnected = stderrors.New("session not connected")

const defaultConnectTimeout = 30 * time.Second

// Session owns a single connection for one run and is not safe for
// concurrent use.
type Session struct {
	cfg    TransportConfig
	dialer Dialer
	logger logger.Logger
	now    func() time.Time

	conn  Conn
	state SessionState
}

func NewSession(cfg TransportConfig, dialer Dialer, log logger.Logger) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Session{
		cfg:    cfg,
		dialer: dialer,
		logger: log,
		now:    time.Now,
		state:  StateDisconnected,
	}
}

func (s *Session) State() SessionState {
	return s.state
}

// Open connects and authenticates. Only this step is bounded by
// ConnectTimeout. Failures leave the session Disconnected.
func (s *Session) Open(ctx context.Context) error {
	if s.state == StateAuthenticated {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.dialer.Dial(dialCtx, s.cfg)
	if err != nil {
		s.state = StateDisconnected
		return errors.NewConnectionFailedError(s.cfg.Address(), err)
	}
	s.conn = conn
	s.state = StateConnected

	if err := conn.Authenticate(s.cfg.Username, s.cfg.Password); err != nil {
		s.drop()
		return errors.NewConnectionFailedError(s.cfg.Address(), err)
	}
	s.state = StateAuthenticated

	s.logger.Info("transport session opened", map[string]interface{}{
		"address":  s.cfg.Address(),
		"username": s.cfg.Username,
	})
	return nil
}

// Send transmits one message. A disconnect triggers exactly one reconnect
// and one retry of the same message; any other failure is final.
func (s *Session) Send(ctx context.Context, msg RenderedMessage) SendOutcome {
	outcome := SendOutcome{Recipient: msg.To}

	data, err := BuildMessage(s.cfg.Username, msg, s.now())
	if err != nil {
		return s.failed(outcome, err)
	}

	outcome.Attempts = 1
	err = s.transmit(msg.To, data)
	if err == nil {
		return s.sent(outcome)
	}
	if !IsDisconnected(err) {
		return s.failed(outcome, err)
	}

	s.logger.Warn("connection lost, reconnecting", map[string]interface{}{
		"recipient": msg.To,
		"error":     err,
	})
	s.drop()
	metrics.DispatchReconnects.Inc()
	outcome.Reconnected = true

	if err := s.Open(ctx); err != nil {
		return s.failed(outcome, err)
	}

	outcome.Attempts = 2
	if err := s.transmit(msg.To, data); err != nil {
		if IsDisconnected(err) {
			s.drop()
		}
		return s.failed(outcome, err)
	}
	return s.sent(outcome)
}

// Close ends the session. Errors are logged only.
func (s *Session) Close() {
	if s.conn == nil {
		s.state = StateDisconnected
		return
	}
	if err := s.conn.Quit(); err != nil {
		s.logger.Warn("quit failed, closing connection", map[string]interface{}{"error": err})
		if cerr := s.conn.Close(); cerr != nil {
			s.logger.Debug("close failed", map[string]interface{}{"error": cerr})
		}
	}
	s.conn = nil
	s.state = StateDisconnected
	s.logger.Info("transport session closed", nil)
}

func (s *Session) transmit(to string, data []byte) error {
	if s.conn == nil || s.state != StateAuthenticated {
		return errNotConnected
	}
	return s.conn.Send(s.cfg.Username, to, data)
}

func (s *Session) drop() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.state = StateDisconnected
}

func (s *Session) sent(outcome SendOutcome) SendOutcome {
	outcome.Status = OutcomeSent
	s.logger.Info("message sent", map[string]interface{}{
		"recipient":   outcome.Recipient,
		"attempts":    outcome.Attempts,
		"reconnected": outcome.Reconnected,
	})
	return outcome
}

func (s *Session) failed(outcome SendOutcome, err error) SendOutcome {
	stdErr, ok := errors.AsStandardError(err)
	if !ok {
		stdErr = errors.NewMessageSendFailedError(err)
	}
	outcome.Status = OutcomeFailed
	outcome.Error = err.Error()
	outcome.Err = stdErr
	s.logger.Error("message failed", map[string]interface{}{
		"recipient":   outcome.Recipient,
		"attempts":    outcome.Attempts,
		"reconnected": outcome.Reconnected,
		"error":       err,
	})
	return outcome
}
