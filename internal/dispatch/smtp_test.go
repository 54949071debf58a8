package dispatch

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"batch-mailer/internal/common/errors"
	"batch-mailer/internal/common/logger"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedMail struct {
	from string
	to   []string
	data string
}

// mailBackend accepts one user and can drop the connection on chosen recipients.
type mailBackend struct {
	mu       sync.Mutex
	username string
	password string
	dropOnce map[string]bool
	messages []receivedMail
	sessions int
}

func (b *mailBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	b.mu.Lock()
	b.sessions++
	b.mu.Unlock()
	return &mailSession{backend: b}, nil
}

func (b *mailBackend) Messages() []receivedMail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]receivedMail(nil), b.messages...)
}

type mailSession struct {
	backend *mailBackend
	authed  bool
	from    string
	to      []string
}

func (s *mailSession) AuthPlain(username, password string) error {
	if username != s.backend.username || password != s.backend.password {
		return &smtp.SMTPError{Code: 535, EnhancedCode: smtp.EnhancedCode{5, 7, 8}, Message: "invalid credentials"}
	}
	s.authed = true
	return nil
}

func (s *mailSession) Mail(from string, opts *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *mailSession) Rcpt(to string, opts *smtp.RcptOptions) error {
	if strings.HasSuffix(to, "@rejected.test") {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "no such user"}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *mailSession) Data(r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rcpt := range s.to {
		if b.dropOnce[rcpt] {
			delete(b.dropOnce, rcpt)
			return &smtp.SMTPError{Code: 421, EnhancedCode: smtp.EnhancedCode{4, 4, 2}, Message: "connection dropped"}
		}
	}
	b.messages = append(b.messages, receivedMail{from: s.from, to: s.to, data: string(body)})
	return nil
}

func (s *mailSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *mailSession) Logout() error {
	return nil
}

func startMailServer(t *testing.T, be *mailBackend) TransportConfig {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { srv.Close() })

	addr := ln.Addr().(*net.TCPAddr)
	return TransportConfig{
		Host:           "127.0.0.1",
		Port:           addr.Port,
		Username:       "me@sender.test",
		Password:       "app-password",
		ConnectTimeout: 5 * time.Second,
	}
}

func TestSMTPDispatch_EndToEnd(t *testing.T) {
	be := &mailBackend{
		username: "me@sender.test",
		password: "app-password",
		dropOnce: map[string]bool{"b@globex.test": true},
	}
	cfg := startMailServer(t, be)

	d := NewDispatcher(Options{Transport: cfg, Dialer: SMTPDialer{}, Logger: logger.NewTestLogger(t)})
	req := Request{
		RunID: "e2e",
		Rows: []Row{
			{"Email": "a@acme.test", "Org": "Acme"},
			{"Email": "b@globex.test", "Org": "Globex"},
			{"Email": "c@rejected.test", "Org": "Nobody"},
			{"Email": "d@initech.test", "Org": "Initech"},
		},
		EmailColumn:   "Email",
		CompanyColumn: "Org",
		UserDetails:   map[string]string{"Your Name": "Sam"},
		Template:      "Subject: Hello [Company Name]\n\nDear [Company Name],\n\n[Your Name]",
		Pacing:        Pacing{BatchSize: 2},
	}

	result, err := d.Dispatch(context.Background(), req, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, result.Status)
	require.Len(t, result.Outcomes, 4)
	assert.Equal(t, OutcomeSent, result.Outcomes[0].Status)

	assert.Equal(t, OutcomeSent, result.Outcomes[1].Status)
	assert.True(t, result.Outcomes[1].Reconnected)
	assert.Equal(t, 2, result.Outcomes[1].Attempts)

	assert.Equal(t, OutcomeFailed, result.Outcomes[2].Status)
	assert.False(t, result.Outcomes[2].Reconnected)
	assert.True(t, errors.HasCode(result.Outcomes[2].Err, errors.ErrCodeMessageSendFailed))

	assert.Equal(t, OutcomeSent, result.Outcomes[3].Status)

	msgs := be.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "me@sender.test", msgs[0].from)
	assert.Equal(t, []string{"b@globex.test"}, msgs[1].to)
	assert.Contains(t, msgs[1].data, "Subject: Hello Globex\r\n")
	assert.Contains(t, msgs[1].data, "Dear Globex,\r\n\r\nSam")
	assert.Equal(t, 2, be.sessions)
}

func TestSMTPDispatch_BadCredentials(t *testing.T) {
	be := &mailBackend{username: "me@sender.test", password: "right"}
	cfg := startMailServer(t, be)
	cfg.Password = "wrong"

	d := NewDispatcher(Options{Transport: cfg, Dialer: SMTPDialer{}, Logger: logger.NewTestLogger(t)})
	result, err := d.Dispatch(context.Background(), Request{
		Rows:        []Row{{"Email": "a@acme.test"}},
		EmailColumn: "Email",
		Template:    "Subject: x\ny",
		Pacing:      Pacing{BatchSize: 1},
	}, nil, nil)

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailed))
	assert.Equal(t, RunConnectionFailed, result.Status)
	assert.Empty(t, be.Messages())
}

func TestSMTPDialer_RequiresSTARTTLS(t *testing.T) {
	be := &mailBackend{username: "me@sender.test", password: "app-password"}
	cfg := startMailServer(t, be)
	cfg.UseTLS = true

	_, err := SMTPDialer{}.Dial(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STARTTLS")
}

func TestSMTPDialer_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = SMTPDialer{}.Dial(context.Background(), TransportConfig{Host: "127.0.0.1", Port: port, ConnectTimeout: time.Second})
	assert.Error(t, err)
}
