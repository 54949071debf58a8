package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"batch-mailer/internal/common/errors"
	"batch-mailer/internal/common/logger"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransport() TransportConfig {
	return TransportConfig{Host: "smtp.test", Port: 587, Username: "me@sender.test", Password: "secret"}
}

func openSession(t *testing.T, d *fakeDialer) *Session {
	t.Helper()
	s := NewSession(testTransport(), d, logger.NewTestLogger(t))
	require.NoError(t, s.Open(context.Background()))
	return s
}

// ==========================================
// Open / Close
// ==========================================

func TestSession_Open(t *testing.T) {
	d := newFakeDialer()
	s := NewSession(testTransport(), d, logger.NewTestLogger(t))
	assert.Equal(t, StateDisconnected, s.State())

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, StateAuthenticated, s.State())

	// already open
	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, 1, d.Dials())
}

func TestSession_OpenFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(d *fakeDialer)
		closes int
	}{
		{
			name:  "dial refused",
			setup: func(d *fakeDialer) { d.dialErrs = []error{fmt.Errorf("connection refused")} },
		},
		{
			name:   "authentication rejected",
			setup:  func(d *fakeDialer) { d.authErr = &smtp.SMTPError{Code: 535, Message: "bad credentials"} },
			closes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDialer()
			tt.setup(d)
			s := NewSession(testTransport(), d, logger.NewTestLogger(t))

			err := s.Open(context.Background())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailed))
			assert.Equal(t, StateDisconnected, s.State())
			assert.Equal(t, tt.closes, d.closes)
		})
	}
}

func TestSession_Close(t *testing.T) {
	t.Run("quit closes the connection", func(t *testing.T) {
		d := newFakeDialer()
		s := openSession(t, d)
		s.Close()
		assert.Equal(t, 1, d.quits)
		assert.Equal(t, 0, d.closes)
		assert.Equal(t, StateDisconnected, s.State())
	})

	t.Run("failed quit falls back to close", func(t *testing.T) {
		d := newFakeDialer()
		d.quitErr = io.EOF
		s := openSession(t, d)
		s.Close()
		assert.Equal(t, 1, d.closes)
		assert.Equal(t, StateDisconnected, s.State())
	})

	t.Run("close without open is a no-op", func(t *testing.T) {
		d := newFakeDialer()
		s := NewSession(testTransport(), d, logger.NewTestLogger(t))
		s.Close()
		assert.Equal(t, 0, d.quits)
	})
}

// ==========================================
// Send and reconnect
// ==========================================

func TestSession_Send(t *testing.T) {
	d := newFakeDialer()
	s := openSession(t, d)

	out := s.Send(context.Background(), RenderedMessage{Subject: "s", Body: "b", To: "a@b.c"})

	assert.Equal(t, OutcomeSent, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, out.Reconnected)
	assert.Equal(t, []string{"a@b.c"}, d.Sent())
}

func TestSession_SendReconnects(t *testing.T) {
	tests := []struct {
		name        string
		sendErr     func(to string, attempt int) error
		dialErrs    []error
		wantStatus  OutcomeStatus
		wantAtt     int
		wantDials   int
		wantReconn  bool
		wantState   SessionState
		wantErrCode errors.ErrorCode
	}{
		{
			name: "retry after disconnect succeeds",
			sendErr: func(to string, attempt int) error {
				if attempt == 1 {
					return io.EOF
				}
				return nil
			},
			wantStatus: OutcomeSent,
			wantAtt:    2,
			wantDials:  2,
			wantReconn: true,
			wantState:  StateAuthenticated,
		},
		{
			name: "retry after disconnect fails",
			sendErr: func(to string, attempt int) error {
				return &smtp.SMTPError{Code: 421, Message: "closing"}
			},
			wantStatus:  OutcomeFailed,
			wantAtt:     2,
			wantDials:   2,
			wantReconn:  true,
			wantState:   StateDisconnected,
			wantErrCode: errors.ErrCodeMessageSendFailed,
		},
		{
			name: "reconnect itself fails",
			sendErr: func(to string, attempt int) error {
				return syscall.ECONNRESET
			},
			dialErrs:    []error{nil, fmt.Errorf("connection refused")},
			wantStatus:  OutcomeFailed,
			wantAtt:     1,
			wantDials:   2,
			wantReconn:  true,
			wantState:   StateDisconnected,
			wantErrCode: errors.ErrCodeConnectionFailed,
		},
		{
			name: "rejected recipient does not reconnect",
			sendErr: func(to string, attempt int) error {
				return &smtp.SMTPError{Code: 550, Message: "mailbox unavailable"}
			},
			wantStatus:  OutcomeFailed,
			wantAtt:     1,
			wantDials:   1,
			wantState:   StateAuthenticated,
			wantErrCode: errors.ErrCodeMessageSendFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDialer()
			d.sendErr = tt.sendErr
			d.dialErrs = tt.dialErrs
			s := openSession(t, d)

			out := s.Send(context.Background(), RenderedMessage{To: "a@b.c"})

			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.wantAtt, out.Attempts)
			assert.Equal(t, tt.wantReconn, out.Reconnected)
			assert.Equal(t, tt.wantDials, d.Dials())
			assert.Equal(t, tt.wantState, s.State())
			if tt.wantErrCode != "" {
				assert.NotEmpty(t, out.Error)
				assert.True(t, errors.HasCode(out.Err, tt.wantErrCode), "got %v", out.Err)
			}
		})
	}
}

func TestSession_SendAfterFailedReconnect(t *testing.T) {
	d := newFakeDialer()
	d.dialErrs = []error{nil, fmt.Errorf("connection refused")}
	d.sendErr = func(to string, attempt int) error {
		if to == "first@b.c" {
			return io.EOF
		}
		return nil
	}
	s := openSession(t, d)

	first := s.Send(context.Background(), RenderedMessage{To: "first@b.c"})
	require.Equal(t, OutcomeFailed, first.Status)
	require.Equal(t, StateDisconnected, s.State())

	second := s.Send(context.Background(), RenderedMessage{To: "second@b.c"})
	assert.Equal(t, OutcomeSent, second.Status)
	assert.True(t, second.Reconnected)
	assert.Equal(t, 3, d.Dials())
	assert.Equal(t, []string{"second@b.c"}, d.Sent())
}

func TestSession_SendBuildFailure(t *testing.T) {
	d := newFakeDialer()
	s := openSession(t, d)

	out := s.Send(context.Background(), RenderedMessage{To: "a@b.c\nBcc: evil@x.y"})

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.Equal(t, 0, out.Attempts)
	assert.True(t, errors.HasCode(out.Err, errors.ErrCodeMessageBuildFailed))
	assert.Empty(t, d.Sent())
}

// ==========================================
// Disconnect classification
// ==========================================

func TestIsDisconnected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not connected", errNotConnected, true},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), true},
		{"closed conn", net.ErrClosed, true},
		{"reset", syscall.ECONNRESET, true},
		{"broken pipe", syscall.EPIPE, true},
		{"op error", &net.OpError{Op: "write", Net: "tcp", Err: stderrors.New("boom")}, true},
		{"smtp 421", &smtp.SMTPError{Code: 421}, true},
		{"smtp 550", &smtp.SMTPError{Code: 550}, false},
		{"phrase", stderrors.New("write tcp: connection reset by peer"), true},
		{"unrelated", stderrors.New("invalid recipient"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDisconnected(tt.err))
		})
	}
}
