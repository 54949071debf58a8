package dispatch

import (
	"context"
	"sync"
	"time"
)

// fakeDialer hands out fakeConns and records every interaction.
type fakeDialer struct {
	mu sync.Mutex

	dialErrs []error // consumed one per Dial
	authErr  error
	sendErr  func(to string, attempt int) error
	quitErr  error

	dials    int
	sent     []string
	attempts map[string]int
	quits    int
	closes   int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{attempts: map[string]int{}}
}

func (d *fakeDialer) Dial(ctx context.Context, cfg TransportConfig) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if len(d.dialErrs) > 0 {
		err := d.dialErrs[0]
		d.dialErrs = d.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &fakeConn{d: d}, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

type fakeConn struct {
	d *fakeDialer
}

func (c *fakeConn) Authenticate(username, password string) error {
	return c.d.authErr
}

func (c *fakeConn) Send(from, to string, msg []byte) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()

	c.d.attempts[to]++
	if c.d.sendErr != nil {
		if err := c.d.sendErr(to, c.d.attempts[to]); err != nil {
			return err
		}
	}
	c.d.sent = append(c.d.sent, to)
	return nil
}

func (c *fakeConn) Quit() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.quits++
	return c.d.quitErr
}

func (c *fakeConn) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.closes++
	return nil
}

// recordingSender returns Sent unless fail says otherwise.
type recordingSender struct {
	calls []string
	fail  map[string]bool
	after func(calls int)
}

func (s *recordingSender) Send(_ context.Context, msg RenderedMessage) SendOutcome {
	s.calls = append(s.calls, msg.To)
	defer func() {
		if s.after != nil {
			s.after(len(s.calls))
		}
	}()
	if s.fail[msg.To] {
		return SendOutcome{Recipient: msg.To, Status: OutcomeFailed, Error: "rejected", Attempts: 1}
	}
	return SendOutcome{Recipient: msg.To, Status: OutcomeSent, Attempts: 1}
}

// progressLog records every fraction a Reporter or sink sees.
type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) Report(_ context.Context, fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, fraction)
}

func (p *progressLog) PublishProgress(ctx context.Context, fraction float64) error {
	p.Report(ctx, fraction)
	return nil
}

func (p *progressLog) Values() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.values...)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func recipientsFor(emails ...string) []Recipient {
	out := make([]Recipient, len(emails))
	for i, e := range emails {
		out[i] = Recipient{Position: i, Email: e, Fields: Row{"Email": e, "Org": "Org" + e}}
	}
	return out
}
