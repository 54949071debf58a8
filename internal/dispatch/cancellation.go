// internal/dispatch/cancellation.go
package dispatch

import (
	"context"
	"sync/atomic"
)

// CancellationToken is polled by the scheduler before every send. Once it
// reports true it must keep reporting true.
type CancellationToken interface {
	Cancelled() bool
}

// Flag is an in-memory token that any goroutine may set.
type Flag struct {
	set atomic.Bool
}

func NewFlag() *Flag {
	return &Flag{}
}

func (f *Flag) Cancel() {
	f.set.Store(true)
}

func (f *Flag) Cancelled() bool {
	return f.set.Load()
}

type contextToken struct {
	ctx context.Context
}

// FromContext reports cancellation once ctx is done.
func FromContext(ctx context.Context) CancellationToken {
	return contextToken{ctx: ctx}
}

func (t contextToken) Cancelled() bool {
	return t.ctx.Err() != nil
}

type anyToken []CancellationToken

// AnyOf is cancelled as soon as one of tokens is. Nil tokens are ignored.
func AnyOf(tokens ...CancellationToken) CancellationToken {
	var out anyToken
	for _, t := range tokens {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (a anyToken) Cancelled() bool {
	for _, t := range a {
		if t.Cancelled() {
			return true
		}
	}
	return false
}

type neverCancelled struct{}

func (neverCancelled) Cancelled() bool { return false }

// NeverCancelled is a token that is never set.
var NeverCancelled CancellationToken = neverCancelled{}
