// Package notify provides fire-and-forget run notifications. A send failure
// must never fail the task that produced the message.
package notify

import "context"

// Notifier delivers a plain-text summary of a completed run.
type Notifier interface {
	Send(ctx context.Context, text string)
}

// Nop is a Notifier that discards every message.
type Nop struct{}

func (Nop) Send(ctx context.Context, text string) {}
