// Package gateway wraps the chat transport. The scheduler posts messages and
// shows progress indicators through this boundary; delivery failures are
// non-fatal and swallowed by callers.
package gateway

import (
	"context"
	"time"
)

// Messenger is the messaging surface the scheduler depends on.
type Messenger interface {
	// Post delivers content to a channel.
	Post(ctx context.Context, channel, content string) error
	// ShowProgress starts a progress indicator on a channel and returns a
	// stop function. Both starting and stopping are best-effort.
	ShowProgress(ctx context.Context, channel string) (stop func())
}

// Nop is a Messenger that discards everything. Used in tests and dry runs.
type Nop struct{}

// Post discards the message.
func (Nop) Post(context.Context, string, string) error { return nil }

// ShowProgress returns a no-op stop function.
func (Nop) ShowProgress(context.Context, string) (stop func()) { return func() {} }

// progressRefresh is how often a progress indicator is re-asserted; chat
// platforms expire typing indicators after a few seconds.
const progressRefresh = 8 * time.Second
