package auth

import (
	"context"
	"time"
)

// Session lifecycle actions reported through an EventEmitter.
const (
	ActionRegister      = "register"
	ActionLogin         = "login"
	ActionRefresh       = "refresh"
	ActionLogout        = "logout"
	ActionProfileUpdate = "profile_update"
)

// Event outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event describes the outcome of one lifecycle operation.
// It never carries passwords or token values.
type Event struct {
	Action     string    `json:"action"`
	Identity   string    `json:"identity,omitempty"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	At         time.Time `json:"at"`
}

// EventEmitter receives lifecycle events. Emit must not block the caller.
type EventEmitter interface {
	Emit(e Event)
}

type discardEmitter struct{}

func (discardEmitter) Emit(Event) {}

type remoteAddrKey struct{}

// WithRemoteAddr returns a context carrying the client address for events.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

func remoteAddrFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(remoteAddrKey{}).(string) //nolint:errcheck // type assertion, not error
	return addr
}
