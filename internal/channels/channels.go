// Package channels routes outbound messages to the transport configured for
// their channel.
package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Channel names.
const (
	Email    = "email"
	SMS      = "sms"
	WhatsApp = "whatsapp"
)

// ErrNotConfigured is returned for a channel without a transport.
var ErrNotConfigured = errors.New("channel not configured")

// Message is one outbound message. Subject is only used by email.
type Message struct {
	Channel string
	To      string
	Name    string
	Subject string
	Body    string
}

// Transport delivers messages over one channel.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Router dispatches by Message.Channel.
type Router struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{transports: make(map[string]Transport)}
}

// Register binds a transport to a channel. A nil transport unbinds it.
func (r *Router) Register(channel string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t == nil {
		delete(r.transports, channel)
		return
	}
	r.transports[channel] = t
}

// Configured reports whether channel has a transport.
func (r *Router) Configured(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.transports[channel]
	return ok
}

// Send delivers msg through its channel's transport.
func (r *Router) Send(ctx context.Context, msg Message) error {
	r.mu.RLock()
	t, ok := r.transports[msg.Channel]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", msg.Channel, ErrNotConfigured)
	}
	if msg.To == "" {
		return fmt.Errorf("%s: recipient is required", msg.Channel)
	}
	return t.Send(ctx, msg)
}
