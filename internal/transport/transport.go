// Package transport delivers one personalized message through a sender's
// provider.
//
// Each provider implements the Transport interface; the Dispatcher selects
// an implementation from the sender's provider enum. Adding a provider means
// adding one implementation and one registry entry. Transports are stateless:
// all persistence of outcomes belongs to the caller.
package transport

import (
	"context"
	"fmt"

	"github.com/luisant/mailcore/internal/domain"
)

// Message is one personalized email, ready for the wire.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Kind classifies a failed send so the scheduler can decide between
// retrying the recipient, skipping it, or aborting the campaign.
type Kind int

const (
	// KindNone marks a successful outcome.
	KindNone Kind = iota
	// KindTransient is a retriable network-level failure.
	KindTransient
	// KindAuth is a credential failure; fatal for the campaign.
	KindAuth
	// KindRecipient is a rejected or malformed address; terminal for the
	// recipient, the campaign continues.
	KindRecipient
	// KindProtocol is an unexpected server response; the recipient is
	// skipped, the campaign continues.
	KindProtocol
	// KindFatal is a provider-level failure (connection refused and the
	// like); the campaign's remaining recipients are aborted.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindAuth:
		return "auth"
	case KindRecipient:
		return "recipient"
	case KindProtocol:
		return "protocol"
	case KindFatal:
		return "fatal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the result of one send attempt.
type Outcome struct {
	Sent bool
	Kind Kind
	Err  error
}

// CampaignFatal reports whether this outcome should abort the campaign's
// remaining recipients.
func (o Outcome) CampaignFatal() bool {
	return !o.Sent && (o.Kind == KindAuth || o.Kind == KindFatal)
}

// Delivered is the successful outcome.
func Delivered() Outcome { return Outcome{Sent: true} }

// Failed builds a failure outcome.
func Failed(kind Kind, err error) Outcome { return Outcome{Kind: kind, Err: err} }

// Transport sends one message on behalf of a sender.
type Transport interface {
	Send(ctx context.Context, sender *domain.Sender, msg *Message) Outcome
}

// Dispatcher routes sends to the transport registered for the sender's
// provider. A transient failure is retried once at this level; everything
// else is surfaced to the caller untouched.
type Dispatcher struct {
	transports map[domain.Provider]Transport
}

// NewDispatcher creates an empty registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{transports: make(map[domain.Provider]Transport)}
}

// Register binds a provider to a transport implementation.
func (d *Dispatcher) Register(p domain.Provider, t Transport) {
	d.transports[p] = t
}

// For returns the transport for the sender's effective provider.
func (d *Dispatcher) For(sender *domain.Sender) (Transport, error) {
	p := sender.EffectiveProvider()
	t, ok := d.transports[p]
	if !ok {
		return nil, fmt.Errorf("no transport registered for provider %q", p)
	}
	return t, nil
}

// Send delivers one message, retrying a transient failure once.
func (d *Dispatcher) Send(ctx context.Context, sender *domain.Sender, msg *Message) Outcome {
	t, err := d.For(sender)
	if err != nil {
		return Failed(KindFatal, err)
	}

	out := t.Send(ctx, sender, msg)
	if !out.Sent && out.Kind == KindTransient && ctx.Err() == nil {
		out = t.Send(ctx, sender, msg)
	}
	return out
}
