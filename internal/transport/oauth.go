package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/luisant/mailcore/internal/domain"
)

// TokenProvider supplies valid OAuth access tokens for a sender, refreshing
// internally when the stored token is near expiry.
type TokenProvider interface {
	// ValidAccessToken returns a usable access token, refreshing the stored
	// one first if it has expired.
	ValidAccessToken(ctx context.Context, sender *domain.Sender) (string, error)
	// Refresh forces a token refresh regardless of the stored expiry.
	Refresh(ctx context.Context, sender *domain.Sender) (string, error)
}

// OAuthTransport delivers mail through a provider's SMTP submission
// endpoint authenticated with XOAUTH2. Gmail and Outlook share the
// implementation and differ only in endpoint.
type OAuthTransport struct {
	host        string
	port        int
	tokens      TokenProvider
	dialTimeout time.Duration
}

// NewGmailTransport creates the Gmail submission transport.
func NewGmailTransport(tokens TokenProvider, dialTimeout time.Duration) *OAuthTransport {
	return &OAuthTransport{host: "smtp.gmail.com", port: 587, tokens: tokens, dialTimeout: dialTimeout}
}

// NewOutlookTransport creates the Outlook/Office365 submission transport.
func NewOutlookTransport(tokens TokenProvider, dialTimeout time.Duration) *OAuthTransport {
	return &OAuthTransport{host: "smtp.office365.com", port: 587, tokens: tokens, dialTimeout: dialTimeout}
}

// Send obtains a valid token (refreshing once if the stored one expired),
// authenticates with XOAUTH2 and submits the message. If the server still
// rejects authentication, one forced refresh and reconnect is attempted;
// a second rejection is fatal for the campaign.
func (t *OAuthTransport) Send(ctx context.Context, sender *domain.Sender, msg *Message) Outcome {
	token, err := t.tokens.ValidAccessToken(ctx, sender)
	if err != nil {
		return Failed(KindAuth, fmt.Errorf("access token for %s: %w", sender.Email, err))
	}

	out, authFailed := t.attempt(ctx, sender, token, msg)
	if !authFailed {
		return out
	}

	// The provider rejected a token the expiry said was valid. Refresh and
	// try once more on a fresh connection.
	token, err = t.tokens.Refresh(ctx, sender)
	if err != nil {
		return Failed(KindAuth, fmt.Errorf("token refresh for %s: %w", sender.Email, err))
	}
	out, _ = t.attempt(ctx, sender, token, msg)
	return out
}

// attempt runs one full connect/auth/submit pass. The second return value
// reports whether the failure was an auth rejection eligible for a
// refresh-and-retry.
func (t *OAuthTransport) attempt(ctx context.Context, sender *domain.Sender, token string, msg *Message) (Outcome, bool) {
	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	c, err := dialSubmission(ctx, addr, t.host, t.dialTimeout)
	if err != nil {
		return Failed(KindFatal, fmt.Errorf("dial %s: %w", addr, err)), false
	}
	defer c.Close()

	if err := c.Auth(newXOAuth2Client(sender.Email, token)); err != nil {
		return Failed(KindAuth, fmt.Errorf("xoauth2 auth for %s: %w", sender.Email, err)), true
	}

	return submit(c, sender.Name, sender.Email, msg), false
}
