// Package tokens is the OAuth token collaborator: it hands out valid access
// tokens for Gmail/Outlook senders, refreshing through the provider's token
// endpoint when the stored token has expired, and persists refreshed tokens
// back to the store.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/luisant/mailcore/internal/config"
	"github.com/luisant/mailcore/internal/domain"
)

// ErrNoRefreshToken is returned when a sender's token has expired and no
// refresh token is on record; the sender must reauthorize.
var ErrNoRefreshToken = errors.New("sender has no refresh token")

// Store persists refreshed token sets.
type Store interface {
	UpdateSenderTokens(ctx context.Context, senderID, accessToken, refreshToken string, expiresAt time.Time) error
}

// Provider exchanges refresh tokens for access tokens via the Google and
// Microsoft OAuth endpoints.
type Provider struct {
	google    *oauth2.Config
	microsoft *oauth2.Config
	store     Store
	now       func() time.Time

	// exchange is swappable for tests; it defaults to a real token-endpoint
	// round trip through the oauth2 package.
	exchange func(ctx context.Context, cfg *oauth2.Config, refreshToken string) (*oauth2.Token, error)
}

// New creates a token provider from the application OAuth credentials.
func New(cfg config.OAuthConfig, store Store) *Provider {
	return &Provider{
		google: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"https://mail.google.com/"},
		},
		microsoft: &oauth2.Config{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			Endpoint:     microsoft.AzureADEndpoint("common"),
			Scopes:       []string{"https://outlook.office.com/SMTP.Send", "offline_access"},
		},
		store: store,
		now:   time.Now,
		exchange: func(ctx context.Context, cfg *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
			return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		},
	}
}

// ValidAccessToken returns the sender's stored token while it is still
// valid, refreshing it otherwise.
func (p *Provider) ValidAccessToken(ctx context.Context, sender *domain.Sender) (string, error) {
	if !sender.TokenExpired(p.now()) {
		return sender.AccessToken, nil
	}
	return p.Refresh(ctx, sender)
}

// Refresh exchanges the sender's refresh token for a new access token,
// updates the sender in place and persists the new token set. A persistence
// failure is logged but does not fail the refresh: the token is already
// valid for this send.
func (p *Provider) Refresh(ctx context.Context, sender *domain.Sender) (string, error) {
	cfg, err := p.configFor(sender)
	if err != nil {
		return "", err
	}
	if sender.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	tok, err := p.exchange(ctx, cfg, sender.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh token for %s: %w", sender.Email, err)
	}

	sender.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		sender.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		sender.ExpiresAt = &expiry
	}

	if p.store != nil {
		expiry := tok.Expiry
		if err := p.store.UpdateSenderTokens(ctx, sender.ID, sender.AccessToken, sender.RefreshToken, expiry); err != nil {
			log.Printf("[tokens] persist refreshed token for sender %s: %v", sender.ID, err)
		}
	}
	return tok.AccessToken, nil
}

func (p *Provider) configFor(sender *domain.Sender) (*oauth2.Config, error) {
	switch sender.EffectiveProvider() {
	case domain.ProviderGmail:
		return p.google, nil
	case domain.ProviderOutlook:
		return p.microsoft, nil
	}
	return nil, fmt.Errorf("provider %q does not use OAuth tokens", sender.EffectiveProvider())
}
