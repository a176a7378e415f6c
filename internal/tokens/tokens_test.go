package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/luisant/mailcore/internal/config"
	"github.com/luisant/mailcore/internal/domain"
)

type recordingStore struct {
	senderID string
	access   string
	calls    int
}

func (r *recordingStore) UpdateSenderTokens(_ context.Context, senderID, access, _ string, _ time.Time) error {
	r.senderID = senderID
	r.access = access
	r.calls++
	return nil
}

func newTestProvider(store Store) *Provider {
	p := New(config.OAuthConfig{GoogleClientID: "id", GoogleClientSecret: "secret"}, store)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestValidAccessTokenUsesStoredToken(t *testing.T) {
	p := newTestProvider(nil)
	p.exchange = func(context.Context, *oauth2.Config, string) (*oauth2.Token, error) {
		t.Fatal("exchange should not be called for a valid token")
		return nil, nil
	}

	future := p.now().Add(time.Hour)
	sender := &domain.Sender{
		ID: "s1", Email: "a@gmail.com", Provider: domain.ProviderGmail,
		AccessToken: "stored", RefreshToken: "r", ExpiresAt: &future,
	}

	tok, err := p.ValidAccessToken(context.Background(), sender)
	require.NoError(t, err)
	assert.Equal(t, "stored", tok)
}

func TestValidAccessTokenRefreshesExpired(t *testing.T) {
	store := &recordingStore{}
	p := newTestProvider(store)

	calls := 0
	p.exchange = func(_ context.Context, _ *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
		calls++
		assert.Equal(t, "r1", refreshToken)
		return &oauth2.Token{AccessToken: "fresh", Expiry: p.now().Add(time.Hour)}, nil
	}

	past := p.now().Add(-time.Minute)
	sender := &domain.Sender{
		ID: "s1", Email: "a@gmail.com", Provider: domain.ProviderGmail,
		AccessToken: "stale", RefreshToken: "r1", ExpiresAt: &past,
	}

	tok, err := p.ValidAccessToken(context.Background(), sender)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, 1, calls)

	// The sender is updated in place and the new tokens persisted.
	assert.Equal(t, "fresh", sender.AccessToken)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, "s1", store.senderID)
	assert.Equal(t, "fresh", store.access)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	p := newTestProvider(nil)
	sender := &domain.Sender{ID: "s1", Email: "a@gmail.com", Provider: domain.ProviderGmail}

	_, err := p.Refresh(context.Background(), sender)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestRefreshRejectsNonOAuthProvider(t *testing.T) {
	p := newTestProvider(nil)
	sender := &domain.Sender{ID: "s1", Email: "a@corp.com", Provider: domain.ProviderSMTP, RefreshToken: "r"}

	_, err := p.Refresh(context.Background(), sender)
	assert.Error(t, err)
}

func TestMissingAccessTokenCountsAsExpired(t *testing.T) {
	s := &domain.Sender{Email: "a@gmail.com"}
	assert.True(t, s.TokenExpired(time.Now()))
}
