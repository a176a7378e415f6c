// Package store is the persistence collaborator for the dispatch engine.
//
// Every operation is a single transactional call; the core never holds a
// cross-call lock on the store. Implementations must be safe for
// concurrent use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/luisant/mailcore/internal/domain"
)

// Sentinel errors for the store layer.
var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrSenderNotFound    = errors.New("sender not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrAnalyticsNotFound = errors.New("analytics row not found")
)

// Counter names an analytics counter column for delta application.
type Counter string

const (
	CounterSent    Counter = "total_sent"
	CounterOpened  Counter = "total_opened"
	CounterClicked Counter = "total_clicked"
	CounterBounced Counter = "total_bounced"
)

// Store defines the data access contract used by the scheduler, the
// aggregator and the token provider.
type Store interface {
	// FindDueCampaigns returns campaigns ready for dispatch: scheduled
	// campaigns whose scheduled_at has elapsed, plus sending campaigns left
	// resumable by an earlier aborted cycle.
	FindDueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error)

	// ListPendingRecipients returns the campaign's recipients still in
	// pending state, in insertion order.
	ListPendingRecipients(ctx context.Context, campaignID string) ([]domain.Recipient, error)

	// GetSenderByID returns a sender. Returns ErrSenderNotFound if absent.
	GetSenderByID(ctx context.Context, id string) (*domain.Sender, error)

	// UpdateCampaignStatus transitions a campaign, optionally stamping
	// sent_at (required when status is sent).
	UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus, sentAt *time.Time) error

	// UpdateRecipientStatus records a recipient's terminal outcome.
	// Recipient status is monotonic; implementations must not move a
	// terminal recipient back to pending.
	UpdateRecipientStatus(ctx context.Context, id string, status domain.RecipientStatus, sentAt *time.Time) error

	// ApplyAnalyticsDelta increments one counter by n and recomputes the
	// derived rates, atomically.
	ApplyAnalyticsDelta(ctx context.Context, campaignID string, counter Counter, n int) error

	// GetAnalytics returns the campaign's analytics row.
	GetAnalytics(ctx context.Context, campaignID string) (*domain.Analytics, error)

	// UpdateSenderTokens persists a refreshed OAuth token set.
	UpdateSenderTokens(ctx context.Context, senderID, accessToken, refreshToken string, expiresAt time.Time) error
}
