package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign represents a batch email send: one subject/content template
// delivered to a set of recipients through a sender's transport.
type Campaign struct {
	ID          string         `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	Subject     string         `json:"subject" db:"subject"`
	Content     string         `json:"content" db:"content"`
	Status      CampaignStatus `json:"status" db:"status"`
	ScheduledAt *time.Time     `json:"scheduled_at" db:"scheduled_at"`
	SentAt      *time.Time     `json:"sent_at" db:"sent_at"`
	SenderID    *string        `json:"sender_id" db:"sender_id"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignCancelled
}

// Validate checks the campaign's status invariants:
// scheduled requires scheduled_at, sent requires sent_at.
func (c *Campaign) Validate() error {
	if c.Status == CampaignScheduled && c.ScheduledAt == nil {
		return ErrScheduledWithoutTime
	}
	if c.Status == CampaignSent && c.SentAt == nil {
		return ErrSentWithoutTime
	}
	return nil
}

// RecipientStatus enumerates the delivery outcome of a single recipient.
// Status is monotonic: pending moves to exactly one terminal state and
// never reverses.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientBounced RecipientStatus = "bounced"
	RecipientFailed  RecipientStatus = "failed"
)

// IsTerminal returns true for any status other than pending.
func (s RecipientStatus) IsTerminal() bool { return s != RecipientPending }

// Recipient is one addressee of a campaign with an independent send outcome.
type Recipient struct {
	ID           string            `json:"id" db:"id"`
	CampaignID   string            `json:"campaign_id" db:"campaign_id"`
	Email        string            `json:"email" db:"email"`
	FirstName    *string           `json:"first_name" db:"first_name"`
	LastName     *string           `json:"last_name" db:"last_name"`
	CustomFields map[string]string `json:"custom_fields" db:"custom_fields"`
	Status       RecipientStatus   `json:"status" db:"status"`
	SentAt       *time.Time        `json:"sent_at" db:"sent_at"`
}
