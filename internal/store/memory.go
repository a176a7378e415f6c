package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/luisant/mailcore/internal/domain"
)

// Memory is an in-memory Store used in tests and local development. It
// mirrors the Postgres implementation's semantics, including recipient
// status monotonicity and transactional rate recomputation.
type Memory struct {
	mu         sync.Mutex
	Campaigns  map[string]*domain.Campaign
	Recipients map[string]*domain.Recipient
	Senders    map[string]*domain.Sender
	Analytics  map[string]*domain.Analytics

	// Mutations counts every write call, for idempotence assertions.
	Mutations int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		Campaigns:  make(map[string]*domain.Campaign),
		Recipients: make(map[string]*domain.Recipient),
		Senders:    make(map[string]*domain.Sender),
		Analytics:  make(map[string]*domain.Analytics),
	}
}

// AddCampaign seeds a campaign with its zero-valued analytics row, the way
// the external campaign-creation collaborator does.
func (m *Memory) AddCampaign(c domain.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Campaigns[c.ID] = &c
	m.Analytics[c.ID] = &domain.Analytics{CampaignID: c.ID}
}

// AddRecipient seeds a recipient.
func (m *Memory) AddRecipient(r domain.Recipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recipients[r.ID] = &r
}

// AddSender seeds a sender.
func (m *Memory) AddSender(s domain.Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Senders[s.ID] = &s
}

func (m *Memory) FindDueCampaigns(_ context.Context, now time.Time) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.Campaigns {
		due := c.Status == domain.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
		if due || c.Status == domain.CampaignSending {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListPendingRecipients(_ context.Context, campaignID string) ([]domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Recipient
	for _, r := range m.Recipients {
		if r.CampaignID == campaignID && r.Status == domain.RecipientPending {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetSenderByID(_ context.Context, id string) (*domain.Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Senders[id]
	if !ok {
		return nil, ErrSenderNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) UpdateCampaignStatus(_ context.Context, id string, status domain.CampaignStatus, sentAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Campaigns[id]
	if !ok {
		return ErrCampaignNotFound
	}
	m.Mutations++
	c.Status = status
	if sentAt != nil {
		c.SentAt = sentAt
	}
	return nil
}

func (m *Memory) UpdateRecipientStatus(_ context.Context, id string, status domain.RecipientStatus, sentAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Recipients[id]
	if !ok {
		return ErrRecipientNotFound
	}
	if r.Status != domain.RecipientPending {
		// Already terminal: monotonicity makes this a silent no-op.
		return nil
	}
	m.Mutations++
	r.Status = status
	if sentAt != nil {
		r.SentAt = sentAt
	}
	return nil
}

func (m *Memory) ApplyAnalyticsDelta(_ context.Context, campaignID string, counter Counter, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Analytics[campaignID]
	if !ok {
		return ErrAnalyticsNotFound
	}
	m.Mutations++
	switch counter {
	case CounterSent:
		a.TotalSent += n
	case CounterOpened:
		a.TotalOpened += n
	case CounterClicked:
		a.TotalClicked += n
	case CounterBounced:
		a.TotalBounced += n
	default:
		return ErrAnalyticsNotFound
	}
	a.Recompute()
	return nil
}

func (m *Memory) GetAnalytics(_ context.Context, campaignID string) (*domain.Analytics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Analytics[campaignID]
	if !ok {
		return nil, ErrAnalyticsNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) UpdateSenderTokens(_ context.Context, senderID, accessToken, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Senders[senderID]
	if !ok {
		return ErrSenderNotFound
	}
	m.Mutations++
	s.AccessToken = accessToken
	s.RefreshToken = refreshToken
	s.ExpiresAt = &expiresAt
	return nil
}
