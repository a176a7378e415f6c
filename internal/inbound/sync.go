// Package inbound fetches and parses mailbox contents for a sender on
// demand: IMAP for imap (and gmail/outlook) senders, POP3 as the fallback
// protocol.
//
// A sync is a single bounded session. The most recent batchSize messages
// are fetched over IMAP (POP3 retrieves everything, a documented
// scalability gap), each parsed message is accumulated, and the session
// ends when the batch is done, when no message has arrived for the grace
// period, or at the hard ceiling — whichever comes first. Whatever was
// parsed before a timeout is returned, not discarded.
package inbound

import (
	"context"
	"sync"

	"github.com/luisant/mailcore/internal/config"
	"github.com/luisant/mailcore/internal/domain"
	"github.com/luisant/mailcore/internal/pkg/logger"
)

// Result is the outcome of one sync invocation.
type Result struct {
	Success  bool                    `json:"success"`
	Messages []domain.InboundMessage `json:"messages"`
	Count    int                     `json:"count"`
	Error    string                  `json:"error,omitempty"`
}

// Synchronizer runs mailbox syncs with per-sender serialization: most
// providers reject simultaneous logins for one account, so concurrent
// calls for the same sender queue behind each other.
type Synchronizer struct {
	cfg   config.InboundConfig
	hosts *hostResolver

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// fetch functions are swappable in tests.
	fetchIMAP func(ctx context.Context, sender *domain.Sender) ([]domain.InboundMessage, error)
	fetchPOP3 func(ctx context.Context, sender *domain.Sender) ([]domain.InboundMessage, error)
}

// New creates a synchronizer with the given timeouts, batch size and host
// table.
func New(cfg config.InboundConfig) *Synchronizer {
	s := &Synchronizer{
		cfg:   cfg,
		hosts: newHostResolver(cfg.Hosts),
		locks: make(map[string]*sync.Mutex),
	}
	s.fetchIMAP = s.imapFetch
	s.fetchPOP3 = s.pop3Fetch
	return s
}

// Sync fetches the sender's mailbox. The connection attempt is bounded by
// the connect timeout, authentication by the auth timeout, and the whole
// session by the total ceiling. A connect or auth failure returns
// Success=false immediately with no retry.
func (s *Synchronizer) Sync(ctx context.Context, sender *domain.Sender) Result {
	lock := s.lockFor(sender.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TotalCeiling)
	defer cancel()

	fetch := s.fetchIMAP
	if sender.EffectiveProvider() == domain.ProviderPOP3 {
		fetch = s.fetchPOP3
	}

	messages, err := fetch(ctx, sender)
	for i := range messages {
		messages[i].SenderID = sender.ID
	}

	if err != nil {
		logger.Error("inbound sync failed", "sender_id", sender.ID, "error", err.Error())
		return Result{Success: false, Messages: []domain.InboundMessage{}, Error: err.Error()}
	}
	if messages == nil {
		messages = []domain.InboundMessage{}
	}
	logger.Info("inbound sync completed", "sender_id", sender.ID, "count", len(messages))
	return Result{Success: true, Messages: messages, Count: len(messages)}
}

func (s *Synchronizer) lockFor(senderID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[senderID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[senderID] = lock
	}
	return lock
}
