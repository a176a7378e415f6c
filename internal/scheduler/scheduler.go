// Package scheduler drives scheduled campaigns to completion.
//
// A single repeating control loop polls the store for due campaigns and
// dispatches each pending recipient through the transport dispatcher,
// recording per-recipient outcomes as they happen. Campaign terminal state
// is derived from recipient state: a campaign becomes sent only once every
// recipient is terminal, and an aborted campaign stays in sending so a
// later cycle resumes exactly the recipients that are still pending.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luisant/mailcore/internal/domain"
	"github.com/luisant/mailcore/internal/personalize"
	"github.com/luisant/mailcore/internal/pkg/distlock"
	"github.com/luisant/mailcore/internal/pkg/logger"
	"github.com/luisant/mailcore/internal/store"
	"github.com/luisant/mailcore/internal/transport"
)

// DefaultPollInterval is how often the loop scans for due campaigns.
const DefaultPollInterval = 60 * time.Second

// DefaultSendConcurrency bounds parallel sends within one campaign.
const DefaultSendConcurrency = 4

// ErrCycleInProgress is returned when a cycle is requested while the
// previous one is still running.
var ErrCycleInProgress = errors.New("poll cycle already in progress")

// Dispatcher sends one personalized message through a sender's provider.
type Dispatcher interface {
	Send(ctx context.Context, sender *domain.Sender, msg *transport.Message) transport.Outcome
}

// Aggregator applies analytics deltas for send outcomes.
type Aggregator interface {
	ApplySent(ctx context.Context, campaignID string, n int) error
	ApplyBounced(ctx context.Context, campaignID string, n int) error
}

// Options configures a Scheduler.
type Options struct {
	PollInterval    time.Duration
	SendConcurrency int
	// CycleLock guards against a second service instance running the same
	// cycle. Nil means single-instance deployment.
	CycleLock distlock.Lock
}

// Scheduler owns the poll loop. Start and Stop are the only lifecycle
// entry points; RunCycle can additionally be invoked on demand through the
// HTTP trigger surface.
type Scheduler struct {
	store       store.Store
	dispatcher  Dispatcher
	aggregator  Aggregator
	engine      *personalize.Engine
	interval    time.Duration
	concurrency int
	cycleLock   distlock.Lock

	// cycleActive prevents overlapping cycles when one cycle's work
	// exceeds the poll interval.
	cycleActive atomic.Bool
	// stopRequested makes workers stop taking new recipients; in-flight
	// sends complete normally.
	stopRequested atomic.Bool

	campaignsProcessed int64
	recipientsSent     int64
	recipientsFailed   int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// New creates a scheduler with injected dependencies.
func New(s store.Store, d Dispatcher, a Aggregator, e *personalize.Engine, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SendConcurrency <= 0 {
		opts.SendConcurrency = DefaultSendConcurrency
	}
	return &Scheduler{
		store:       s,
		dispatcher:  d,
		aggregator:  a,
		engine:      e,
		interval:    opts.PollInterval,
		concurrency: opts.SendConcurrency,
		cycleLock:   opts.CycleLock,
	}
}

// Start begins the polling loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopRequested.Store(false)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[Scheduler] Starting with poll interval: %v", s.interval)

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop signals the loop to stop accepting new sends and waits for the
// current cycle's in-flight sends to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	log.Printf("[Scheduler] Stopping...")
	s.stopRequested.Store(true)
	s.cancel()
	s.wg.Wait()
	log.Printf("[Scheduler] Stopped. Campaigns processed: %d, sent: %d, failed: %d",
		atomic.LoadInt64(&s.campaignsProcessed),
		atomic.LoadInt64(&s.recipientsSent),
		atomic.LoadInt64(&s.recipientsFailed))
}

// Running reports whether the poll loop is active.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// PollInterval returns the configured poll interval.
func (s *Scheduler) PollInterval() time.Duration { return s.interval }

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			// The loop's cycles use a background context so Stop does not
			// abort sends mid-provider-call; cooperative shutdown happens
			// through stopRequested between recipients.
			if _, err := s.RunCycle(context.Background()); err != nil && err != ErrCycleInProgress {
				log.Printf("[Scheduler] Cycle error: %v", err)
			}
		}
	}
}

// RunCycle executes one poll cycle: find due campaigns and process each
// sequentially. Returns the number of campaigns processed. When no campaign
// is due, the cycle performs no store mutations.
func (s *Scheduler) RunCycle(ctx context.Context) (int, error) {
	if !s.cycleActive.CompareAndSwap(false, true) {
		return 0, ErrCycleInProgress
	}
	defer s.cycleActive.Store(false)

	if s.cycleLock != nil {
		ok, err := s.cycleLock.TryAcquire(ctx)
		if err != nil {
			log.Printf("[Scheduler] Cycle lock error, skipping cycle: %v", err)
			return 0, nil
		}
		if !ok {
			// Another instance is running this cycle.
			return 0, nil
		}
		defer s.cycleLock.Release(ctx)
	}

	campaigns, err := s.store.FindDueCampaigns(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("find due campaigns: %w", err)
	}

	processed := 0
	for i := range campaigns {
		if s.stopRequested.Load() || ctx.Err() != nil {
			break
		}
		// Campaigns are processed one at a time to bound provider load;
		// only recipients within a campaign fan out.
		s.processCampaign(ctx, &campaigns[i])
		processed++
		atomic.AddInt64(&s.campaignsProcessed, 1)
	}
	return processed, nil
}

func (s *Scheduler) processCampaign(ctx context.Context, c *domain.Campaign) {
	if c.SenderID == nil {
		// A due campaign without a sender can never dispatch; pause it so
		// the due query stops rescanning it every cycle.
		log.Printf("[Scheduler] Campaign %s has no sender, pausing", c.ID)
		s.pauseCampaign(ctx, c)
		return
	}
	sender, err := s.store.GetSenderByID(ctx, *c.SenderID)
	if err != nil {
		if errors.Is(err, store.ErrSenderNotFound) {
			log.Printf("[Scheduler] Campaign %s: sender %s not found, pausing", c.ID, *c.SenderID)
			s.pauseCampaign(ctx, c)
			return
		}
		// A transient lookup failure keeps the campaign due for the next
		// cycle.
		log.Printf("[Scheduler] Campaign %s: sender lookup failed: %v", c.ID, err)
		return
	}

	if c.Status == domain.CampaignScheduled {
		if err := s.store.UpdateCampaignStatus(ctx, c.ID, domain.CampaignSending, nil); err != nil {
			log.Printf("[Scheduler] Campaign %s: mark sending failed: %v", c.ID, err)
			return
		}
	}

	recipients, err := s.store.ListPendingRecipients(ctx, c.ID)
	if err != nil {
		log.Printf("[Scheduler] Campaign %s: list recipients failed: %v", c.ID, err)
		return
	}

	aborted := s.sendAll(ctx, c, sender, recipients)
	if aborted {
		// Remaining recipients stay pending and the campaign stays in
		// sending; the next cycle resumes them. Progress already recorded
		// per recipient is never rolled back.
		log.Printf("[Scheduler] Campaign %s aborted mid-send, left resumable", c.ID)
		return
	}

	s.finalizeCampaign(ctx, c)
}

func (s *Scheduler) pauseCampaign(ctx context.Context, c *domain.Campaign) {
	if err := s.store.UpdateCampaignStatus(ctx, c.ID, domain.CampaignPaused, nil); err != nil {
		log.Printf("[Scheduler] Campaign %s: pause failed: %v", c.ID, err)
	}
}

// sendAll fans the campaign's pending recipients out over a bounded worker
// pool. Returns true if a campaign-fatal outcome aborted the remainder.
func (s *Scheduler) sendAll(ctx context.Context, c *domain.Campaign, sender *domain.Sender, recipients []domain.Recipient) bool {
	if len(recipients) == 0 {
		return false
	}

	workers := s.concurrency
	if workers > len(recipients) {
		workers = len(recipients)
	}

	jobs := make(chan *domain.Recipient)
	var aborted atomic.Bool
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				if aborted.Load() || s.stopRequested.Load() {
					continue
				}
				if out := s.sendOne(ctx, c, sender, r); out.CampaignFatal() {
					aborted.Store(true)
				}
			}
		}()
	}

	for i := range recipients {
		jobs <- &recipients[i]
	}
	close(jobs)
	wg.Wait()

	return aborted.Load() || s.stopRequested.Load()
}

func (s *Scheduler) sendOne(ctx context.Context, c *domain.Campaign, sender *domain.Sender, r *domain.Recipient) transport.Outcome {
	msg := &transport.Message{
		To:      r.Email,
		Subject: s.engine.Render(c.Subject, r),
		HTML:    s.engine.Render(c.Content, r),
	}

	out := s.dispatcher.Send(ctx, sender, msg)
	now := time.Now()

	switch {
	case out.Sent:
		if err := s.store.UpdateRecipientStatus(ctx, r.ID, domain.RecipientSent, &now); err != nil {
			log.Printf("[Scheduler] Recipient %s: mark sent failed: %v", r.ID, err)
		}
		if err := s.aggregator.ApplySent(ctx, c.ID, 1); err != nil {
			log.Printf("[Scheduler] Campaign %s: apply sent delta failed: %v", c.ID, err)
		}
		atomic.AddInt64(&s.recipientsSent, 1)
		logger.Info("recipient sent", "campaign_id", c.ID, "recipient", r.Email)

	case out.Kind == transport.KindRecipient:
		if err := s.store.UpdateRecipientStatus(ctx, r.ID, domain.RecipientBounced, nil); err != nil {
			log.Printf("[Scheduler] Recipient %s: mark bounced failed: %v", r.ID, err)
		}
		if err := s.aggregator.ApplyBounced(ctx, c.ID, 1); err != nil {
			log.Printf("[Scheduler] Campaign %s: apply bounce delta failed: %v", c.ID, err)
		}
		atomic.AddInt64(&s.recipientsFailed, 1)
		logger.Warn("recipient rejected", "campaign_id", c.ID, "recipient", r.Email, "error", out.Err.Error())

	case out.Kind == transport.KindProtocol:
		if err := s.store.UpdateRecipientStatus(ctx, r.ID, domain.RecipientFailed, nil); err != nil {
			log.Printf("[Scheduler] Recipient %s: mark failed failed: %v", r.ID, err)
		}
		atomic.AddInt64(&s.recipientsFailed, 1)
		logger.Warn("recipient failed", "campaign_id", c.ID, "recipient", r.Email, "error", out.Err.Error())

	case out.CampaignFatal():
		logger.Error("provider failure", "campaign_id", c.ID, "kind", out.Kind.String(), "error", out.Err.Error())

	default:
		// Transient failure that survived the dispatcher's retry: leave
		// the recipient pending so the next cycle re-attempts it.
		logger.Warn("recipient deferred", "campaign_id", c.ID, "recipient", r.Email, "error", out.Err.Error())
	}
	return out
}

// finalizeCampaign marks the campaign sent once no pending recipients
// remain. Campaigns with deferred (still pending) recipients stay in
// sending for the next cycle.
func (s *Scheduler) finalizeCampaign(ctx context.Context, c *domain.Campaign) {
	pending, err := s.store.ListPendingRecipients(ctx, c.ID)
	if err != nil {
		log.Printf("[Scheduler] Campaign %s: finalize check failed: %v", c.ID, err)
		return
	}
	if len(pending) > 0 {
		return
	}
	now := time.Now()
	if err := s.store.UpdateCampaignStatus(ctx, c.ID, domain.CampaignSent, &now); err != nil {
		log.Printf("[Scheduler] Campaign %s: mark sent failed: %v", c.ID, err)
		return
	}
	log.Printf("[Scheduler] Campaign %s completed", c.ID)
}
