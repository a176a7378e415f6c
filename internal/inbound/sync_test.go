package inbound

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luisant/mailcore/internal/config"
	"github.com/luisant/mailcore/internal/domain"
)

func testConfig() config.InboundConfig {
	return config.InboundConfig{
		ConnectTimeout: time.Second,
		AuthTimeout:    time.Second,
		TotalCeiling:   5 * time.Second,
		GracePeriod:    100 * time.Millisecond,
		BatchSize:      10,
	}
}

func TestSyncSuccessStampsSenderID(t *testing.T) {
	s := New(testConfig())
	s.fetchIMAP = func(context.Context, *domain.Sender) ([]domain.InboundMessage, error) {
		return []domain.InboundMessage{
			{From: "a@example.com", Subject: "one"},
			{From: "b@example.com", Subject: "two"},
		}, nil
	}

	res := s.Sync(context.Background(), &domain.Sender{ID: "s1", Email: "ops@corp.com"})
	if !res.Success {
		t.Fatalf("success = false, error = %q", res.Error)
	}
	if res.Count != 2 || len(res.Messages) != 2 {
		t.Fatalf("count = %d, messages = %d", res.Count, len(res.Messages))
	}
	for _, m := range res.Messages {
		if m.SenderID != "s1" {
			t.Errorf("message %q senderID = %q, want s1", m.Subject, m.SenderID)
		}
	}
}

func TestSyncFailureEnvelope(t *testing.T) {
	s := New(testConfig())
	s.fetchIMAP = func(context.Context, *domain.Sender) ([]domain.InboundMessage, error) {
		return nil, errors.New("imap login ops@corp.com: authentication failed")
	}

	res := s.Sync(context.Background(), &domain.Sender{ID: "s1", Email: "ops@corp.com"})
	if res.Success {
		t.Error("success should be false")
	}
	if res.Error == "" {
		t.Error("error string should be populated")
	}
	if res.Messages == nil {
		t.Error("messages should be an empty slice, not nil")
	}
}

func TestSyncSelectsPOP3ForPOP3Sender(t *testing.T) {
	s := New(testConfig())
	var usedPOP3, usedIMAP bool
	s.fetchIMAP = func(context.Context, *domain.Sender) ([]domain.InboundMessage, error) {
		usedIMAP = true
		return nil, nil
	}
	s.fetchPOP3 = func(context.Context, *domain.Sender) ([]domain.InboundMessage, error) {
		usedPOP3 = true
		return nil, nil
	}

	s.Sync(context.Background(), &domain.Sender{ID: "s1", Email: "ops@corp.com", Provider: domain.ProviderPOP3})
	if !usedPOP3 || usedIMAP {
		t.Errorf("pop3 = %v, imap = %v; want pop3 only", usedPOP3, usedIMAP)
	}
}

func TestSyncEmptyMailboxIsSuccess(t *testing.T) {
	s := New(testConfig())
	s.fetchPOP3 = func(context.Context, *domain.Sender) ([]domain.InboundMessage, error) {
		return nil, nil
	}

	res := s.Sync(context.Background(), &domain.Sender{ID: "s1", Email: "ops@corp.com", Provider: domain.ProviderPOP3})
	if !res.Success {
		t.Errorf("success = false for empty mailbox")
	}
	if res.Count != 0 {
		t.Errorf("count = %d, want 0", res.Count)
	}
	if res.Messages == nil || len(res.Messages) != 0 {
		t.Errorf("messages = %v, want empty slice", res.Messages)
	}
}

func TestSyncSerializesPerSender(t *testing.T) {
	s := New(testConfig())
	var inFlight, maxInFlight int32
	s.fetchIMAP = func(context.Context, *domain.Sender) ([]domain.InboundMessage, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if n <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	}

	sender := &domain.Sender{ID: "s1", Email: "ops@corp.com"}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Sync(context.Background(), sender)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Errorf("max concurrent syncs for one sender = %d, want 1", got)
	}
}
