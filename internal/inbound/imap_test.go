package inbound

import (
	"context"
	"testing"
	"time"

	"github.com/luisant/mailcore/internal/domain"
)

func TestCollectWaitsForSlowFirstMessage(t *testing.T) {
	// The first FETCH result arrives well after the grace period; the
	// grace clock must not run before the first message event.
	msgCh := make(chan *domain.InboundMessage)
	go func() {
		time.Sleep(150 * time.Millisecond)
		msgCh <- &domain.InboundMessage{Subject: "late arrival"}
		close(msgCh)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := collectWithGrace(ctx, msgCh, 30*time.Millisecond, 10)
	if len(out) != 1 || out[0].Subject != "late arrival" {
		t.Errorf("messages = %+v, want the late first message", out)
	}
}

func TestCollectReturnsOnGraceAfterLastMessage(t *testing.T) {
	msgCh := make(chan *domain.InboundMessage)
	go func() {
		msgCh <- &domain.InboundMessage{Subject: "one"}
		msgCh <- &domain.InboundMessage{Subject: "two"}
		// Server goes silent without closing; grace must end the session.
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	out := collectWithGrace(ctx, msgCh, 50*time.Millisecond, 10)
	if len(out) != 2 {
		t.Fatalf("messages = %d, want 2", len(out))
	}
	if elapsed := time.Since(start); elapsed >= 2*time.Second {
		t.Errorf("collect ran %v, should have ended at the grace period", elapsed)
	}
}

func TestCollectCeilingBoundsEmptyWait(t *testing.T) {
	msgCh := make(chan *domain.InboundMessage)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := collectWithGrace(ctx, msgCh, time.Hour, 10)
	if len(out) != 0 {
		t.Errorf("messages = %d, want 0", len(out))
	}
}

func TestCollectStopsAtBatchSize(t *testing.T) {
	msgCh := make(chan *domain.InboundMessage, 5)
	for i := 0; i < 5; i++ {
		msgCh <- &domain.InboundMessage{}
	}

	out := collectWithGrace(context.Background(), msgCh, time.Hour, 3)
	if len(out) != 3 {
		t.Errorf("messages = %d, want 3", len(out))
	}
}
