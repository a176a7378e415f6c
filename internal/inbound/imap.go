package inbound

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/luisant/mailcore/internal/domain"
)

// imapFetch opens an IMAP session, selects INBOX read-only and streams the
// most recent batch of messages through a fetch→parse pump. The connection
// is closed on every exit path.
func (s *Synchronizer) imapFetch(ctx context.Context, sender *domain.Sender) ([]domain.InboundMessage, error) {
	host, port := s.hosts.imap(sender)
	addr := fmt.Sprintf("%s:%d", host, port)

	dialer := &net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}

	client := imapclient.New(conn, nil)
	defer client.Close()

	// Bound the login exchange with a connection deadline; a hung or
	// unauthorized server fails here instead of holding the session open.
	conn.SetDeadline(time.Now().Add(s.cfg.AuthTimeout))
	if err := client.Login(sender.Email, sender.Password).Wait(); err != nil {
		return nil, fmt.Errorf("imap login %s: %w", sender.Email, err)
	}
	conn.SetDeadline(time.Time{})

	if _, err := client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("imap select inbox: %w", err)
	}

	searchData, err := client.Search(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}

	batch := newestFirst(searchData.AllSeqNums(), s.cfg.BatchSize)
	if len(batch) == 0 {
		return nil, nil
	}

	var seqSet imap.SeqSet
	for _, n := range batch {
		seqSet.AddNum(n)
	}
	section := &imap.FetchItemBodySection{}
	fetchCmd := client.Fetch(seqSet, &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{section},
	})

	return s.pump(ctx, fetchCmd, section, len(batch)), nil
}

// pump consumes fetch results as they stream in. It finishes when the
// whole batch is parsed, when no message has arrived for the grace period,
// or when the context ceiling expires; in every case the messages parsed
// so far are returned.
func (s *Synchronizer) pump(ctx context.Context, fetchCmd *imapclient.FetchCommand, section *imap.FetchItemBodySection, want int) []domain.InboundMessage {
	msgCh := make(chan *domain.InboundMessage)

	go func() {
		defer close(msgCh)
		defer fetchCmd.Close()
		for {
			data := fetchCmd.Next()
			if data == nil {
				return
			}
			buf, err := data.Collect()
			if err != nil {
				continue
			}
			raw := buf.FindBodySection(section)
			if raw == nil {
				continue
			}
			parsed, err := parseRaw(raw)
			if err != nil {
				// A message that doesn't parse is skipped, not fatal.
				continue
			}
			select {
			case msgCh <- parsed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return collectWithGrace(ctx, msgCh, s.cfg.GracePeriod, want)
}

// collectWithGrace accumulates streamed messages until the whole batch is
// in, no message has followed the previous one within the grace period, or
// the context ceiling expires. The grace clock starts at the first message
// event; before that only the ceiling bounds the wait, so a slow first
// FETCH result is not mistaken for an empty mailbox.
func collectWithGrace(ctx context.Context, msgCh <-chan *domain.InboundMessage, grace time.Duration, want int) []domain.InboundMessage {
	var out []domain.InboundMessage
	var timer *time.Timer
	var graceC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case m, ok := <-msgCh:
			if !ok {
				return out
			}
			out = append(out, *m)
			if len(out) >= want {
				return out
			}
			if timer == nil {
				timer = time.NewTimer(grace)
				graceC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(grace)
			}
		case <-graceC:
			return out
		case <-ctx.Done():
			return out
		}
	}
}

// newestFirst returns at most limit sequence numbers, highest (most
// recent) first. The cap bounds memory and avoids provider-side resets on
// large mailboxes.
func newestFirst(nums []uint32, limit int) []uint32 {
	sorted := make([]uint32, len(nums))
	copy(sorted, nums)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
