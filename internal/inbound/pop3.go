package inbound

import (
	"context"
	"fmt"

	"github.com/knadh/go-pop3"

	"github.com/luisant/mailcore/internal/domain"
)

// pop3Fetch downloads the sender's mailbox over POP3. Unlike IMAP there is
// no batching cap: the protocol has no server-side search, so every message
// in the maildrop is retrieved in order.
func (s *Synchronizer) pop3Fetch(ctx context.Context, sender *domain.Sender) ([]domain.InboundMessage, error) {
	host, port := s.hosts.pop3(sender)

	p := pop3.New(pop3.Opt{
		Host:        host,
		Port:        port,
		TLSEnabled:  pop3UseTLS(port),
		DialTimeout: s.cfg.ConnectTimeout,
	})
	conn, err := p.NewConn()
	if err != nil {
		return nil, fmt.Errorf("pop3 connect %s:%d: %w", host, port, err)
	}
	defer conn.Quit()

	if err := conn.Auth(sender.Email, sender.Password); err != nil {
		return nil, fmt.Errorf("pop3 auth %s: %w", sender.Email, err)
	}

	count, _, err := conn.Stat()
	if err != nil {
		return nil, fmt.Errorf("pop3 stat: %w", err)
	}

	out := make([]domain.InboundMessage, 0, count)
	for id := 1; id <= count; id++ {
		select {
		case <-ctx.Done():
			// Session ceiling reached; keep what was already retrieved.
			return out, nil
		default:
		}
		entity, err := conn.Retr(id)
		if err != nil {
			continue
		}
		parsed, err := parseEntity(entity)
		if err != nil {
			continue
		}
		out = append(out, *parsed)
	}
	return out, nil
}

// pop3UseTLS decides the connection mode from the resolved port: 110 is the
// standard plaintext port, everything else (995 and custom TLS ports)
// connects over TLS.
func pop3UseTLS(port int) bool {
	return port != 110
}
