package inbound

import (
	"testing"

	"github.com/luisant/mailcore/internal/config"
	"github.com/luisant/mailcore/internal/domain"
)

func TestResolveSenderOverrideWins(t *testing.T) {
	r := newHostResolver(map[string]config.HostPort{
		"corp.com": {Host: "mail.corp.com", Port: 1993},
	})
	sender := &domain.Sender{
		Email:       "ops@corp.com",
		InboundHost: "imap.private.corp.com",
		InboundPort: 2993,
	}

	host, port := r.imap(sender)
	if host != "imap.private.corp.com" || port != 2993 {
		t.Errorf("got %s:%d, want imap.private.corp.com:2993", host, port)
	}
}

func TestResolveSenderOverrideDefaultPort(t *testing.T) {
	r := newHostResolver(nil)
	sender := &domain.Sender{Email: "ops@corp.com", InboundHost: "mx.corp.com"}

	if _, port := r.imap(sender); port != defaultIMAPPort {
		t.Errorf("imap port = %d, want %d", port, defaultIMAPPort)
	}
	if _, port := r.pop3(sender); port != defaultPOP3Port {
		t.Errorf("pop3 port = %d, want %d", port, defaultPOP3Port)
	}
}

func TestResolveConfiguredTable(t *testing.T) {
	r := newHostResolver(map[string]config.HostPort{
		"corp.com": {Host: "mail.corp.com", Port: 1993},
	})
	sender := &domain.Sender{Email: "ops@corp.com"}

	host, port := r.imap(sender)
	if host != "mail.corp.com" || port != 1993 {
		t.Errorf("got %s:%d, want mail.corp.com:1993", host, port)
	}
}

func TestResolveConventionalFallback(t *testing.T) {
	r := newHostResolver(nil)
	sender := &domain.Sender{Email: "ops@corp.com"}

	host, port := r.imap(sender)
	if host != "imap.corp.com" || port != defaultIMAPPort {
		t.Errorf("imap fallback = %s:%d", host, port)
	}
	host, port = r.pop3(sender)
	if host != "pop.corp.com" || port != defaultPOP3Port {
		t.Errorf("pop3 fallback = %s:%d", host, port)
	}
}
