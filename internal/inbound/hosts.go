package inbound

import (
	"github.com/luisant/mailcore/internal/config"
	"github.com/luisant/mailcore/internal/domain"
)

// Default mailbox ports: IMAP over TLS and POP3 over TLS.
const (
	defaultIMAPPort = 993
	defaultPOP3Port = 995
)

// hostResolver maps a sender to its mailbox endpoint. Precedence: the
// sender's own inbound override (set at sender-creation time), then the
// configured per-domain table, then the conventional imap.<domain> /
// pop.<domain> fallback.
type hostResolver struct {
	table map[string]config.HostPort
}

func newHostResolver(table map[string]config.HostPort) *hostResolver {
	return &hostResolver{table: table}
}

func (r *hostResolver) imap(sender *domain.Sender) (string, int) {
	return r.resolve(sender, "imap.", defaultIMAPPort)
}

func (r *hostResolver) pop3(sender *domain.Sender) (string, int) {
	return r.resolve(sender, "pop.", defaultPOP3Port)
}

func (r *hostResolver) resolve(sender *domain.Sender, prefix string, defaultPort int) (string, int) {
	if sender.InboundHost != "" {
		port := sender.InboundPort
		if port == 0 {
			port = defaultPort
		}
		return sender.InboundHost, port
	}

	dom := sender.Domain()
	if hp, ok := r.table[dom]; ok && hp.Host != "" {
		port := hp.Port
		if port == 0 {
			port = defaultPort
		}
		return hp.Host, port
	}

	return prefix + dom, defaultPort
}
