package domain

import (
	"strings"
	"time"
)

// Provider enumerates the transport mechanisms a sender can be configured
// with. SMTP, Gmail and Outlook are outbound; IMAP and POP3 are inbound-only.
type Provider string

const (
	ProviderSMTP    Provider = "smtp"
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderIMAP    Provider = "imap"
	ProviderPOP3    Provider = "pop3"
)

// Sender is a configured outbound identity: an email address plus the
// credentials needed to speak to its provider.
type Sender struct {
	ID       string   `json:"id" db:"id"`
	Email    string   `json:"email" db:"email"`
	Name     string   `json:"name" db:"name"`
	Provider Provider `json:"provider" db:"provider"`

	// SMTP / IMAP / POP3 credentials.
	Host     string `json:"host" db:"host"`
	Port     int    `json:"port" db:"port"`
	Password string `json:"-" db:"password"`

	// OAuth credentials (gmail/outlook).
	AccessToken  string     `json:"-" db:"access_token"`
	RefreshToken string     `json:"-" db:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at" db:"expires_at"`

	// Inbound host overrides, resolved at sender-creation time. Empty means
	// "derive from the email domain".
	InboundHost string `json:"inbound_host" db:"inbound_host"`
	InboundPort int    `json:"inbound_port" db:"inbound_port"`
}

// Domain returns the part of the sender address after the '@', lowercased.
func (s *Sender) Domain() string {
	if i := strings.LastIndexByte(s.Email, '@'); i >= 0 {
		return strings.ToLower(s.Email[i+1:])
	}
	return ""
}

// EffectiveProvider returns the configured provider, or infers one when it
// is unset. The inference is a legacy fallback: explicit host+port means
// plain SMTP, otherwise well-known mailbox domains map to their OAuth
// provider. Senders created through the current API always carry an
// explicit provider.
func (s *Sender) EffectiveProvider() Provider {
	if s.Provider != "" {
		return s.Provider
	}
	if s.Host != "" && s.Port != 0 {
		return ProviderSMTP
	}
	switch s.Domain() {
	case "gmail.com", "googlemail.com":
		return ProviderGmail
	case "outlook.com", "hotmail.com", "live.com":
		return ProviderOutlook
	}
	return ProviderSMTP
}

// TokenExpired reports whether the sender's OAuth access token is missing
// or past its expiry.
func (s *Sender) TokenExpired(now time.Time) bool {
	if s.AccessToken == "" {
		return true
	}
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}
