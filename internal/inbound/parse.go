package inbound

import (
	"bytes"
	"io"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"

	"github.com/luisant/mailcore/internal/domain"
)

// parseRaw parses a full RFC 5322 message as fetched over IMAP.
func parseRaw(raw []byte) (*domain.InboundMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return parseReader(mr), nil
}

// parseEntity parses a message entity as returned by the POP3 client.
func parseEntity(e *message.Entity) (*domain.InboundMessage, error) {
	return parseReader(mail.NewReader(e)), nil
}

// parseReader extracts the display fields from a parsed message. The first
// text/plain and text/html inline parts win; attachments are ignored. A
// malformed trailing part truncates parsing but keeps what was already
// read — a partial body beats a dropped message.
func parseReader(mr *mail.Reader) *domain.InboundMessage {
	m := &domain.InboundMessage{}

	h := mr.Header
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		m.From = from[0].Address
		m.FromName = from[0].Name
	}
	if subject, err := h.Subject(); err == nil {
		m.Subject = subject
	}
	if date, err := h.Date(); err == nil {
		m.Date = date
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF || err != nil {
			break
		}
		ih, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := ih.ContentType()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		switch ct {
		case "text/plain":
			if m.Text == "" {
				m.Text = string(body)
			}
		case "text/html":
			if m.HTML == "" {
				m.HTML = string(body)
			}
		}
	}

	// HTML-only messages still get a text rendering for plain display.
	if m.Text == "" && m.HTML != "" {
		m.Text = html2text.HTML2Text(m.HTML)
	}
	return m
}
