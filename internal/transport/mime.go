package transport

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/k3a/html2text"
)

// composeMIME builds an RFC 5322 multipart/alternative message. When the
// message has no explicit text part one is derived from the HTML so
// text-only clients still get a readable body.
func composeMIME(fromName, fromAddr string, msg *Message) ([]byte, error) {
	text := msg.Text
	if text == "" && msg.HTML != "" {
		text = html2text.HTML2Text(msg.HTML)
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: fromName, Address: fromAddr}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	h.SetMessageID(fmt.Sprintf("%s@mailcore", uuid.New().String()))

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	if text != "" {
		var th mail.InlineHeader
		th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(th)
		if err != nil {
			return nil, fmt.Errorf("create text part: %w", err)
		}
		io.WriteString(pw, text)
		pw.Close()
	}

	if msg.HTML != "" {
		var hh mail.InlineHeader
		hh.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(hh)
		if err != nil {
			return nil, fmt.Errorf("create html part: %w", err)
		}
		io.WriteString(pw, msg.HTML)
		pw.Close()
	}

	iw.Close()
	mw.Close()
	return buf.Bytes(), nil
}
