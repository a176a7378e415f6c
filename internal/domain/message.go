package domain

import "time"

// InboundMessage is one parsed mailbox message returned by an inbound sync.
// It is ephemeral: the core returns it to the caller and persists nothing.
type InboundMessage struct {
	From     string    `json:"from"`
	FromName string    `json:"from_name"`
	Subject  string    `json:"subject"`
	Text     string    `json:"text"`
	HTML     string    `json:"html"`
	Date     time.Time `json:"date"`
	SenderID string    `json:"sender_id"`
}
