package domain

import "errors"

// Invariant violations surfaced by Validate helpers.
var (
	ErrScheduledWithoutTime = errors.New("scheduled campaign has no scheduled_at")
	ErrSentWithoutTime      = errors.New("sent campaign has no sent_at")
)
