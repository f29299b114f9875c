// Package models defines bridge nonce records and consume outcomes.
package models

import (
	"time"

	id "mirrorgate/pkg/domain"
)

// Status is the nonce lifecycle state. Active is the only state a nonce can
// leave; consumed and expired are terminal.
type Status string

const (
	StatusActive   Status = "active"
	StatusConsumed Status = "consumed"
	StatusExpired  Status = "expired"
)

// Nonce is a single-use, time-bounded replay guard for one bridge session.
type Nonce struct {
	ID        id.NonceID
	SubjectID id.SubjectID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Status    Status
}

// Expired reports whether the nonce's window has closed at the given time.
func (n *Nonce) Expired(now time.Time) bool {
	return now.After(n.ExpiresAt)
}

// ConsumeResult is the outcome of a consume attempt. Only ConsumeSuccess
// authorizes anything.
type ConsumeResult string

const (
	ConsumeSuccess         ConsumeResult = "success"
	ConsumeAlreadyConsumed ConsumeResult = "already_consumed"
	ConsumeExpired         ConsumeResult = "expired"
	ConsumeNotFound        ConsumeResult = "not_found"
)
