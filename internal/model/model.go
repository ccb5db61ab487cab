// Package model defines the core domain types for the limited-claim system.
package model

import (
	"math/bits"
	"time"
)

// ReceiptDeposit is the storage reserved for one receipt record, in bytes.
// It is charged to the claimer when the receipt is created and credited back
// to them when the receipt is destroyed.
const ReceiptDeposit uint64 = 8 + 32 + 8 + 1

// Counter is the single shared capacity record owned by one admin.
// Admin, Capacity and StartTime never change after creation.
type Counter struct {
	ID        string    `json:"id"`
	Admin     string    `json:"admin"`
	Capacity  uint64    `json:"capacity"`
	StartTime time.Time `json:"start_time"`
	Remaining uint64    `json:"remaining"`
	CreatedAt time.Time `json:"created_at"`
}

// Start times are limited to years 1 through 9999, the range both the JSON
// encoding of time.Time and Postgres TIMESTAMPTZ can carry.
var (
	MinStartTime = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxStartTime = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
)

// ValidStartTime reports whether t can be stored and served.
func ValidStartTime(t time.Time) bool {
	return !t.Before(MinStartTime) && !t.After(MaxStartTime)
}

// Claimed returns the number of slots currently held by receipts.
func (c *Counter) Claimed() uint64 {
	return c.Capacity - c.Remaining
}

// IsSoldOut returns true when no slots remain.
func (c *Counter) IsSoldOut() bool {
	return c.Remaining == 0
}

// Started reports whether claims are accepted at now.
func (c *Counter) Started(now time.Time) bool {
	return !now.Before(c.StartTime)
}

// Decrement takes one slot. Availability is checked before the start time,
// so a sold-out counter reports ErrSoldOut even before it opens.
func (c *Counter) Decrement(now time.Time) error {
	if c.IsSoldOut() {
		return ErrSoldOut
	}
	if !c.Started(now) {
		return ErrNotStarted
	}
	next, borrow := bits.Sub64(c.Remaining, 1, 0)
	if borrow != 0 {
		return ErrSoldOut
	}
	c.Remaining = next
	return nil
}

// Increment returns one slot to the pool.
func (c *Counter) Increment() error {
	if c.Remaining >= c.Capacity {
		return ErrAtCapacity
	}
	next, carry := bits.Add64(c.Remaining, 1, 0)
	if carry != 0 {
		return ErrOverflow
	}
	c.Remaining = next
	return nil
}

// Receipt is the per-principal proof of an active claim on a counter.
type Receipt struct {
	ID        string    `json:"id"`
	CounterID string    `json:"counter_id"`
	Claimer   string    `json:"claimer"`
	ClaimedAt time.Time `json:"claimed_at"`
	Deposit   uint64    `json:"deposit"`
}

// EventKind names the observable side effect of a successful operation.
type EventKind string

const (
	EventClaim  EventKind = "claim"
	EventCancel EventKind = "cancel"
)

// Event is emitted once per successful Claim or Cancel for audit and
// indexing consumers. Remaining is the value after the operation committed.
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	Claimer    string    `json:"claimer"`
	Counter    string    `json:"counter"`
	Remaining  uint64    `json:"remaining"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CreateCounterRequest is the payload for initializing a counter.
// StartTime is unix seconds.
type CreateCounterRequest struct {
	Capacity  uint64 `json:"capacity"`
	StartTime int64  `json:"start_time"`
}

// CancelRequest is the payload for cancelling a claim. An empty ReceiptID
// means the caller's own receipt.
type CancelRequest struct {
	ReceiptID string `json:"receipt_id,omitempty"`
}

// ClaimResult summarises a successful claim.
type ClaimResult struct {
	Receipt   Receipt `json:"receipt"`
	Remaining uint64  `json:"remaining"`
}

// CancelResult summarises a successful cancel.
type CancelResult struct {
	CounterID string `json:"counter_id"`
	ReceiptID string `json:"receipt_id"`
	Claimer   string `json:"claimer"`
	Remaining uint64 `json:"remaining"`
	Credited  uint64 `json:"credited"`
}

// CreditsResponse reports the storage deposits reclaimed by a principal.
type CreditsResponse struct {
	Principal string `json:"principal"`
	Credited  uint64 `json:"credited"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}
