// Package repository persists counters, receipts and reclaimed deposits.
//
// Reads go straight to the backend. Every state change to a counter and its
// receipts happens inside Store.Update, which gives the callback exclusive
// access to one counter and commits all of its writes or none of them.
package repository

import (
	"context"
	"fmt"
	"math/bits"
	"strconv"
	"time"

	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

// Store is implemented by the memory, Postgres and SQLite backends.
type Store interface {
	// CreateCounter inserts c at c.ID, failing with model.ErrAlreadyExists
	// if any counter already occupies that address.
	CreateCounter(ctx context.Context, c *model.Counter) error
	GetCounter(ctx context.Context, id string) (*model.Counter, error)
	ListCounters(ctx context.Context) ([]model.Counter, error)

	GetReceipt(ctx context.Context, id string) (*model.Receipt, error)
	ListReceipts(ctx context.Context, counterID string) ([]model.Receipt, error)

	// Credits returns the deposits reclaimed by principal so far.
	Credits(ctx context.Context, principal string) (uint64, error)

	// Update runs fn with exclusive access to counterID. If fn returns an
	// error nothing it wrote is kept and the error is returned as is.
	Update(ctx context.Context, counterID string, fn func(Tx) error) error

	Close() error
}

// Tx is the view of one locked counter inside Store.Update.
type Tx interface {
	// Counter returns the locked counter. Changes to it are persisted by
	// SaveCounter.
	Counter() *model.Counter
	SaveCounter(ctx context.Context) error

	GetReceipt(ctx context.Context, id string) (*model.Receipt, error)
	// CreateReceipt inserts principal's receipt at its derived address,
	// failing with model.ErrDuplicateClaim if one is already there.
	CreateReceipt(ctx context.Context, principal string, now time.Time) (*model.Receipt, error)
	// DestroyReceipt removes r and credits its deposit to owner. It fails
	// with model.ErrUnauthorized if owner is not r's claimer.
	DestroyReceipt(ctx context.Context, r *model.Receipt, owner string) (uint64, error)
}

// Decrement takes one slot from the counter locked by tx.
func Decrement(ctx context.Context, tx Tx, now time.Time) error {
	if err := tx.Counter().Decrement(now); err != nil {
		return err
	}
	return tx.SaveCounter(ctx)
}

// Increment returns one slot to the counter locked by tx.
func Increment(ctx context.Context, tx Tx) error {
	if err := tx.Counter().Increment(); err != nil {
		return err
	}
	return tx.SaveCounter(ctx)
}

func checkOwner(r *model.Receipt, owner string) error {
	if r.Claimer != owner {
		return model.ErrUnauthorized
	}
	return nil
}

func addCredit(balance, amount uint64) (uint64, error) {
	sum, carry := bits.Add64(balance, amount, 0)
	if carry != 0 {
		return 0, model.ErrOverflow
	}
	return sum, nil
}

// Amounts travel as decimal text in both SQL backends.

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", field, err)
	}
	return v, nil
}
