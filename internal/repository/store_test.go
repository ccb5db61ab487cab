package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/limited-claim/internal/address"
	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

var errAbort = errors.New("abort")

// runStoreSuite exercises the Store contract against one backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateCounter", func(t *testing.T) { testCreateCounter(t, newStore(t)) })
	t.Run("ClaimCommits", func(t *testing.T) { testClaimCommits(t, newStore(t)) })
	t.Run("FailedUpdateRollsBack", func(t *testing.T) { testFailedUpdateRollsBack(t, newStore(t)) })
	t.Run("DuplicateReceipt", func(t *testing.T) { testDuplicateReceipt(t, newStore(t)) })
	t.Run("DestroyReceipt", func(t *testing.T) { testDestroyReceipt(t, newStore(t)) })
	t.Run("MissingCounter", func(t *testing.T) { testMissingCounter(t, newStore(t)) })
	t.Run("ConcurrentClaims", func(t *testing.T) { testConcurrentClaims(t, newStore(t)) })
}

func newCounter(admin string, capacity uint64) *model.Counter {
	now := time.Unix(1_700_000_000, 0).UTC()
	return &model.Counter{
		ID:        address.Counter(admin),
		Admin:     admin,
		Capacity:  capacity,
		StartTime: now.Add(-time.Hour),
		Remaining: capacity,
		CreatedAt: now,
	}
}

func mustCreate(t *testing.T, s Store, c *model.Counter) {
	t.Helper()
	if err := s.CreateCounter(context.Background(), c); err != nil {
		t.Fatalf("CreateCounter() error = %v", err)
	}
}

func claim(ctx context.Context, s Store, counterID, principal string, now time.Time) error {
	return s.Update(ctx, counterID, func(tx Tx) error {
		if err := Decrement(ctx, tx, now); err != nil {
			return err
		}
		_, err := tx.CreateReceipt(ctx, principal, now)
		return err
	})
}

func testCreateCounter(t *testing.T, s Store) {
	ctx := context.Background()
	c := newCounter("admin-a", 3)
	mustCreate(t, s, c)

	if err := s.CreateCounter(ctx, newCounter("admin-a", 7)); !errors.Is(err, model.ErrAlreadyExists) {
		t.Fatalf("second CreateCounter() error = %v, want %v", err, model.ErrAlreadyExists)
	}

	got, err := s.GetCounter(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCounter() error = %v", err)
	}
	if got.Capacity != 3 || got.Remaining != 3 || got.Admin != "admin-a" {
		t.Fatalf("GetCounter() = %+v", got)
	}
	if !got.StartTime.Equal(c.StartTime) {
		t.Fatalf("StartTime = %v, want %v", got.StartTime, c.StartTime)
	}

	mustCreate(t, s, newCounter("admin-b", 0))
	list, err := s.ListCounters(ctx)
	if err != nil {
		t.Fatalf("ListCounters() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListCounters() returned %d counters, want 2", len(list))
	}
}

func testClaimCommits(t *testing.T, s Store) {
	ctx := context.Background()
	c := newCounter("admin", 2)
	mustCreate(t, s, c)
	now := c.CreatedAt

	if err := claim(ctx, s, c.ID, "alice", now); err != nil {
		t.Fatalf("claim() error = %v", err)
	}

	got, _ := s.GetCounter(ctx, c.ID)
	if got.Remaining != 1 {
		t.Fatalf("remaining = %d, want 1", got.Remaining)
	}
	r, err := s.GetReceipt(ctx, address.Receipt(c.ID, "alice"))
	if err != nil {
		t.Fatalf("GetReceipt() error = %v", err)
	}
	if r.Claimer != "alice" || r.CounterID != c.ID || !r.ClaimedAt.Equal(now) {
		t.Fatalf("receipt = %+v", r)
	}
	if r.Deposit != model.ReceiptDeposit {
		t.Fatalf("deposit = %d, want %d", r.Deposit, model.ReceiptDeposit)
	}

	list, err := s.ListReceipts(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListReceipts() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListReceipts() returned %d, want 1", len(list))
	}
}

func testFailedUpdateRollsBack(t *testing.T, s Store) {
	ctx := context.Background()
	c := newCounter("admin", 2)
	mustCreate(t, s, c)

	err := s.Update(ctx, c.ID, func(tx Tx) error {
		if err := Decrement(ctx, tx, c.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.CreateReceipt(ctx, "alice", c.CreatedAt); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("Update() error = %v, want %v", err, errAbort)
	}

	got, _ := s.GetCounter(ctx, c.ID)
	if got.Remaining != 2 {
		t.Fatalf("remaining after rollback = %d, want 2", got.Remaining)
	}
	if _, err := s.GetReceipt(ctx, address.Receipt(c.ID, "alice")); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetReceipt() after rollback error = %v, want %v", err, model.ErrNotFound)
	}
}

func testDuplicateReceipt(t *testing.T, s Store) {
	ctx := context.Background()
	c := newCounter("admin", 3)
	mustCreate(t, s, c)

	if err := claim(ctx, s, c.ID, "alice", c.CreatedAt); err != nil {
		t.Fatalf("first claim() error = %v", err)
	}
	if err := claim(ctx, s, c.ID, "alice", c.CreatedAt); !errors.Is(err, model.ErrDuplicateClaim) {
		t.Fatalf("second claim() error = %v, want %v", err, model.ErrDuplicateClaim)
	}

	got, _ := s.GetCounter(ctx, c.ID)
	if got.Remaining != 2 {
		t.Fatalf("remaining = %d, want exactly one decrement", got.Remaining)
	}
}

func testDestroyReceipt(t *testing.T, s Store) {
	ctx := context.Background()
	c := newCounter("admin", 1)
	mustCreate(t, s, c)
	if err := claim(ctx, s, c.ID, "alice", c.CreatedAt); err != nil {
		t.Fatalf("claim() error = %v", err)
	}
	id := address.Receipt(c.ID, "alice")

	err := s.Update(ctx, c.ID, func(tx Tx) error {
		r, err := tx.GetReceipt(ctx, id)
		if err != nil {
			return err
		}
		if err := Increment(ctx, tx); err != nil {
			return err
		}
		_, err = tx.DestroyReceipt(ctx, r, "mallory")
		return err
	})
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("destroy by stranger error = %v, want %v", err, model.ErrUnauthorized)
	}
	if got, _ := s.GetCounter(ctx, c.ID); got.Remaining != 0 {
		t.Fatalf("remaining = %d after unauthorized destroy, want 0", got.Remaining)
	}

	var credited uint64
	err = s.Update(ctx, c.ID, func(tx Tx) error {
		r, err := tx.GetReceipt(ctx, id)
		if err != nil {
			return err
		}
		if err := Increment(ctx, tx); err != nil {
			return err
		}
		credited, err = tx.DestroyReceipt(ctx, r, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("destroy by owner error = %v", err)
	}
	if credited != model.ReceiptDeposit {
		t.Fatalf("credited = %d, want %d", credited, model.ReceiptDeposit)
	}
	if _, err := s.GetReceipt(ctx, id); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetReceipt() after destroy error = %v, want %v", err, model.ErrNotFound)
	}
	balance, err := s.Credits(ctx, "alice")
	if err != nil {
		t.Fatalf("Credits() error = %v", err)
	}
	if balance != model.ReceiptDeposit {
		t.Fatalf("Credits() = %d, want %d", balance, model.ReceiptDeposit)
	}
	if balance, _ := s.Credits(ctx, "mallory"); balance != 0 {
		t.Fatalf("Credits(mallory) = %d, want 0", balance)
	}
}

func testMissingCounter(t *testing.T, s Store) {
	ctx := context.Background()
	called := false
	err := s.Update(ctx, address.Counter("nobody"), func(Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Update() error = %v, want %v", err, model.ErrNotFound)
	}
	if called {
		t.Fatal("callback ran for a missing counter")
	}
	if _, err := s.GetCounter(ctx, address.Counter("nobody")); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetCounter() error = %v, want %v", err, model.ErrNotFound)
	}
}

func testConcurrentClaims(t *testing.T, s Store) {
	ctx := context.Background()
	const capacity, claimers = 5, 20
	c := newCounter("admin", capacity)
	mustCreate(t, s, c)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		soldOut   atomic.Int32
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := claim(ctx, s, c.ID, fmt.Sprintf("user-%02d", i), c.CreatedAt)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, model.ErrSoldOut):
				soldOut.Add(1)
			default:
				t.Errorf("claim(%d) unexpected error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if successes.Load() != capacity {
		t.Fatalf("successes = %d, want %d", successes.Load(), capacity)
	}
	if soldOut.Load() != claimers-capacity {
		t.Fatalf("sold out = %d, want %d", soldOut.Load(), claimers-capacity)
	}
	got, _ := s.GetCounter(ctx, c.ID)
	if got.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", got.Remaining)
	}
	list, _ := s.ListReceipts(ctx, c.ID)
	if uint64(len(list)) != got.Claimed() {
		t.Fatalf("receipts = %d, want capacity - remaining = %d", len(list), got.Claimed())
	}
}
