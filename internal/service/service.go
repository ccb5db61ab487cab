// Package service implements the Initialize, Claim and Cancel operations on
// top of the repository's transactional Store.
package service

import (
	"context"
	"fmt"
	"hash/maphash"
	"strings"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/limited-claim/internal/address"
	"github.com/Shivanand-hulikatti/limited-claim/internal/clock"
	"github.com/Shivanand-hulikatti/limited-claim/internal/events"
	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
	"github.com/Shivanand-hulikatti/limited-claim/internal/repository"
)

// Publisher receives events after their operation has committed.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event)
}

// ResultRecorder counts operation outcomes and seeds the remaining slots of
// counters that have not produced an event yet.
type ResultRecorder interface {
	RecordResult(op string, err error)
	SetRemaining(counterID string, remaining uint64)
}

type nopRecorder struct{}

func (nopRecorder) RecordResult(string, error)  {}
func (nopRecorder) SetRemaining(string, uint64) {}

// sectionCount is the number of lock stripes ordering commits per counter.
const sectionCount = 64

// ClaimService orchestrates counter and receipt operations. Principals passed
// in are already authenticated; the service only compares them.
type ClaimService struct {
	store   repository.Store
	clock   clock.Clock
	events  Publisher
	results ResultRecorder

	// sections hold a counter from before its commit until its event is
	// published, so sinks observe events in commit order.
	seed     maphash.Seed
	sections [sectionCount]sync.Mutex
}

// NewClaimService constructs a ClaimService. results may be nil.
func NewClaimService(store repository.Store, clk clock.Clock, pub Publisher, results ResultRecorder) *ClaimService {
	if results == nil {
		results = nopRecorder{}
	}
	return &ClaimService{store: store, clock: clk, events: pub, results: results, seed: maphash.MakeSeed()}
}

func (s *ClaimService) section(counterID string) *sync.Mutex {
	return &s.sections[maphash.String(s.seed, counterID)%sectionCount]
}

// now is the host time at unix-second resolution, the precision start times
// and receipt timestamps are kept at.
func (s *ClaimService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Second)
}

// Initialize creates admin's counter with every slot free.
func (s *ClaimService) Initialize(ctx context.Context, admin string, capacity uint64, startTime time.Time) (*model.Counter, error) {
	c, err := s.initialize(ctx, admin, capacity, startTime)
	s.results.RecordResult(events.OpInitialize, err)
	if err == nil {
		s.results.SetRemaining(c.ID, c.Remaining)
	}
	return c, err
}

func (s *ClaimService) initialize(ctx context.Context, admin string, capacity uint64, startTime time.Time) (*model.Counter, error) {
	if strings.TrimSpace(admin) == "" {
		return nil, fmt.Errorf("%w: admin is required", model.ErrInvalidRequest)
	}
	if !model.ValidStartTime(startTime) {
		return nil, fmt.Errorf("%w: start time must fall between %s and %s", model.ErrInvalidRequest,
			model.MinStartTime.Format(time.RFC3339), model.MaxStartTime.Format(time.RFC3339))
	}
	c := &model.Counter{
		ID:        address.Counter(admin),
		Admin:     admin,
		Capacity:  capacity,
		StartTime: startTime.UTC().Truncate(time.Second),
		Remaining: capacity,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateCounter(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Claim takes one slot of counterID for principal and records a receipt.
// The decrement and the receipt insert commit together or not at all.
func (s *ClaimService) Claim(ctx context.Context, counterID, principal string) (*model.ClaimResult, error) {
	res, err := s.claim(ctx, counterID, principal)
	s.results.RecordResult(events.OpClaim, err)
	return res, err
}

func (s *ClaimService) claim(ctx context.Context, counterID, principal string) (*model.ClaimResult, error) {
	if strings.TrimSpace(principal) == "" {
		return nil, fmt.Errorf("%w: principal is required", model.ErrInvalidRequest)
	}
	mu := s.section(counterID)
	mu.Lock()
	defer mu.Unlock()

	now := s.now()
	var res model.ClaimResult
	err := s.store.Update(ctx, counterID, func(tx repository.Tx) error {
		if err := repository.Decrement(ctx, tx, now); err != nil {
			return err
		}
		r, err := tx.CreateReceipt(ctx, principal, now)
		if err != nil {
			return err
		}
		res = model.ClaimResult{Receipt: *r, Remaining: tx.Counter().Remaining}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, events.New(model.EventClaim, principal, counterID, res.Remaining, now))
	return &res, nil
}

// Cancel releases the receipt receiptID on counterID and credits its deposit
// to principal. An empty receiptID means principal's own receipt. Ownership
// is checked before anything is written.
func (s *ClaimService) Cancel(ctx context.Context, counterID, principal, receiptID string) (*model.CancelResult, error) {
	res, err := s.cancel(ctx, counterID, principal, receiptID)
	s.results.RecordResult(events.OpCancel, err)
	return res, err
}

func (s *ClaimService) cancel(ctx context.Context, counterID, principal, receiptID string) (*model.CancelResult, error) {
	if strings.TrimSpace(principal) == "" {
		return nil, fmt.Errorf("%w: principal is required", model.ErrInvalidRequest)
	}
	if receiptID == "" {
		receiptID = address.Receipt(counterID, principal)
	}
	mu := s.section(counterID)
	mu.Lock()
	defer mu.Unlock()

	now := s.now()
	var res model.CancelResult
	err := s.store.Update(ctx, counterID, func(tx repository.Tx) error {
		r, err := tx.GetReceipt(ctx, receiptID)
		if err != nil {
			return err
		}
		if r.CounterID != counterID {
			return model.ErrNotFound
		}
		if r.Claimer != principal {
			return model.ErrUnauthorized
		}
		// A live receipt implies remaining < capacity; AtCapacity here means
		// the stored state is already inconsistent.
		if err := repository.Increment(ctx, tx); err != nil {
			return err
		}
		credited, err := tx.DestroyReceipt(ctx, r, principal)
		if err != nil {
			return err
		}
		res = model.CancelResult{
			CounterID: counterID,
			ReceiptID: r.ID,
			Claimer:   r.Claimer,
			Remaining: tx.Counter().Remaining,
			Credited:  credited,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, events.New(model.EventCancel, res.Claimer, counterID, res.Remaining, now))
	return &res, nil
}

// GetCounter returns a single counter by address.
func (s *ClaimService) GetCounter(ctx context.Context, id string) (*model.Counter, error) {
	return s.store.GetCounter(ctx, id)
}

// CounterOf returns the counter owned by admin.
func (s *ClaimService) CounterOf(ctx context.Context, admin string) (*model.Counter, error) {
	return s.store.GetCounter(ctx, address.Counter(admin))
}

// ListCounters returns all counters, newest first.
func (s *ClaimService) ListCounters(ctx context.Context) ([]model.Counter, error) {
	return s.store.ListCounters(ctx)
}

// GetReceipt returns principal's receipt on counterID.
func (s *ClaimService) GetReceipt(ctx context.Context, counterID, principal string) (*model.Receipt, error) {
	return s.store.GetReceipt(ctx, address.Receipt(counterID, principal))
}

// ListReceipts returns the live receipts of counterID, oldest first.
func (s *ClaimService) ListReceipts(ctx context.Context, counterID string) ([]model.Receipt, error) {
	if _, err := s.store.GetCounter(ctx, counterID); err != nil {
		return nil, err
	}
	return s.store.ListReceipts(ctx, counterID)
}

// Credits returns the deposits reclaimed by principal through cancels.
func (s *ClaimService) Credits(ctx context.Context, principal string) (uint64, error) {
	return s.store.Credits(ctx, principal)
}
