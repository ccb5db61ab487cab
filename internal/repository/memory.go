package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/limited-claim/internal/address"
	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

// MemoryStore keeps everything in process memory. Each counter has its own
// lock held for the length of an Update; writes are staged on the
// transaction and applied together when the callback succeeds.
type MemoryStore struct {
	mu       sync.RWMutex
	counters map[string]*model.Counter
	locks    map[string]*sync.Mutex
	receipts map[string]*model.Receipt
	credits  map[string]uint64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*model.Counter),
		locks:    make(map[string]*sync.Mutex),
		receipts: make(map[string]*model.Receipt),
		credits:  make(map[string]uint64),
	}
}

// Close is a noop for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateCounter(ctx context.Context, c *model.Counter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.counters[c.ID]; ok {
		return model.ErrAlreadyExists
	}
	cp := *c
	s.counters[c.ID] = &cp
	s.locks[c.ID] = &sync.Mutex{}
	return nil
}

func (s *MemoryStore) GetCounter(ctx context.Context, id string) (*model.Counter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.counters[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCounters(ctx context.Context) ([]model.Counter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Counter, 0, len(s.counters))
	for _, c := range s.counters {
		out = append(out, *c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receipts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListReceipts(ctx context.Context, counterID string) ([]model.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []model.Receipt
	for _, r := range s.receipts {
		if r.CounterID == counterID {
			out = append(out, *r)
		}
	}
	s.mu.RUnlock()

	sortReceipts(out)
	return out, nil
}

func (s *MemoryStore) Credits(ctx context.Context, principal string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credits[principal], nil
}

func (s *MemoryStore) Update(ctx context.Context, counterID string, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	lock, ok := s.locks[counterID]
	s.mu.RUnlock()
	if !ok {
		return model.ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current := *s.counters[counterID]
	s.mu.RUnlock()

	tx := &memTx{
		store:     s,
		counter:   current,
		created:   make(map[string]*model.Receipt),
		destroyed: make(map[string]bool),
		credits:   make(map[string]uint64),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balances := make(map[string]uint64, len(tx.credits))
	for principal, amount := range tx.credits {
		next, err := addCredit(s.credits[principal], amount)
		if err != nil {
			return err
		}
		balances[principal] = next
	}

	if tx.dirty {
		c := tx.counter
		s.counters[c.ID] = &c
	}
	for id := range tx.destroyed {
		delete(s.receipts, id)
	}
	for id, r := range tx.created {
		s.receipts[id] = r
	}
	for principal, balance := range balances {
		s.credits[principal] = balance
	}
	return nil
}

type memTx struct {
	store   *MemoryStore
	counter model.Counter
	dirty   bool

	created   map[string]*model.Receipt
	destroyed map[string]bool
	credits   map[string]uint64
}

func (tx *memTx) Counter() *model.Counter { return &tx.counter }

func (tx *memTx) SaveCounter(ctx context.Context) error {
	tx.dirty = true
	return ctx.Err()
}

// lookup resolves id against staged writes, then the committed state.
func (tx *memTx) lookup(id string) (*model.Receipt, bool) {
	if r, ok := tx.created[id]; ok {
		return r, true
	}
	if tx.destroyed[id] {
		return nil, false
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	r, ok := tx.store.receipts[id]
	return r, ok
}

func (tx *memTx) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := tx.lookup(id)
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (tx *memTx) CreateReceipt(ctx context.Context, principal string, now time.Time) (*model.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := address.Receipt(tx.counter.ID, principal)
	if _, ok := tx.lookup(id); ok {
		return nil, model.ErrDuplicateClaim
	}
	r := &model.Receipt{
		ID:        id,
		CounterID: tx.counter.ID,
		Claimer:   principal,
		ClaimedAt: now,
		Deposit:   model.ReceiptDeposit,
	}
	tx.created[id] = r
	cp := *r
	return &cp, nil
}

func (tx *memTx) DestroyReceipt(ctx context.Context, r *model.Receipt, owner string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stored, ok := tx.lookup(r.ID)
	if !ok || stored.CounterID != tx.counter.ID {
		return 0, model.ErrNotFound
	}
	if err := checkOwner(stored, owner); err != nil {
		return 0, err
	}
	if _, staged := tx.created[r.ID]; staged {
		delete(tx.created, r.ID)
	} else {
		tx.destroyed[r.ID] = true
	}
	next, err := addCredit(tx.credits[owner], stored.Deposit)
	if err != nil {
		return 0, err
	}
	tx.credits[owner] = next
	return stored.Deposit, nil
}

func sortReceipts(rs []model.Receipt) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].ClaimedAt.Equal(rs[j].ClaimedAt) {
			return rs[i].ClaimedAt.Before(rs[j].ClaimedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
