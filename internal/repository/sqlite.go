package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/limited-claim/internal/address"
	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

// SQLiteStore implements Store on an embedded SQLite database.
//
// SQLite has no row locks. The handle opened by database.OpenSQLite begins
// every transaction IMMEDIATE on a single connection, so Update holds the
// database write lock from its first statement and writers run one at a time.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore constructs a SQLiteStore. The schema must already exist.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlScanner interface {
	Scan(dest ...any) error
}

const sqliteCounterColumns = `id, admin, capacity, start_time, remaining, created_at`

const sqliteReceiptColumns = `id, counter_id, claimer, claimed_at, deposit`

func (s *SQLiteStore) CreateCounter(ctx context.Context, c *model.Counter) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO counters (id, admin, capacity, start_time, remaining, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		c.ID, c.Admin, formatAmount(c.Capacity), c.StartTime.Unix(), formatAmount(c.Remaining), c.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert counter: %w", err)
	}
	if n == 0 {
		return model.ErrAlreadyExists
	}
	return nil
}

func (s *SQLiteStore) GetCounter(ctx context.Context, id string) (*model.Counter, error) {
	return sqliteGetCounter(ctx, s.db, id)
}

func (s *SQLiteStore) ListCounters(ctx context.Context) ([]model.Counter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteCounterColumns+`
		 FROM counters
		 ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	var counters []model.Counter
	for rows.Next() {
		c, err := sqliteScanCounter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counters = append(counters, *c)
	}
	return counters, rows.Err()
}

func (s *SQLiteStore) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	return sqliteGetReceipt(ctx, s.db, `WHERE id = ?`, id)
}

func (s *SQLiteStore) ListReceipts(ctx context.Context, counterID string) ([]model.Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteReceiptColumns+`
		 FROM receipts
		 WHERE counter_id = ?
		 ORDER BY claimed_at ASC, id`,
		counterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []model.Receipt
	for rows.Next() {
		r, err := sqliteScanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, *r)
	}
	return receipts, rows.Err()
}

func (s *SQLiteStore) Credits(ctx context.Context, principal string) (uint64, error) {
	return sqliteCredits(ctx, s.db, principal)
}

func (s *SQLiteStore) Update(ctx context.Context, counterID string, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	c, err := sqliteGetCounter(ctx, tx, counterID)
	if err != nil {
		return err
	}

	if err = fn(&sqliteTx{tx: tx, counter: c}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx      *sql.Tx
	counter *model.Counter
}

func (t *sqliteTx) Counter() *model.Counter { return t.counter }

func (t *sqliteTx) SaveCounter(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE counters SET remaining = ? WHERE id = ?`,
		formatAmount(t.counter.Remaining), t.counter.ID,
	)
	if err != nil {
		return fmt.Errorf("update remaining: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	return sqliteGetReceipt(ctx, t.tx, `WHERE id = ?`, id)
}

func (t *sqliteTx) CreateReceipt(ctx context.Context, principal string, now time.Time) (*model.Receipt, error) {
	r := &model.Receipt{
		ID:        address.Receipt(t.counter.ID, principal),
		CounterID: t.counter.ID,
		Claimer:   principal,
		ClaimedAt: now,
		Deposit:   model.ReceiptDeposit,
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO receipts (id, counter_id, claimer, claimed_at, deposit)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		r.ID, r.CounterID, r.Claimer, r.ClaimedAt.Unix(), formatAmount(r.Deposit),
	)
	if err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}
	if n == 0 {
		return nil, model.ErrDuplicateClaim
	}
	return r, nil
}

func (t *sqliteTx) DestroyReceipt(ctx context.Context, r *model.Receipt, owner string) (uint64, error) {
	stored, err := sqliteGetReceipt(ctx, t.tx, `WHERE id = ? AND counter_id = ?`, r.ID, t.counter.ID)
	if err != nil {
		return 0, err
	}
	if err := checkOwner(stored, owner); err != nil {
		return 0, err
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM receipts WHERE id = ?`, stored.ID); err != nil {
		return 0, fmt.Errorf("delete receipt: %w", err)
	}

	balance, err := sqliteCredits(ctx, t.tx, owner)
	if err != nil {
		return 0, err
	}
	next, err := addCredit(balance, stored.Deposit)
	if err != nil {
		return 0, err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO account_credits (principal, amount) VALUES (?, ?)
		 ON CONFLICT (principal) DO UPDATE SET amount = excluded.amount`,
		owner, formatAmount(next),
	)
	if err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}
	return stored.Deposit, nil
}

func sqliteGetCounter(ctx context.Context, q sqlQuerier, id string) (*model.Counter, error) {
	c, err := sqliteScanCounter(q.QueryRowContext(ctx,
		`SELECT `+sqliteCounterColumns+` FROM counters WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get counter: %w", err)
	}
	return c, nil
}

func sqliteGetReceipt(ctx context.Context, q sqlQuerier, where string, args ...any) (*model.Receipt, error) {
	r, err := sqliteScanReceipt(q.QueryRowContext(ctx,
		`SELECT `+sqliteReceiptColumns+` FROM receipts `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return r, nil
}

func sqliteCredits(ctx context.Context, q sqlQuerier, principal string) (uint64, error) {
	var amount string
	err := q.QueryRowContext(ctx,
		`SELECT amount FROM account_credits WHERE principal = ?`, principal,
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get credits: %w", err)
	}
	return parseAmount("credits", amount)
}

func sqliteScanCounter(row sqlScanner) (*model.Counter, error) {
	var (
		c                   model.Counter
		capacity, remaining string
		start, created      int64
	)
	if err := row.Scan(&c.ID, &c.Admin, &capacity, &start, &remaining, &created); err != nil {
		return nil, err
	}
	var err error
	if c.Capacity, err = parseAmount("capacity", capacity); err != nil {
		return nil, err
	}
	if c.Remaining, err = parseAmount("remaining", remaining); err != nil {
		return nil, err
	}
	c.StartTime = time.Unix(start, 0).UTC()
	c.CreatedAt = time.Unix(created, 0).UTC()
	return &c, nil
}

func sqliteScanReceipt(row sqlScanner) (*model.Receipt, error) {
	var (
		r       model.Receipt
		deposit string
		claimed int64
	)
	if err := row.Scan(&r.ID, &r.CounterID, &r.Claimer, &claimed, &deposit); err != nil {
		return nil, err
	}
	var err error
	if r.Deposit, err = parseAmount("deposit", deposit); err != nil {
		return nil, err
	}
	r.ClaimedAt = time.Unix(claimed, 0).UTC()
	return &r, nil
}
