package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/limited-claim/internal/address"
	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

// PostgresStore implements Store on PostgreSQL using pgx directly.
//
// Update serialises writers on a counter with SELECT ... FOR UPDATE: the
// row lock is taken on the first statement of the transaction and held
// until COMMIT or ROLLBACK, so two claims can never read the same remaining
// value and both write it back decremented by one.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore. The schema must already exist.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgCounterColumns = `id::text, admin, capacity::text, start_time, remaining::text, created_at`

const pgReceiptColumns = `id::text, counter_id::text, claimer, claimed_at, deposit::text`

func (s *PostgresStore) CreateCounter(ctx context.Context, c *model.Counter) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO counters (id, admin, capacity, start_time, remaining, created_at)
		 VALUES ($1, $2, $3::text::numeric, $4, $5::text::numeric, $6)`,
		c.ID, c.Admin, formatAmount(c.Capacity), c.StartTime, formatAmount(c.Remaining), c.CreatedAt,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return model.ErrAlreadyExists
		}
		return fmt.Errorf("insert counter: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCounter(ctx context.Context, id string) (*model.Counter, error) {
	return pgGetCounter(ctx, s.db, id, false)
}

func (s *PostgresStore) ListCounters(ctx context.Context) ([]model.Counter, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pgCounterColumns+`
		 FROM counters
		 ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	var counters []model.Counter
	for rows.Next() {
		c, err := pgScanCounter(rows)
		if err != nil {
			return nil, err
		}
		counters = append(counters, *c)
	}
	return counters, rows.Err()
}

func (s *PostgresStore) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	return pgGetReceipt(ctx, s.db, `WHERE id = $1`, id)
}

func (s *PostgresStore) ListReceipts(ctx context.Context, counterID string) ([]model.Receipt, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pgReceiptColumns+`
		 FROM receipts
		 WHERE counter_id = $1
		 ORDER BY claimed_at ASC, id`,
		counterID,
	)
	if err != nil {
		if pgIsInvalidText(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []model.Receipt
	for rows.Next() {
		r, err := pgScanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, *r)
	}
	if err := rows.Err(); err != nil {
		if pgIsInvalidText(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return receipts, nil
}

func (s *PostgresStore) Credits(ctx context.Context, principal string) (uint64, error) {
	var amount string
	err := s.db.QueryRow(ctx,
		`SELECT amount::text FROM account_credits WHERE principal = $1`,
		principal,
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get credits: %w", err)
	}
	return parseAmount("credits", amount)
}

func (s *PostgresStore) Update(ctx context.Context, counterID string, fn func(Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	c, err := pgGetCounter(ctx, tx, counterID, true)
	if err != nil {
		return err
	}

	if err = fn(&pgTx{tx: tx, counter: c}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx      pgx.Tx
	counter *model.Counter
}

func (t *pgTx) Counter() *model.Counter { return t.counter }

func (t *pgTx) SaveCounter(ctx context.Context) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE counters SET remaining = $2::text::numeric WHERE id = $1`,
		t.counter.ID, formatAmount(t.counter.Remaining),
	)
	if err != nil {
		return fmt.Errorf("update remaining: %w", err)
	}
	return nil
}

func (t *pgTx) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	return pgGetReceipt(ctx, t.tx, `WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) CreateReceipt(ctx context.Context, principal string, now time.Time) (*model.Receipt, error) {
	r := &model.Receipt{
		ID:        address.Receipt(t.counter.ID, principal),
		CounterID: t.counter.ID,
		Claimer:   principal,
		ClaimedAt: now,
		Deposit:   model.ReceiptDeposit,
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO receipts (id, counter_id, claimer, claimed_at, deposit)
		 VALUES ($1, $2, $3, $4, $5::text::numeric)
		 ON CONFLICT DO NOTHING`,
		r.ID, r.CounterID, r.Claimer, r.ClaimedAt, formatAmount(r.Deposit),
	)
	if err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, model.ErrDuplicateClaim
	}
	return r, nil
}

func (t *pgTx) DestroyReceipt(ctx context.Context, r *model.Receipt, owner string) (uint64, error) {
	stored, err := pgGetReceipt(ctx, t.tx, `WHERE id = $1 AND counter_id = $2 FOR UPDATE`, r.ID, t.counter.ID)
	if err != nil {
		return 0, err
	}
	if err := checkOwner(stored, owner); err != nil {
		return 0, err
	}

	if _, err := t.tx.Exec(ctx, `DELETE FROM receipts WHERE id = $1`, stored.ID); err != nil {
		return 0, fmt.Errorf("delete receipt: %w", err)
	}

	var balance string
	err = t.tx.QueryRow(ctx,
		`INSERT INTO account_credits (principal, amount)
		 VALUES ($1, $2::text::numeric)
		 ON CONFLICT (principal) DO UPDATE SET amount = account_credits.amount + EXCLUDED.amount
		 RETURNING amount::text`,
		owner, formatAmount(stored.Deposit),
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}
	if _, err := strconv.ParseUint(balance, 10, 64); err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, model.ErrOverflow
		}
		return 0, fmt.Errorf("decode credits: %w", err)
	}
	return stored.Deposit, nil
}

func pgGetCounter(ctx context.Context, q pgQuerier, id string, lock bool) (*model.Counter, error) {
	query := `SELECT ` + pgCounterColumns + ` FROM counters WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	c, err := pgScanCounter(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgIsInvalidText(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get counter: %w", err)
	}
	return c, nil
}

func pgGetReceipt(ctx context.Context, q pgQuerier, where string, args ...any) (*model.Receipt, error) {
	r, err := pgScanReceipt(q.QueryRow(ctx, `SELECT `+pgReceiptColumns+` FROM receipts `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgIsInvalidText(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return r, nil
}

func pgScanCounter(row pgx.Row) (*model.Counter, error) {
	var (
		c                   model.Counter
		capacity, remaining string
	)
	if err := row.Scan(&c.ID, &c.Admin, &capacity, &c.StartTime, &remaining, &c.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.Capacity, err = parseAmount("capacity", capacity); err != nil {
		return nil, err
	}
	if c.Remaining, err = parseAmount("remaining", remaining); err != nil {
		return nil, err
	}
	c.StartTime = c.StartTime.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func pgScanReceipt(row pgx.Row) (*model.Receipt, error) {
	var (
		r       model.Receipt
		deposit string
	)
	if err := row.Scan(&r.ID, &r.CounterID, &r.Claimer, &r.ClaimedAt, &deposit); err != nil {
		return nil, err
	}
	var err error
	if r.Deposit, err = parseAmount("deposit", deposit); err != nil {
		return nil, err
	}
	r.ClaimedAt = r.ClaimedAt.UTC()
	return &r, nil
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}

// pgIsInvalidText reports a malformed UUID literal, which can never address
// an existing row.
func pgIsInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "22P02" // invalid_text_representation
}
