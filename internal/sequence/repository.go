package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haulmont-ops/haulage-ledger/internal/platform/db"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// RepositoryPort defines the atomic counter operations. Next must be a single
// atomic read-modify-write per key; it is the only shared mutable resource in
// the ledger core.
type RepositoryPort interface {
	Next(ctx context.Context, tenant string, kind Kind, year int) (int64, error)
	Current(ctx context.Context, tenant string, kind Kind, year int) (int64, bool, error)
	RaiseFloor(ctx context.Context, tenant string, kind Kind, year int, seq int64) (int64, error)
}

// Repository provides PostgreSQL backed counters.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Next reads, increments and returns the counter under a RepeatableRead
// transaction with a row lock. A missing row is created lazily at the kind's
// starting value; a year rollover is a fresh row keyed by the new year.
func (r *Repository) Next(ctx context.Context, tenant string, kind Kind, year int) (int64, error) {
	var issued int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var seq int64
		err := tx.QueryRow(ctx,
			`SELECT seq FROM sequence_counters WHERE tenant=$1 AND kind=$2 AND year=$3 FOR UPDATE`,
			tenant, string(kind), year).Scan(&seq)
		if errors.Is(err, pgx.ErrNoRows) {
			issued = StartValue(kind)
			_, err = tx.Exec(ctx,
				`INSERT INTO sequence_counters (tenant, kind, year, seq) VALUES ($1, $2, $3, $4)`,
				tenant, string(kind), year, issued)
			return err
		}
		if err != nil {
			return err
		}
		issued = seq + 1
		_, err = tx.Exec(ctx,
			`UPDATE sequence_counters SET seq=$4 WHERE tenant=$1 AND kind=$2 AND year=$3`,
			tenant, string(kind), year, issued)
		return err
	})
	if err != nil {
		if db.IsSerializationFailure(err) || db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %v", shared.ErrCounterUnavailable, err)
		}
		return 0, err
	}
	return issued, nil
}

// Current returns the stored counter value, if any.
func (r *Repository) Current(ctx context.Context, tenant string, kind Kind, year int) (int64, bool, error) {
	var seq int64
	err := r.pool.QueryRow(ctx,
		`SELECT seq FROM sequence_counters WHERE tenant=$1 AND kind=$2 AND year=$3`,
		tenant, string(kind), year).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return seq, true, nil
}

// RaiseFloor sets the counter to at least seq, never lowering it, and returns
// the resulting value. Idempotent.
func (r *Repository) RaiseFloor(ctx context.Context, tenant string, kind Kind, year int, seq int64) (int64, error) {
	var result int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO sequence_counters (tenant, kind, year, seq) VALUES ($1, $2, $3, $4)
ON CONFLICT (tenant, kind, year) DO UPDATE SET seq = GREATEST(sequence_counters.seq, EXCLUDED.seq)
RETURNING seq`,
			tenant, string(kind), year, seq).Scan(&result)
	})
	if err != nil {
		if db.IsSerializationFailure(err) {
			return 0, fmt.Errorf("%w: %v", shared.ErrCounterUnavailable, err)
		}
		return 0, err
	}
	return result, nil
}
