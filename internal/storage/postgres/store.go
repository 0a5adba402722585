package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collateralScope/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS collateral_status_changes (
	id UUID PRIMARY KEY,
	collateral TEXT NOT NULL,
	old_status TEXT NOT NULL,
	new_status TEXT NOT NULL,
	when_default BIGINT,
	observed_at BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS collateral_price_snapshots (
	collateral TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	when_default BIGINT,
	reference_rate NUMERIC NOT NULL,
	total_basket_value NUMERIC,
	lp_token_price NUMERIC,
	token_prices TEXT[],
	is_fallback BOOLEAN NOT NULL,
	price NUMERIC NOT NULL,
	PRIMARY KEY (collateral, observed_at)
);

CREATE TABLE IF NOT EXISTS collateral_state (
	name TEXT PRIMARY KEY,
	prev_reference_price NUMERIC(78, 0) NOT NULL,
	when_default BIGINT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for collateral observations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// PutStatusChange inserts a status transition. Replays of the same id are ignored.
func (s *Store) PutStatusChange(ctx context.Context, change model.StatusChange) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO collateral_status_changes (
			id, collateral, old_status, new_status, when_default, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`,
		change.ID,
		change.Collateral,
		change.Old.String(),
		change.New.String(),
		whenDefaultParam(change.WhenDefault),
		int64(change.ObservedAt),
	)
	if err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	return nil
}

// PutSnapshot upserts one monitor observation.
func (s *Store) PutSnapshot(ctx context.Context, snap model.PriceSnapshot) error {
	var whenDefault *int64
	if snap.WhenDefault != nil {
		whenDefault = whenDefaultParam(*snap.WhenDefault)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO collateral_price_snapshots (
			collateral, observed_at, status, when_default, reference_rate,
			total_basket_value, lp_token_price, token_prices, is_fallback, price
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (collateral, observed_at)
		DO UPDATE SET
			status = EXCLUDED.status,
			when_default = EXCLUDED.when_default,
			reference_rate = EXCLUDED.reference_rate,
			total_basket_value = EXCLUDED.total_basket_value,
			lp_token_price = EXCLUDED.lp_token_price,
			token_prices = EXCLUDED.token_prices,
			is_fallback = EXCLUDED.is_fallback,
			price = EXCLUDED.price
	`,
		snap.Collateral,
		snap.ObservedAt,
		snap.Status.String(),
		whenDefault,
		snap.ReferenceRate,
		snap.TotalBasketValue,
		snap.LPTokenPrice,
		snap.TokenPrices,
		snap.IsFallback,
		snap.Price,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LoadState returns the persisted ReferenceState for a collateral name.
func (s *Store) LoadState(ctx context.Context, name string) (model.ReferenceState, bool, error) {
	if name == "" {
		return model.ReferenceState{}, false, fmt.Errorf("state name required")
	}
	var (
		prev        string
		whenDefault *int64
	)
	row := s.pool.QueryRow(ctx, `
		SELECT prev_reference_price::text, when_default
		FROM collateral_state WHERE name=$1
	`, name)
	if err := row.Scan(&prev, &whenDefault); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReferenceState{}, false, nil
		}
		return model.ReferenceState{}, false, err
	}
	return decodeState(prev, whenDefault)
}

// SaveState upserts the ReferenceState for a collateral name.
func (s *Store) SaveState(ctx context.Context, name string, state model.ReferenceState) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	if state.PrevReferencePrice == nil {
		return fmt.Errorf("state %s has no reference price", name)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO collateral_state (name, prev_reference_price, when_default, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET prev_reference_price = EXCLUDED.prev_reference_price,
			when_default = EXCLUDED.when_default,
			updated_at = now()
	`, name, state.PrevReferencePrice.String(), whenDefaultParam(state.WhenDefault))
	return err
}

// whenDefaultParam maps model.Never to NULL.
func whenDefaultParam(ts uint64) *int64 {
	if ts == model.Never || ts > math.MaxInt64 {
		return nil
	}
	v := int64(ts)
	return &v
}

func decodeState(prev string, whenDefault *int64) (model.ReferenceState, bool, error) {
	price, ok := new(big.Int).SetString(prev, 10)
	if !ok {
		return model.ReferenceState{}, false, fmt.Errorf("invalid prev_reference_price %q", prev)
	}
	state := model.ReferenceState{PrevReferencePrice: price, WhenDefault: model.Never}
	if whenDefault != nil {
		if *whenDefault < 0 {
			return model.ReferenceState{}, false, fmt.Errorf("invalid when_default %d", *whenDefault)
		}
		state.WhenDefault = uint64(*whenDefault)
	}
	return state, true, nil
}
