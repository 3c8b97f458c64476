package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/drover/cloak"
)

// The identity pool is one JSON blob in a singleton row. Admin writes
// replace the whole pool, so per-entry rows would only add churn.

// LoadIdentityPool implements cloak.Store.
func (s *Store) LoadIdentityPool(ctx context.Context) (cloak.Pool, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT pool FROM identity_pool WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return cloak.Pool{}, false, nil
	}
	if err != nil {
		return cloak.Pool{}, false, fmt.Errorf("store: load identity pool: %w", err)
	}
	var pool cloak.Pool
	if err := json.Unmarshal([]byte(raw), &pool); err != nil {
		return cloak.Pool{}, false, fmt.Errorf("store: decode identity pool: %w", err)
	}
	return pool, true, nil
}

// SaveIdentityPool implements cloak.Store.
func (s *Store) SaveIdentityPool(ctx context.Context, pool cloak.Pool) error {
	raw, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("store: encode identity pool: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identity_pool (id, pool) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET pool = excluded.pool`, string(raw))
	if err != nil {
		return fmt.Errorf("store: save identity pool: %w", err)
	}
	return nil
}

// LoadDelayPolicy implements cloak.Store.
func (s *Store) LoadDelayPolicy(ctx context.Context) (cloak.DelayPolicy, bool, error) {
	var minMs, maxMs int64
	var randomize int
	err := s.db.QueryRowContext(ctx,
		`SELECT min_ms, max_ms, randomize FROM delay_policy WHERE id = 1`).
		Scan(&minMs, &maxMs, &randomize)
	if errors.Is(err, sql.ErrNoRows) {
		return cloak.DelayPolicy{}, false, nil
	}
	if err != nil {
		return cloak.DelayPolicy{}, false, fmt.Errorf("store: load delay policy: %w", err)
	}
	return cloak.DelayPolicy{
		Min:       time.Duration(minMs) * time.Millisecond,
		Max:       time.Duration(maxMs) * time.Millisecond,
		Randomize: randomize != 0,
	}, true, nil
}

// SaveDelayPolicy implements cloak.Store.
func (s *Store) SaveDelayPolicy(ctx context.Context, policy cloak.DelayPolicy) error {
	randomize := 0
	if policy.Randomize {
		randomize = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delay_policy (id, min_ms, max_ms, randomize) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			min_ms = excluded.min_ms,
			max_ms = excluded.max_ms,
			randomize = excluded.randomize`,
		policy.Min.Milliseconds(), policy.Max.Milliseconds(), randomize)
	if err != nil {
		return fmt.Errorf("store: save delay policy: %w", err)
	}
	return nil
}
