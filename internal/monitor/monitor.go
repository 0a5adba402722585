package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collateralScope/internal/collateral"
	"collateralScope/internal/model"
	"collateralScope/internal/oracle"
)

// Config holds runtime settings for the monitor loop.
type Config struct {
	Interval time.Duration
	Retry    RetryPolicy
}

// Syncer refreshes an external time source before each tick.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Option customizes a Monitor.
type Option func(*Monitor)

func WithClock(clock oracle.Clock) Option {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithSyncer(syncer Syncer) Option {
	return func(m *Monitor) {
		m.syncer = syncer
	}
}

// Monitor refreshes a collateral on an interval, persists its state and
// records a price snapshot per tick.
type Monitor struct {
	cfg      Config
	coll     *collateral.Collateral
	state    StateStore
	recorder *Recorder
	clock    oracle.Clock
	syncer   Syncer
	logger   *zap.Logger

	lastStatus model.Status
}

// New builds a Monitor. The recorder should also be registered as the
// collateral's listener; transitions it did not see are recorded by Tick.
func New(cfg Config, coll *collateral.Collateral, state StateStore, recorder *Recorder, logger *zap.Logger, opts ...Option) (*Monitor, error) {
	if coll == nil {
		return nil, fmt.Errorf("collateral is nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be greater than zero")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = NewRecorder(nil, nil, logger)
	}
	m := &Monitor{
		cfg:      cfg,
		coll:     coll,
		state:    state,
		recorder: recorder,
		clock:    oracle.SystemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastStatus = coll.Status()
	return m, nil
}

// Run ticks immediately and then every Interval until ctx is done. Tick
// failures are logged and the loop carries on.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error("tick failed", zap.String("collateral", m.coll.Name()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one refresh, saves the resulting state and records a snapshot.
func (m *Monitor) Tick(ctx context.Context) (model.PriceSnapshot, error) {
	name := m.coll.Name()

	if m.syncer != nil {
		err := withRetry(ctx, m.cfg.Retry, func(ctx context.Context) error {
			return m.syncer.Sync(ctx)
		})
		if err != nil {
			m.logger.Warn("clock sync failed, keeping previous time", zap.Error(err))
		}
	}

	m.reconcile(ctx, name)

	start := time.Now()
	err := withRetry(ctx, m.cfg.Retry, func(ctx context.Context) error {
		err := m.coll.Refresh(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("refresh failed", zap.String("collateral", name), zap.Error(err))
		}
		return err
	})
	m.recorder.RecordRefresh(name, time.Since(start), err)
	if err != nil {
		return model.PriceSnapshot{}, fmt.Errorf("refresh: %w", err)
	}
	m.reconcile(ctx, name)

	if m.state != nil {
		if err := m.state.Save(ctx, m.coll.Snapshot()); err != nil {
			return model.PriceSnapshot{}, fmt.Errorf("save state: %w", err)
		}
	}

	snap, err := BuildSnapshot(ctx, m.coll, m.clock.Now())
	if err != nil {
		return snap, fmt.Errorf("snapshot: %w", err)
	}
	m.recorder.RecordSnapshot(ctx, snap)

	m.logger.Info("tick complete",
		zap.String("collateral", name),
		zap.Stringer("status", snap.Status),
		zap.String("price", snap.Price),
		zap.Bool("fallback", snap.IsFallback),
		zap.String("reference_rate", snap.ReferenceRate),
	)
	return snap, nil
}

// reconcile records a status transition that no listener reported, such as
// an IFFY delay running out between or during refreshes.
func (m *Monitor) reconcile(ctx context.Context, name string) {
	if last, ok := m.recorder.lastReported(name); ok {
		m.lastStatus = last
	}
	current := m.coll.Status()
	if current == m.lastStatus {
		return
	}
	m.recorder.RecordStatusChange(ctx, model.StatusChange{
		ID:          uuid.NewString(),
		Collateral:  name,
		Old:         m.lastStatus,
		New:         current,
		WhenDefault: m.coll.WhenDefault(),
		ObservedAt:  oracle.Unix(m.clock),
	})
	m.lastStatus = current
}
