package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"collateralScope/internal/metrics"
	"collateralScope/internal/model"
	"collateralScope/internal/storage"
)

// Recorder forwards observations to the sink and metrics. Either may be nil.
// Sink failures are logged and not returned.
type Recorder struct {
	sink    storage.Sink
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	reported map[string]model.Status
}

func NewRecorder(sink storage.Sink, m *metrics.Metrics, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, metrics: m, logger: logger, reported: make(map[string]model.Status)}
}

// RecordStatusChange matches collateral.Listener.
func (r *Recorder) RecordStatusChange(ctx context.Context, change model.StatusChange) {
	r.mu.Lock()
	r.reported[change.Collateral] = change.New
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ObserveStatusChange(change)
	}
	if r.sink == nil {
		return
	}
	if err := r.sink.PutStatusChange(ctx, change); err != nil {
		r.logger.Error("store status change failed", zap.String("id", change.ID), zap.Error(err))
	}
}

func (r *Recorder) RecordSnapshot(ctx context.Context, snapshot model.PriceSnapshot) {
	if r.metrics != nil {
		r.metrics.ObserveSnapshot(snapshot)
	}
	if r.sink == nil {
		return
	}
	if err := r.sink.PutSnapshot(ctx, snapshot); err != nil {
		r.logger.Error("store snapshot failed", zap.String("collateral", snapshot.Collateral), zap.Error(err))
	}
}

func (r *Recorder) RecordRefresh(collateral string, took time.Duration, err error) {
	if r.metrics != nil {
		r.metrics.ObserveRefresh(collateral, took, err)
	}
}

// lastReported returns the New status of the latest change recorded for
// collateral.
func (r *Recorder) lastReported(collateral string) (model.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.reported[collateral]
	return status, ok
}
