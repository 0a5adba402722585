package chain

import (
	"context"
	"sync"
	"time"
)

// TimestampSource returns the latest block timestamp.
type TimestampSource interface {
	LatestBlockTimestamp(ctx context.Context) (uint64, error)
}

// BlockClock reports chain time as of the last Sync. Before the first
// successful Sync it reports wall time.
type BlockClock struct {
	source TimestampSource

	mu     sync.RWMutex
	synced bool
	now    time.Time
}

func NewBlockClock(source TimestampSource) *BlockClock {
	return &BlockClock{source: source}
}

// Sync pulls the latest block timestamp.
func (c *BlockClock) Sync(ctx context.Context) error {
	ts, err := c.source.LatestBlockTimestamp(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.now = time.Unix(int64(ts), 0).UTC()
	c.synced = true
	c.mu.Unlock()
	return nil
}

func (c *BlockClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.synced {
		return time.Now()
	}
	return c.now
}
