package collateral

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collateralScope/internal/fixed"
	"collateralScope/internal/model"
	"collateralScope/internal/oracle"
)

// Refresh re-evaluates the default status. A drop in the reference rate
// disables the collateral permanently; with PegCheck enabled, a token off
// its peg starts the delay toward default and a recovered basket clears it.
//
// Unlike Price, Refresh can fail: it returns an error when the reference
// rate cannot be read or a peg read reverts without data, and leaves state
// untouched in both cases.
//
// Listeners run after the state lock is released, so they may call back
// into the collateral.
func (c *Collateral) Refresh(ctx context.Context) error {
	change, err := c.refresh(ctx)
	if err != nil {
		return err
	}
	if change != nil {
		c.emit(ctx, *change)
	}
	return nil
}

// refresh applies one evaluation under c.mu and returns the transition to
// report, if any.
func (c *Collateral) refresh(ctx context.Context) (*model.StatusChange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := oracle.Unix(c.clock)
	old := model.StatusAt(c.whenDefault, now)
	if old == model.StatusDisabled {
		return nil, nil
	}

	ref, err := c.agg.ReferenceRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("reference rate: %w", err)
	}

	if ref.Cmp(c.prevRef) < 0 {
		c.logger.Error("reference rate decreased",
			zap.String("collateral", c.cfg.Name),
			zap.String("previous", fixed.Format(c.prevRef)),
			zap.String("current", fixed.Format(ref)),
		)
		c.markStatus(model.StatusDisabled, now)
	} else if c.cfg.PegCheck {
		deviated, err := c.pegDeviated(ctx)
		if err != nil {
			return nil, err
		}
		if deviated {
			c.markStatus(model.StatusIffy, now)
		} else {
			c.markStatus(model.StatusSound, now)
		}
	}

	c.prevRef = ref

	next := model.StatusAt(c.whenDefault, now)
	if next == old {
		return nil, nil
	}
	return &model.StatusChange{
		ID:          uuid.NewString(),
		Collateral:  c.cfg.Name,
		Old:         old,
		New:         next,
		WhenDefault: c.whenDefault,
		ObservedAt:  now,
	}, nil
}

// markStatus moves whenDefault toward status. whenDefault only ever
// tightens, and once it is in the past it never moves again.
func (c *Collateral) markStatus(status model.Status, now uint64) {
	if c.whenDefault <= now {
		return
	}

	switch status {
	case model.StatusSound:
		c.whenDefault = model.Never
	case model.StatusIffy:
		candidate := now + uint64(c.cfg.DelayUntilDefault.Seconds())
		if candidate < c.whenDefault {
			c.whenDefault = candidate
		}
	case model.StatusDisabled:
		c.whenDefault = now
	}
}

// pegDeviated reports whether any token price sits outside
// peg +/- peg*DefaultThreshold. A failed price read counts as a deviation
// unless the call reverted without data.
func (c *Collateral) pegDeviated(ctx context.Context) (bool, error) {
	for i, peg := range c.pegs {
		price, err := c.agg.PriceOfToken(ctx, i)
		if err != nil {
			if errors.Is(err, oracle.ErrEmptyRevertData) {
				return false, fmt.Errorf("peg check token %d: %w", i, err)
			}
			c.logger.Warn("peg check price failed", zap.String("collateral", c.cfg.Name), zap.Int("token", i), zap.Error(err))
			return true, nil
		}

		delta := fixed.Mul(peg, c.cfg.DefaultThreshold)
		low := new(big.Int).Sub(peg, delta)
		high := new(big.Int).Add(peg, delta)
		if price.Cmp(low) < 0 || price.Cmp(high) > 0 {
			c.logger.Warn("token off peg",
				zap.String("collateral", c.cfg.Name),
				zap.Int("token", i),
				zap.String("price", fixed.Format(price)),
				zap.String("peg", fixed.Format(peg)),
			)
			return true, nil
		}
	}
	return false, nil
}

func (c *Collateral) emit(ctx context.Context, change model.StatusChange) {
	fields := []zap.Field{
		zap.String("collateral", change.Collateral),
		zap.Stringer("old", change.Old),
		zap.Stringer("new", change.New),
		zap.Uint64("when_default", change.WhenDefault),
	}
	switch change.New {
	case model.StatusDisabled:
		c.logger.Error("collateral status changed", fields...)
	case model.StatusIffy:
		c.logger.Warn("collateral status changed", fields...)
	default:
		c.logger.Info("collateral status changed", fields...)
	}

	for _, listener := range c.listeners {
		listener(ctx, change)
	}
}
