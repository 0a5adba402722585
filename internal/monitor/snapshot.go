package monitor

import (
	"context"
	"fmt"
	"time"

	"collateralScope/internal/collateral"
	"collateralScope/internal/fixed"
	"collateralScope/internal/model"
)

// BuildSnapshot observes every price a collateral exposes. Basket value, LP
// price and per-token prices are best effort: a failed read leaves the field
// empty. The reference rate and the fallback-enabled price are required.
func BuildSnapshot(ctx context.Context, c *collateral.Collateral, observedAt time.Time) (model.PriceSnapshot, error) {
	snap := model.PriceSnapshot{
		Collateral: c.Name(),
		ObservedAt: observedAt.UTC(),
		Status:     c.Status(),
	}
	if wd := c.WhenDefault(); wd != model.Never {
		snap.WhenDefault = &wd
	}

	ref, err := c.RefPerTok(ctx)
	if err != nil {
		return snap, fmt.Errorf("reference rate: %w", err)
	}
	snap.ReferenceRate = fixed.Format(ref)

	if value, err := c.TotalBasketValue(ctx); err == nil {
		s := fixed.Format(value)
		snap.TotalBasketValue = &s
	}
	if price, err := c.LPTokenPrice(ctx); err == nil {
		s := fixed.Format(price)
		snap.LPTokenPrice = &s
	}

	agg := c.Aggregator()
	snap.TokenPrices = make([]string, agg.TokenCount())
	for i := range snap.TokenPrices {
		if price, err := agg.PriceOfToken(ctx, i); err == nil {
			snap.TokenPrices[i] = fixed.Format(price)
		}
	}

	isFallback, price, err := c.Price(ctx, true)
	if err != nil {
		return snap, fmt.Errorf("price: %w", err)
	}
	snap.IsFallback = isFallback
	snap.Price = fixed.Format(price)
	return snap, nil
}
