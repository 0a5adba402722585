package collateral_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collateralScope/internal/collateral"
	"collateralScope/internal/fixed"
	"collateralScope/internal/model"
	"collateralScope/internal/oracle"
	"collateralScope/internal/oracle/oracletest"
)

const delay = time.Hour

type harness struct {
	basket  *oracletest.Basket
	coll    *collateral.Collateral
	changes []model.StatusChange
}

func mustParse(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := fixed.Parse(s)
	require.NoError(t, err)
	return v
}

func baseConfig(t *testing.T) collateral.Config {
	return collateral.Config{
		Name:              "3pool",
		FallbackPrice:     mustParse(t, "1.02"),
		MaxTradeVolume:    fixed.FromInt(1_000_000),
		DefaultThreshold:  mustParse(t, "0.05"),
		DelayUntilDefault: delay,
		TargetName:        "USD",
	}
}

func newHarness(t *testing.T, cfg collateral.Config, opts ...collateral.Option) *harness {
	t.Helper()
	h := &harness{basket: oracletest.NewStableBasket()}
	agg, err := oracle.NewAggregator(context.Background(), h.basket.Config(24*time.Hour))
	require.NoError(t, err)

	opts = append([]collateral.Option{
		collateral.WithClock(h.basket.Clock),
		collateral.WithLogger(zap.NewNop()),
		collateral.WithListener(func(_ context.Context, change model.StatusChange) {
			h.changes = append(h.changes, change)
		}),
	}, opts...)
	h.coll, err = collateral.New(context.Background(), agg, cfg, opts...)
	require.NoError(t, err)
	return h
}

func (h *harness) refresh(t *testing.T) {
	t.Helper()
	require.NoError(t, h.coll.Refresh(context.Background()))
}

func (h *harness) now() uint64 {
	return uint64(h.basket.Clock.Now().Unix())
}

func TestInitialStateIsSound(t *testing.T) {
	h := newHarness(t, baseConfig(t))
	require.Equal(t, model.StatusSound, h.coll.Status())
	require.Equal(t, model.Never, h.coll.WhenDefault())
	require.Equal(t, "USD", h.coll.TargetName())
	require.Equal(t, fixed.One().String(), h.coll.TargetPerRef().String())
	require.Equal(t, fixed.FromInt(1_000_000).String(), h.coll.MaxTradeVolume().String())
}

func TestRisingReferenceRateStaysSound(t *testing.T) {
	cfg := baseConfig(t)
	cfg.PegCheck = true
	h := newHarness(t, cfg)

	rate := fixed.One()
	for i := 0; i < 5; i++ {
		h.basket.Clock.Advance(10 * time.Minute)
		h.basket.Touch()
		if i%2 == 0 {
			rate = new(big.Int).Add(rate, big.NewInt(1_000_000_000))
		}
		h.basket.Pool.SetReferenceRate(rate)
		h.refresh(t)
		require.Equal(t, model.StatusSound, h.coll.Status())
		require.Equal(t, model.Never, h.coll.WhenDefault())
	}
	require.Empty(t, h.changes)

	ref, err := h.coll.RefPerTok(context.Background())
	require.NoError(t, err)
	require.Equal(t, rate.String(), ref.String())
	require.Equal(t, rate.String(), h.coll.Snapshot().PrevReferencePrice.String())
}

func TestReferenceRateDropDisablesPermanently(t *testing.T) {
	h := newHarness(t, baseConfig(t))
	h.basket.Pool.SetReferenceRate(mustParse(t, "1.01"))
	h.refresh(t)

	h.basket.Clock.Advance(time.Minute)
	h.basket.Pool.SetReferenceRate(mustParse(t, "1.0099"))
	h.refresh(t)

	require.Equal(t, model.StatusDisabled, h.coll.Status())
	require.Equal(t, h.now(), h.coll.WhenDefault())
	require.Len(t, h.changes, 1)
	require.Equal(t, model.StatusSound, h.changes[0].Old)
	require.Equal(t, model.StatusDisabled, h.changes[0].New)
	require.NotEmpty(t, h.changes[0].ID)
	require.Equal(t, "3pool", h.changes[0].Collateral)

	disabledAt := h.coll.WhenDefault()
	h.basket.Clock.Advance(time.Hour)
	h.basket.Pool.SetReferenceRate(mustParse(t, "2"))
	h.refresh(t)
	h.refresh(t)

	require.Equal(t, model.StatusDisabled, h.coll.Status())
	require.Equal(t, disabledAt, h.coll.WhenDefault())
	require.Len(t, h.changes, 1)
}

func TestPegDeviationRecovers(t *testing.T) {
	cfg := baseConfig(t)
	cfg.PegCheck = true
	h := newHarness(t, cfg)

	h.basket.SetPrice(1, mustParse(t, "0.94"))
	h.refresh(t)
	require.Equal(t, model.StatusIffy, h.coll.Status())
	require.Equal(t, h.now()+uint64(delay.Seconds()), h.coll.WhenDefault())

	h.basket.Clock.Advance(30 * time.Minute)
	h.basket.SetPrice(1, mustParse(t, "0.95"))
	h.refresh(t)
	require.Equal(t, model.StatusSound, h.coll.Status())
	require.Equal(t, model.Never, h.coll.WhenDefault())

	require.Len(t, h.changes, 2)
	require.Equal(t, model.StatusIffy, h.changes[0].New)
	require.Equal(t, model.StatusIffy, h.changes[1].Old)
	require.Equal(t, model.StatusSound, h.changes[1].New)
}

func TestPegDeviationBecomesDisabledAfterDelay(t *testing.T) {
	cfg := baseConfig(t)
	cfg.PegCheck = true
	h := newHarness(t, cfg)

	h.basket.SetPrice(0, mustParse(t, "1.06"))
	h.refresh(t)
	whenDefault := h.coll.WhenDefault()

	h.basket.Clock.Advance(delay - time.Second)
	require.Equal(t, model.StatusIffy, h.coll.Status())

	h.basket.Clock.Advance(time.Second)
	require.Equal(t, model.StatusDisabled, h.coll.Status())

	h.basket.SetPrice(0, fixed.One())
	h.refresh(t)
	require.Equal(t, model.StatusDisabled, h.coll.Status())
	require.Equal(t, whenDefault, h.coll.WhenDefault())
}

func TestIffyKeepsEarliestDefault(t *testing.T) {
	cfg := baseConfig(t)
	cfg.PegCheck = true
	h := newHarness(t, cfg)

	h.basket.SetPrice(2, mustParse(t, "0.5"))
	h.refresh(t)
	first := h.coll.WhenDefault()

	h.basket.Clock.Advance(10 * time.Minute)
	h.basket.Touch()
	h.refresh(t)
	require.Equal(t, first, h.coll.WhenDefault())
	require.Len(t, h.changes, 1)
}

func TestIffyTightensRestoredLaterDefault(t *testing.T) {
	cfg := baseConfig(t)
	cfg.PegCheck = true
	later := uint64(oracletest.Start) + uint64((3 * delay).Seconds())
	h := newHarness(t, cfg, collateral.WithState(model.ReferenceState{
		PrevReferencePrice: fixed.One(),
		WhenDefault:        later,
	}))
	require.Equal(t, model.StatusIffy, h.coll.Status())

	h.basket.SetPrice(0, mustParse(t, "0.8"))
	h.refresh(t)
	require.Equal(t, h.now()+uint64(delay.Seconds()), h.coll.WhenDefault())
	require.Empty(t, h.changes)
}

func TestPegCheckDisabledIgnoresDeviation(t *testing.T) {
	h := newHarness(t, baseConfig(t))
	h.basket.SetPrice(0, mustParse(t, "0.5"))
	h.refresh(t)
	require.Equal(t, model.StatusSound, h.coll.Status())
	require.Empty(t, h.changes)
}

func TestPegCheckFailures(t *testing.T) {
	cfg := baseConfig(t)
	cfg.PegCheck = true

	h := newHarness(t, cfg)
	h.basket.Feeds[1][0].Fail(errors.New("execution reverted: paused"))
	h.refresh(t)
	require.Equal(t, model.StatusIffy, h.coll.Status())

	h = newHarness(t, cfg)
	h.basket.Feeds[1][0].Fail(fmt.Errorf("call latestRoundData: %w", oracle.ErrEmptyRevertData))
	h.basket.Pool.SetReferenceRate(mustParse(t, "1.5"))
	err := h.coll.Refresh(context.Background())
	require.ErrorIs(t, err, oracle.ErrEmptyRevertData)
	require.Equal(t, model.StatusSound, h.coll.Status())
	require.Equal(t, fixed.One().String(), h.coll.Snapshot().PrevReferencePrice.String())
}

func TestRefreshReferenceReadFailureKeepsState(t *testing.T) {
	h := newHarness(t, baseConfig(t))
	h.basket.Pool.FailReferenceRate(errors.New("dial tcp: refused"))
	require.Error(t, h.coll.Refresh(context.Background()))
	require.Equal(t, model.StatusSound, h.coll.Status())
	require.Empty(t, h.changes)
}

func TestPriceFallback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, baseConfig(t))

	isFallback, price, err := h.coll.Price(ctx, false)
	require.NoError(t, err)
	require.False(t, isFallback)
	require.Equal(t, "1034482758620689655", price.String())

	h.basket.Feeds[0][0].Set(big.NewInt(0), oracletest.Start)
	_, _, err = h.coll.Price(ctx, false)
	require.ErrorIs(t, err, oracle.ErrPriceOutsideRange)
	_, err = h.coll.StrictPrice(ctx)
	require.ErrorIs(t, err, oracle.ErrPriceOutsideRange)

	isFallback, price, err = h.coll.Price(ctx, true)
	require.NoError(t, err)
	require.True(t, isFallback)
	require.Equal(t, mustParse(t, "1.02").String(), price.String())

	h.basket.Feeds[0][0].Set(fixed.One(), oracletest.Start)
	h.basket.Clock.Advance(25 * time.Hour)
	_, _, err = h.coll.Price(ctx, false)
	require.ErrorIs(t, err, oracle.ErrStalePrice)
	isFallback, _, err = h.coll.Price(ctx, true)
	require.NoError(t, err)
	require.True(t, isFallback)

	h.basket.Feeds[0][0].Fail(fmt.Errorf("call latestRoundData: %w", oracle.ErrEmptyRevertData))
	_, _, err = h.coll.Price(ctx, false)
	require.ErrorIs(t, err, oracle.ErrEmptyRevertData)
	isFallback, price, err = h.coll.Price(ctx, true)
	require.NoError(t, err)
	require.True(t, isFallback)
	require.Equal(t, mustParse(t, "1.02").String(), price.String())
}

func TestListenerMayReadCollateral(t *testing.T) {
	var coll *collateral.Collateral
	seen := make(chan model.ReferenceState, 1)
	status := make(chan model.Status, 1)
	h := newHarness(t, baseConfig(t), collateral.WithListener(func(context.Context, model.StatusChange) {
		status <- coll.Status()
		seen <- coll.Snapshot()
	}))
	coll = h.coll
	h.basket.Pool.SetReferenceRate(mustParse(t, "0.9"))

	done := make(chan error, 1)
	go func() {
		done <- coll.Refresh(context.Background())
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not return")
	}
	require.Equal(t, model.StatusDisabled, <-status)
	state := <-seen
	require.Equal(t, mustParse(t, "0.9").String(), state.PrevReferencePrice.String())
	require.Equal(t, h.now(), state.WhenDefault)
}

func TestRestoreDisabledState(t *testing.T) {
	h := newHarness(t, baseConfig(t), collateral.WithState(model.ReferenceState{
		PrevReferencePrice: fixed.One(),
		WhenDefault:        oracletest.Start - 10,
	}))
	require.Equal(t, model.StatusDisabled, h.coll.Status())
	h.refresh(t)
	require.Equal(t, uint64(oracletest.Start-10), h.coll.WhenDefault())
}

func TestNewValidation(t *testing.T) {
	basket := oracletest.NewStableBasket()
	agg, err := oracle.NewAggregator(context.Background(), basket.Config(time.Hour))
	require.NoError(t, err)

	cases := map[string]func(cfg *collateral.Config){
		"zero fallback":         func(cfg *collateral.Config) { cfg.FallbackPrice = big.NewInt(0) },
		"zero max trade volume": func(cfg *collateral.Config) { cfg.MaxTradeVolume = new(big.Int) },
		"zero threshold":        func(cfg *collateral.Config) { cfg.DefaultThreshold = nil },
		"zero delay":            func(cfg *collateral.Config) { cfg.DelayUntilDefault = 0 },
		"empty target":          func(cfg *collateral.Config) { cfg.TargetName = " " },
		"peg count":             func(cfg *collateral.Config) { cfg.Pegs = []*big.Int{fixed.One()} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig(t)
			mutate(&cfg)
			coll, err := collateral.New(context.Background(), agg, cfg)
			require.ErrorIs(t, err, oracle.ErrInvalidConfig)
			require.Nil(t, coll)
		})
	}

	_, err = collateral.New(context.Background(), nil, baseConfig(t))
	require.ErrorIs(t, err, oracle.ErrInvalidConfig)

	coll, err := collateral.New(context.Background(), agg, collateral.Config{
		FallbackPrice:     fixed.One(),
		MaxTradeVolume:    fixed.One(),
		DefaultThreshold:  mustParse(t, "0.01"),
		DelayUntilDefault: time.Minute,
		TargetName:        "USD",
	})
	require.NoError(t, err)
	require.Equal(t, agg.PoolAddress().Hex(), coll.Name())
}
