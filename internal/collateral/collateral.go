package collateral

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"collateralScope/internal/fixed"
	"collateralScope/internal/model"
	"collateralScope/internal/oracle"
)

// Config holds the immutable collateral parameters.
type Config struct {
	// Name labels events and metrics. Defaults to the pool address.
	Name              string
	FallbackPrice     *big.Int
	MaxTradeVolume    *big.Int
	DefaultThreshold  *big.Int
	DelayUntilDefault time.Duration
	TargetName        string
	// PegCheck enables the soft-default path that compares every token
	// price against its peg on refresh.
	PegCheck bool
	// Pegs holds the expected price of each token in target units.
	// Nil means 1.0 for every token.
	Pegs []*big.Int
}

// Listener receives status transitions recorded by Refresh.
type Listener func(ctx context.Context, change model.StatusChange)

// Option customizes a Collateral.
type Option func(*Collateral)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Collateral) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(clock oracle.Clock) Option {
	return func(c *Collateral) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithState resumes from a previously persisted ReferenceState instead of
// seeding the watermark from a fresh reference-rate read.
func WithState(state model.ReferenceState) Option {
	return func(c *Collateral) {
		if state.PrevReferencePrice != nil {
			c.prevRef = new(big.Int).Set(state.PrevReferencePrice)
			c.whenDefault = state.WhenDefault
		}
	}
}

func WithListener(listener Listener) Option {
	return func(c *Collateral) {
		if listener != nil {
			c.listeners = append(c.listeners, listener)
		}
	}
}

// Collateral prices one LP token and tracks its default status.
type Collateral struct {
	agg    *oracle.Aggregator
	cfg    Config
	pegs   []*big.Int
	clock  oracle.Clock
	logger *zap.Logger

	mu          sync.Mutex
	prevRef     *big.Int
	whenDefault uint64
	listeners   []Listener
}

// New validates cfg and returns a SOUND collateral unless opts restore a
// persisted state.
func New(ctx context.Context, agg *oracle.Aggregator, cfg Config, opts ...Option) (*Collateral, error) {
	if agg == nil {
		return nil, fmt.Errorf("%w: aggregator is required", oracle.ErrInvalidConfig)
	}
	if err := validate(cfg, agg.TokenCount()); err != nil {
		return nil, err
	}

	pegs := make([]*big.Int, agg.TokenCount())
	for i := range pegs {
		if cfg.Pegs != nil {
			pegs[i] = new(big.Int).Set(cfg.Pegs[i])
		} else {
			pegs[i] = fixed.One()
		}
	}
	if cfg.Name == "" {
		cfg.Name = agg.PoolAddress().Hex()
	}

	c := &Collateral{
		agg:         agg,
		cfg:         cfg,
		pegs:        pegs,
		clock:       oracle.SystemClock{},
		logger:      zap.NewNop(),
		whenDefault: model.Never,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.prevRef == nil {
		ref, err := agg.ReferenceRate(ctx)
		if err != nil {
			return nil, fmt.Errorf("seed reference rate: %w", err)
		}
		c.prevRef = ref
	}
	return c, nil
}

func validate(cfg Config, tokens int) error {
	switch {
	case cfg.FallbackPrice == nil || cfg.FallbackPrice.Sign() <= 0:
		return fmt.Errorf("%w: fallback price zero", oracle.ErrInvalidConfig)
	case cfg.MaxTradeVolume == nil || cfg.MaxTradeVolume.Sign() <= 0:
		return fmt.Errorf("%w: invalid max trade volume", oracle.ErrInvalidConfig)
	case cfg.DefaultThreshold == nil || cfg.DefaultThreshold.Sign() <= 0:
		return fmt.Errorf("%w: defaultThreshold zero", oracle.ErrInvalidConfig)
	case cfg.DelayUntilDefault < time.Second:
		return fmt.Errorf("%w: delayUntilDefault zero", oracle.ErrInvalidConfig)
	case strings.TrimSpace(cfg.TargetName) == "":
		return fmt.Errorf("%w: targetName missing", oracle.ErrInvalidConfig)
	}
	if cfg.Pegs != nil {
		if len(cfg.Pegs) != tokens {
			return fmt.Errorf("%w: %d pegs for %d tokens", oracle.ErrInvalidConfig, len(cfg.Pegs), tokens)
		}
		for i, peg := range cfg.Pegs {
			if peg == nil || peg.Sign() <= 0 {
				return fmt.Errorf("%w: peg %d must be positive", oracle.ErrInvalidConfig, i)
			}
		}
	}
	return nil
}

// Name returns the collateral label.
func (c *Collateral) Name() string {
	return c.cfg.Name
}

// TargetName returns the target unit identifier.
func (c *Collateral) TargetName() string {
	return c.cfg.TargetName
}

// MaxTradeVolume returns the configured max trade volume in unit of account.
func (c *Collateral) MaxTradeVolume() *big.Int {
	return new(big.Int).Set(c.cfg.MaxTradeVolume)
}

// FallbackPrice returns the static price used when live pricing fails.
func (c *Collateral) FallbackPrice() *big.Int {
	return new(big.Int).Set(c.cfg.FallbackPrice)
}

// Aggregator returns the underlying feed aggregator.
func (c *Collateral) Aggregator() *oracle.Aggregator {
	return c.agg
}

// Status derives the current status from whenDefault.
func (c *Collateral) Status() model.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.StatusAt(c.whenDefault, oracle.Unix(c.clock))
}

// WhenDefault returns the default timestamp, or model.Never.
func (c *Collateral) WhenDefault() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.whenDefault
}

// Snapshot returns a copy of the reference state for persistence.
func (c *Collateral) Snapshot() model.ReferenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.ReferenceState{
		PrevReferencePrice: new(big.Int).Set(c.prevRef),
		WhenDefault:        c.whenDefault,
	}
}

// StrictPrice returns the live LP token price or the aggregation error.
func (c *Collateral) StrictPrice(ctx context.Context) (*big.Int, error) {
	return c.agg.LPTokenPrice(ctx)
}

// Price returns the live LP token price. When live pricing fails and
// allowFallback is set, it returns the fallback price with isFallback true.
func (c *Collateral) Price(ctx context.Context, allowFallback bool) (bool, *big.Int, error) {
	price, err := c.StrictPrice(ctx)
	if err == nil {
		return false, price, nil
	}
	if !allowFallback {
		return false, nil, err
	}
	c.logger.Warn("using fallback price", zap.String("collateral", c.cfg.Name), zap.Error(err))
	return true, c.FallbackPrice(), nil
}

// RefPerTok returns the pool's current reference rate.
func (c *Collateral) RefPerTok(ctx context.Context) (*big.Int, error) {
	return c.agg.ReferenceRate(ctx)
}

// TargetPerRef is 1.0: the reference unit is pegged to the target unit.
func (c *Collateral) TargetPerRef() *big.Int {
	return fixed.One()
}

// LPTokenPrice returns the basket value per LP token.
func (c *Collateral) LPTokenPrice(ctx context.Context) (*big.Int, error) {
	return c.agg.LPTokenPrice(ctx)
}

// TotalBasketValue returns the pool's reserves valued in unit of account.
func (c *Collateral) TotalBasketValue(ctx context.Context) (*big.Int, error) {
	return c.agg.TotalBasketValue(ctx)
}
