package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"collateralScope/internal/fixed"
)

const (
	MaxTokens        = 4
	MaxFeedsPerToken = 3
)

// Config wires the aggregator to its pool, token reader and feed chains.
type Config struct {
	Pool  Pool
	ERC20 ERC20
	// LPToken overrides the pool-reported LP token when non-zero.
	LPToken common.Address
	// Feeds holds one chain of 1-3 feeds per pool token, in pool order.
	Feeds         [][]Feed
	OracleTimeout time.Duration
	Clock         Clock
	Logger        *zap.Logger
}

// BasketToken is one underlying pool token and its feed chain.
type BasketToken struct {
	Address  common.Address
	Decimals uint8
	Feeds    []Feed
}

// Aggregator prices the pool basket and the LP token from chained feeds.
// Its wiring is fixed at construction; prices are read live on every call.
type Aggregator struct {
	pool       Pool
	erc20      ERC20
	lpToken    common.Address
	lpDecimals uint8
	tokens     []BasketToken
	timeout    uint64
	clock      Clock
	logger     *zap.Logger
}

// NewAggregator validates cfg against the pool and returns an immutable aggregator.
func NewAggregator(ctx context.Context, cfg Config) (*Aggregator, error) {
	if cfg.Pool == nil || cfg.Pool.Address() == (common.Address{}) {
		return nil, invalidConfig("pool address is required")
	}
	if cfg.ERC20 == nil {
		return nil, invalidConfig("erc20 reader is required")
	}
	if cfg.OracleTimeout < time.Second {
		return nil, invalidConfig("oracle timeout must be at least 1s")
	}
	if len(cfg.Feeds) == 0 || len(cfg.Feeds) > MaxTokens {
		return nil, invalidConfig("feed rows %d outside [1, %d]", len(cfg.Feeds), MaxTokens)
	}
	for i, row := range cfg.Feeds {
		if len(row) == 0 {
			return nil, invalidConfig("token %d has no feeds", i)
		}
		if len(row) > MaxFeedsPerToken {
			return nil, invalidConfig("token %d has %d feeds, max %d", i, len(row), MaxFeedsPerToken)
		}
		for j, feed := range row {
			if feed == nil || feed.Address() == (common.Address{}) {
				return nil, invalidConfig("token %d feed %d address is required", i, j)
			}
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	poolTokens, err := cfg.Pool.Tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool tokens: %w", err)
	}
	if len(poolTokens) != len(cfg.Feeds) {
		return nil, invalidConfig("pool has %d tokens, got %d feed rows", len(poolTokens), len(cfg.Feeds))
	}

	tokens := make([]BasketToken, 0, len(poolTokens))
	for i, token := range poolTokens {
		if token == (common.Address{}) {
			return nil, invalidConfig("pool token %d is the zero address", i)
		}
		decimals, err := cfg.ERC20.Decimals(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("token %d decimals: %w", i, err)
		}
		feeds := make([]Feed, len(cfg.Feeds[i]))
		copy(feeds, cfg.Feeds[i])
		tokens = append(tokens, BasketToken{Address: token, Decimals: decimals, Feeds: feeds})
	}

	lpToken := cfg.LPToken
	if lpToken == (common.Address{}) {
		lpToken, err = cfg.Pool.LPToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("pool lp token: %w", err)
		}
		if lpToken == (common.Address{}) {
			return nil, invalidConfig("lp token address is required")
		}
	}
	lpDecimals, err := cfg.ERC20.Decimals(ctx, lpToken)
	if err != nil {
		return nil, fmt.Errorf("lp token decimals: %w", err)
	}

	return &Aggregator{
		pool:       cfg.Pool,
		erc20:      cfg.ERC20,
		lpToken:    lpToken,
		lpDecimals: lpDecimals,
		tokens:     tokens,
		timeout:    uint64(cfg.OracleTimeout / time.Second),
		clock:      clock,
		logger:     logger,
	}, nil
}

// PoolAddress returns the wired pool address.
func (a *Aggregator) PoolAddress() common.Address {
	return a.pool.Address()
}

// LPToken returns the LP token address.
func (a *Aggregator) LPToken() common.Address {
	return a.lpToken
}

// TokenCount returns the number of basket tokens.
func (a *Aggregator) TokenCount() int {
	return len(a.tokens)
}

// Token returns the basket token at index.
func (a *Aggregator) Token(index int) (BasketToken, error) {
	if index < 0 || index >= len(a.tokens) {
		return BasketToken{}, &IndexError{Kind: "token", Index: index, Bound: len(a.tokens)}
	}
	return a.tokens[index], nil
}

// Feed returns feed feedIndex of token tokenIndex.
func (a *Aggregator) Feed(tokenIndex, feedIndex int) (Feed, error) {
	token, err := a.Token(tokenIndex)
	if err != nil {
		return nil, err
	}
	if feedIndex < 0 || feedIndex >= len(token.Feeds) {
		return nil, &IndexError{Kind: "feed", Index: feedIndex, Bound: len(token.Feeds)}
	}
	return token.Feeds[feedIndex], nil
}

// PriceOfToken multiplies token index's feed readings in declared order.
func (a *Aggregator) PriceOfToken(ctx context.Context, index int) (*big.Int, error) {
	token, err := a.Token(index)
	if err != nil {
		return nil, err
	}

	now := Unix(a.clock)
	price := fixed.One()
	for j, feed := range token.Feeds {
		rate, err := a.readFeed(ctx, feed, now)
		if err != nil {
			return nil, fmt.Errorf("token %d feed %d (%s): %w", index, j, feed.Address().Hex(), err)
		}
		price = fixed.Mul(price, rate)
	}
	return price, nil
}

func (a *Aggregator) readFeed(ctx context.Context, feed Feed, now uint64) (*big.Int, error) {
	reading, err := feed.LatestAnswer(ctx)
	if err != nil {
		return nil, err
	}
	if reading.Rate == nil || reading.Rate.Sign() <= 0 {
		return nil, ErrPriceOutsideRange
	}
	if now > reading.UpdatedAt && now-reading.UpdatedAt > a.timeout {
		a.logger.Debug("stale feed",
			zap.String("feed", feed.Address().Hex()),
			zap.Uint64("updated_at", reading.UpdatedAt),
			zap.Uint64("now", now),
		)
		return nil, fmt.Errorf("%w: updated %ds ago, timeout %ds", ErrStalePrice, now-reading.UpdatedAt, a.timeout)
	}
	return reading.Rate, nil
}

// TokenPrices returns the composite price of every basket token.
func (a *Aggregator) TokenPrices(ctx context.Context) ([]*big.Int, error) {
	prices := make([]*big.Int, len(a.tokens))
	for i := range a.tokens {
		price, err := a.PriceOfToken(ctx, i)
		if err != nil {
			return nil, err
		}
		prices[i] = price
	}
	return prices, nil
}

// TotalBasketValue values the pool's live reserves in unit-of-account terms.
func (a *Aggregator) TotalBasketValue(ctx context.Context) (*big.Int, error) {
	balances, err := a.pool.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool balances: %w", err)
	}
	if len(balances) != len(a.tokens) {
		return nil, fmt.Errorf("pool returned %d balances for %d tokens", len(balances), len(a.tokens))
	}

	total := new(big.Int)
	for i, token := range a.tokens {
		price, err := a.PriceOfToken(ctx, i)
		if err != nil {
			return nil, err
		}
		total.Add(total, fixed.Mul(fixed.Shift(balances[i], token.Decimals), price))
	}
	return total, nil
}

// LPTokenPrice returns TotalBasketValue divided by the LP token supply.
func (a *Aggregator) LPTokenPrice(ctx context.Context) (*big.Int, error) {
	total, err := a.TotalBasketValue(ctx)
	if err != nil {
		return nil, err
	}
	supply, err := a.erc20.TotalSupply(ctx, a.lpToken)
	if err != nil {
		return nil, fmt.Errorf("lp total supply: %w", err)
	}
	price, err := fixed.Div(total, fixed.Shift(supply, a.lpDecimals))
	if err != nil {
		return nil, fmt.Errorf("lp token price: %w", err)
	}
	return price, nil
}

// ReferenceRate reads the pool's reference rate.
func (a *Aggregator) ReferenceRate(ctx context.Context) (*big.Int, error) {
	return a.pool.ReferenceRate(ctx)
}
