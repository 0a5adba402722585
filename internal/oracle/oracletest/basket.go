package oracletest

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"collateralScope/internal/fixed"
	"collateralScope/internal/oracle"
)

// Start is the clock time every Basket begins at.
const Start = 1_700_000_000

// Basket bundles the fakes for one pool and its feed chains.
type Basket struct {
	Clock  *Clock
	Pool   *Pool
	ERC20  *ERC20
	Tokens []common.Address
	LP     common.Address
	Feeds  [][]*Feed
}

// NewStableBasket builds three 18-decimal tokens priced at 1.0 by a single
// feed each, 10,000 of each token in the pool, 29,000 LP tokens outstanding
// and a reference rate of 1.0.
func NewStableBasket() *Basket {
	b := &Basket{
		Clock:  NewClock(Start),
		ERC20:  NewERC20(),
		Tokens: []common.Address{Address(0x10), Address(0x11), Address(0x12)},
		LP:     Address(0x20),
	}
	balances := make([]*big.Int, 0, len(b.Tokens))
	for i, token := range b.Tokens {
		b.ERC20.SetDecimals(token, 18)
		balances = append(balances, fixed.FromInt(10_000))
		b.Feeds = append(b.Feeds, []*Feed{NewFeed(Address(int64(0x100+i)), fixed.One(), Start)})
	}
	b.ERC20.SetDecimals(b.LP, 18)
	b.ERC20.SetSupply(b.LP, fixed.FromInt(29_000))
	b.Pool = NewPool(Address(0x1), b.LP, b.Tokens, balances, fixed.One())
	return b
}

// Config returns an aggregator config over the basket's fakes.
func (b *Basket) Config(timeout time.Duration) oracle.Config {
	rows := make([][]oracle.Feed, len(b.Feeds))
	for i, row := range b.Feeds {
		for _, feed := range row {
			rows[i] = append(rows[i], feed)
		}
	}
	return oracle.Config{
		Pool:          b.Pool,
		ERC20:         b.ERC20,
		Feeds:         rows,
		OracleTimeout: timeout,
		Clock:         b.Clock,
	}
}

// SetPrice points every feed of token i at rate, updated now. The first
// feed carries the rate and the rest of the chain is reset to 1.0.
func (b *Basket) SetPrice(i int, rate *big.Int) {
	now := uint64(b.Clock.Now().Unix())
	for j, feed := range b.Feeds[i] {
		if j == 0 {
			feed.Set(rate, now)
			continue
		}
		feed.Set(fixed.One(), now)
	}
}

// Touch refreshes every feed timestamp to the current clock time.
func (b *Basket) Touch() {
	now := uint64(b.Clock.Now().Unix())
	for _, row := range b.Feeds {
		for _, feed := range row {
			feed.mu.Lock()
			feed.reading.UpdatedAt = now
			feed.mu.Unlock()
		}
	}
}
