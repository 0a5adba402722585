package oracle

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Reading is one oracle answer rescaled to fixed18.
type Reading struct {
	Rate      *big.Int
	UpdatedAt uint64
}

// Feed is a single exchange-rate source in a token's price chain.
type Feed interface {
	Address() common.Address
	LatestAnswer(ctx context.Context) (Reading, error)
}

// Pool is the liquidity pool backing the LP token.
type Pool interface {
	Address() common.Address
	Tokens(ctx context.Context) ([]common.Address, error)
	Balances(ctx context.Context) ([]*big.Int, error)
	ReferenceRate(ctx context.Context) (*big.Int, error)
	LPToken(ctx context.Context) (common.Address, error)
}

// ERC20 exposes the token reads the aggregator needs.
type ERC20 interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	TotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
}

// Clock reports the current time used for staleness and default delays.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Unix returns the clock's current time as unix seconds.
func Unix(c Clock) uint64 {
	ts := c.Now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}
