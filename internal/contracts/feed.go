package contracts

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"collateralScope/internal/fixed"
	"collateralScope/internal/oracle"
)

// ChainlinkFeed reads an AggregatorV3 price feed and rescales its answer to
// fixed18.
type ChainlinkFeed struct {
	address common.Address
	caller  Caller

	mu          sync.RWMutex
	decimals    uint8
	decimalsSet bool
}

func NewChainlinkFeed(address common.Address, caller Caller) *ChainlinkFeed {
	return &ChainlinkFeed{address: address, caller: caller}
}

func (f *ChainlinkFeed) Address() common.Address {
	return f.address
}

// LatestAnswer returns latestRoundData's answer. Incomplete rounds are
// reported as stale.
func (f *ChainlinkFeed) LatestAnswer(ctx context.Context) (oracle.Reading, error) {
	parsed, err := AggregatorV3ABI()
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("parse aggregator abi: %w", err)
	}
	decimals, err := f.feedDecimals(ctx)
	if err != nil {
		return oracle.Reading{}, err
	}

	values, err := callMethod(ctx, f.caller, f.address, parsed, "latestRoundData")
	if err != nil {
		return oracle.Reading{}, err
	}
	if len(values) != 5 {
		return oracle.Reading{}, fmt.Errorf("latestRoundData return size %d", len(values))
	}
	roundID, err := asBigInt(values[0])
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("roundId: %w", err)
	}
	answer, err := asBigInt(values[1])
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("answer: %w", err)
	}
	updatedAt, err := asBigInt(values[3])
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("updatedAt: %w", err)
	}
	answeredInRound, err := asBigInt(values[4])
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("answeredInRound: %w", err)
	}

	if updatedAt.Sign() == 0 || answeredInRound.Cmp(roundID) < 0 {
		return oracle.Reading{}, fmt.Errorf("%w: incomplete round %s", oracle.ErrStalePrice, roundID.String())
	}
	if !updatedAt.IsUint64() {
		return oracle.Reading{}, fmt.Errorf("updatedAt overflow: %s", updatedAt.String())
	}

	return oracle.Reading{
		Rate:      fixed.Shift(answer, decimals),
		UpdatedAt: updatedAt.Uint64(),
	}, nil
}

func (f *ChainlinkFeed) feedDecimals(ctx context.Context) (uint8, error) {
	f.mu.RLock()
	decimals, ok := f.decimals, f.decimalsSet
	f.mu.RUnlock()
	if ok {
		return decimals, nil
	}

	parsed, err := AggregatorV3ABI()
	if err != nil {
		return 0, fmt.Errorf("parse aggregator abi: %w", err)
	}
	values, err := callMethod(ctx, f.caller, f.address, parsed, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, err = asUint8(values[0])
	if err != nil {
		return 0, fmt.Errorf("feed decimals: %w", err)
	}

	f.mu.Lock()
	f.decimals = decimals
	f.decimalsSet = true
	f.mu.Unlock()
	return decimals, nil
}
