package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// maxCoins bounds the coins(i) probe used to discover pool tokens.
const maxCoins = 8

// StableSwapPool reads a stable-swap pool through eth_call.
type StableSwapPool struct {
	address common.Address
	caller  Caller
	erc20   *ERC20Reader
	logger  *zap.Logger

	mu     sync.RWMutex
	tokens []common.Address
}

func NewStableSwapPool(address common.Address, caller Caller, erc20 *ERC20Reader, logger *zap.Logger) *StableSwapPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StableSwapPool{address: address, caller: caller, erc20: erc20, logger: logger}
}

func (p *StableSwapPool) Address() common.Address {
	return p.address
}

// Tokens probes coins(i) until the pool reverts. The list is cached.
func (p *StableSwapPool) Tokens(ctx context.Context) ([]common.Address, error) {
	p.mu.RLock()
	cached := p.tokens
	p.mu.RUnlock()
	if cached != nil {
		return append([]common.Address(nil), cached...), nil
	}

	parsed, err := StableSwapPoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	tokens := make([]common.Address, 0, 4)
	for i := 0; i < maxCoins; i++ {
		values, err := callMethod(ctx, p.caller, p.address, parsed, "coins", big.NewInt(int64(i)))
		if err != nil {
			if isRevert(err) {
				break
			}
			return nil, err
		}
		token, err := asAddress(values[0])
		if err != nil {
			return nil, fmt.Errorf("coins(%d): %w", i, err)
		}
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("pool %s has no coins", p.address.Hex())
	}

	p.mu.Lock()
	p.tokens = tokens
	p.mu.Unlock()
	return append([]common.Address(nil), tokens...), nil
}

// Balances returns balances(i) per token, falling back to the token's
// balanceOf(pool) when the pool call fails.
func (p *StableSwapPool) Balances(ctx context.Context) ([]*big.Int, error) {
	tokens, err := p.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := StableSwapPoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	balances := make([]*big.Int, len(tokens))
	for i, token := range tokens {
		values, err := callMethod(ctx, p.caller, p.address, parsed, "balances", big.NewInt(int64(i)))
		if err == nil {
			balances[i], err = asBigInt(values[0])
		}
		if err == nil {
			continue
		}
		if p.erc20 == nil {
			return nil, fmt.Errorf("balances(%d): %w", i, err)
		}
		p.logger.Debug("pool balances call failed, using balanceOf", zap.Int("index", i), zap.Error(err))
		bal, balErr := p.erc20.BalanceOf(ctx, token, p.address)
		if balErr != nil {
			return nil, fmt.Errorf("balances(%d): %w", i, errors.Join(err, balErr))
		}
		balances[i] = bal
	}
	return balances, nil
}

// ReferenceRate returns get_virtual_price().
func (p *StableSwapPool) ReferenceRate(ctx context.Context) (*big.Int, error) {
	parsed, err := StableSwapPoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := callMethod(ctx, p.caller, p.address, parsed, "get_virtual_price")
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// LPToken returns lp_token(). Pools without the accessor are their own
// LP token.
func (p *StableSwapPool) LPToken(ctx context.Context) (common.Address, error) {
	parsed, err := StableSwapPoolABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := callMethod(ctx, p.caller, p.address, parsed, "lp_token")
	if err != nil {
		if isRevert(err) {
			return p.address, nil
		}
		return common.Address{}, err
	}
	return asAddress(values[0])
}
