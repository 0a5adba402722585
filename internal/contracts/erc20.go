package contracts

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"collateralScope/internal/model"
)

// ERC20Reader reads ERC20 state through eth_call. Decimals are cached by
// address since they never change.
type ERC20Reader struct {
	caller Caller

	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

func NewERC20Reader(caller Caller) *ERC20Reader {
	return &ERC20Reader{caller: caller, decimals: make(map[common.Address]uint8)}
}

// Decimals returns token decimals, loading them once per address.
func (r *ERC20Reader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	r.mu.RLock()
	decimals, ok := r.decimals[token]
	r.mu.RUnlock()
	if ok {
		return decimals, nil
	}

	parsed, err := ERC20ABI()
	if err != nil {
		return 0, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, token, parsed, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, err = asUint8(values[0])
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}

	r.mu.Lock()
	r.decimals[token] = decimals
	r.mu.Unlock()
	return decimals, nil
}

// TotalSupply returns the raw token supply.
func (r *ERC20Reader) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, token, parsed, "totalSupply")
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// BalanceOf returns the raw token balance of owner.
func (r *ERC20Reader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, token, parsed, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// FetchTokenMeta loads decimals plus best-effort symbol and name. Tokens
// that return bytes32 metadata are decoded as well.
func (r *ERC20Reader) FetchTokenMeta(ctx context.Context, index int, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Index: index, Address: token.Hex()}
	if logger == nil {
		logger = zap.NewNop()
	}

	decimals, err := r.Decimals(ctx, token)
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	stringABI, err := ERC20ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	if values, err := callMethod(ctx, r.caller, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, r.caller, token, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := callMethod(ctx, r.caller, token, stringABI, "name"); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := callMethod(ctx, r.caller, token, bytes32ABI, "name"); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}
