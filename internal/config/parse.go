package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"collateralScope/internal/collateral"
	"collateralScope/internal/fixed"
)

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		addr, err := ParseAddress(input)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// PoolAddress parses the pool key.
func (c Config) PoolAddress() (common.Address, error) {
	if c.Pool == "" {
		return common.Address{}, fmt.Errorf("pool is required")
	}
	return ParseAddress(c.Pool)
}

// LPTokenAddress parses the optional lp-token key. The zero address means
// "ask the pool".
func (c Config) LPTokenAddress() (common.Address, error) {
	if c.LPToken == "" {
		return common.Address{}, nil
	}
	return ParseAddress(c.LPToken)
}

// FeedAddresses parses the token-feeds matrix.
func (c Config) FeedAddresses() ([][]common.Address, error) {
	if len(c.TokenFeeds) == 0 {
		return nil, fmt.Errorf("token-feeds is required")
	}
	out := make([][]common.Address, len(c.TokenFeeds))
	for i, row := range c.TokenFeeds {
		addrs, err := ParseAddresses(row)
		if err != nil {
			return nil, fmt.Errorf("token-feeds[%d]: %w", i, err)
		}
		out[i] = addrs
	}
	return out, nil
}

// CollateralConfig converts the decimal settings into fixed18 values.
func (c Config) CollateralConfig() (collateral.Config, error) {
	fallback, err := parseFixed("fallback-price", c.FallbackPrice)
	if err != nil {
		return collateral.Config{}, err
	}
	maxTrade, err := parseFixed("max-trade-volume", c.MaxTradeVolume)
	if err != nil {
		return collateral.Config{}, err
	}
	threshold, err := parseFixed("default-threshold", c.DefaultThreshold)
	if err != nil {
		return collateral.Config{}, err
	}

	var pegs []*big.Int
	for i, raw := range c.Pegs {
		peg, err := parseFixed(fmt.Sprintf("pegs[%d]", i), raw)
		if err != nil {
			return collateral.Config{}, err
		}
		pegs = append(pegs, peg)
	}

	return collateral.Config{
		Name:              c.Name,
		FallbackPrice:     fallback,
		MaxTradeVolume:    maxTrade,
		DefaultThreshold:  threshold,
		DelayUntilDefault: c.DelayUntilDefault,
		TargetName:        c.TargetName,
		PegCheck:          c.PegCheck,
		Pegs:              pegs,
	}, nil
}

func parseFixed(key, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%s is required", key)
	}
	v, err := fixed.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
