// Package oracletest provides deterministic in-memory oracle sources.
package oracletest

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"collateralScope/internal/oracle"
)

// Clock is a settable oracle.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(unix int64) *Clock {
	return &Clock{now: time.Unix(unix, 0)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Feed is a settable oracle.Feed.
type Feed struct {
	mu      sync.Mutex
	address common.Address
	reading oracle.Reading
	err     error
}

func NewFeed(address common.Address, rate *big.Int, updatedAt uint64) *Feed {
	return &Feed{address: address, reading: oracle.Reading{Rate: rate, UpdatedAt: updatedAt}}
}

func (f *Feed) Address() common.Address {
	return f.address
}

func (f *Feed) Set(rate *big.Int, updatedAt uint64) {
	f.mu.Lock()
	f.reading = oracle.Reading{Rate: rate, UpdatedAt: updatedAt}
	f.err = nil
	f.mu.Unlock()
}

func (f *Feed) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *Feed) LatestAnswer(_ context.Context) (oracle.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return oracle.Reading{}, f.err
	}
	out := oracle.Reading{UpdatedAt: f.reading.UpdatedAt}
	if f.reading.Rate != nil {
		out.Rate = new(big.Int).Set(f.reading.Rate)
	}
	return out, nil
}

// Pool is a settable oracle.Pool.
type Pool struct {
	mu       sync.Mutex
	address  common.Address
	tokens   []common.Address
	balances []*big.Int
	refRate  *big.Int
	refErr   error
	lpToken  common.Address
}

func NewPool(address, lpToken common.Address, tokens []common.Address, balances []*big.Int, refRate *big.Int) *Pool {
	return &Pool{address: address, tokens: tokens, balances: balances, refRate: refRate, lpToken: lpToken}
}

func (p *Pool) Address() common.Address {
	return p.address
}

func (p *Pool) Tokens(_ context.Context) ([]common.Address, error) {
	out := make([]common.Address, len(p.tokens))
	copy(out, p.tokens)
	return out, nil
}

func (p *Pool) Balances(_ context.Context) ([]*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*big.Int, len(p.balances))
	for i, b := range p.balances {
		out[i] = new(big.Int).Set(b)
	}
	return out, nil
}

func (p *Pool) SetBalances(balances []*big.Int) {
	p.mu.Lock()
	p.balances = balances
	p.mu.Unlock()
}

func (p *Pool) ReferenceRate(_ context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refErr != nil {
		return nil, p.refErr
	}
	return new(big.Int).Set(p.refRate), nil
}

func (p *Pool) SetReferenceRate(rate *big.Int) {
	p.mu.Lock()
	p.refRate = rate
	p.refErr = nil
	p.mu.Unlock()
}

func (p *Pool) FailReferenceRate(err error) {
	p.mu.Lock()
	p.refErr = err
	p.mu.Unlock()
}

func (p *Pool) LPToken(_ context.Context) (common.Address, error) {
	return p.lpToken, nil
}

// ERC20 serves decimals and supplies from maps.
type ERC20 struct {
	mu       sync.Mutex
	decimals map[common.Address]uint8
	supply   map[common.Address]*big.Int
}

func NewERC20() *ERC20 {
	return &ERC20{
		decimals: make(map[common.Address]uint8),
		supply:   make(map[common.Address]*big.Int),
	}
}

func (e *ERC20) SetDecimals(token common.Address, decimals uint8) {
	e.mu.Lock()
	e.decimals[token] = decimals
	e.mu.Unlock()
}

func (e *ERC20) SetSupply(token common.Address, supply *big.Int) {
	e.mu.Lock()
	e.supply[token] = supply
	e.mu.Unlock()
}

func (e *ERC20) Decimals(_ context.Context, token common.Address) (uint8, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.decimals[token]
	if !ok {
		return 0, fmt.Errorf("unknown token %s", token.Hex())
	}
	return d, nil
}

func (e *ERC20) TotalSupply(_ context.Context, token common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.supply[token]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", token.Hex())
	}
	return new(big.Int).Set(s), nil
}

// Address returns a deterministic non-zero address for n.
func Address(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}
