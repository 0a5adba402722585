package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collateralScope/internal/oracle"
)

type callHandler func(args []interface{}) ([]byte, error)

// fakeChain dispatches eth_call by contract address and method selector.
type fakeChain struct {
	t        *testing.T
	handlers map[common.Address]map[[4]byte]callHandler
	methods  map[[4]byte]abi.Method
}

func newFakeChain(t *testing.T) *fakeChain {
	return &fakeChain{
		t:        t,
		handlers: make(map[common.Address]map[[4]byte]callHandler),
		methods:  make(map[[4]byte]abi.Method),
	}
}

func (f *fakeChain) handle(to common.Address, parsed abi.ABI, method string, h callHandler) {
	m, ok := parsed.Methods[method]
	require.True(f.t, ok, "unknown method %s", method)
	var sel [4]byte
	copy(sel[:], m.ID)
	if f.handlers[to] == nil {
		f.handlers[to] = make(map[[4]byte]callHandler)
	}
	f.handlers[to][sel] = h
	f.methods[sel] = m
}

// returns registers a handler that always packs the given outputs.
func (f *fakeChain) returns(to common.Address, parsed abi.ABI, method string, outputs ...interface{}) {
	m := parsed.Methods[method]
	f.handle(to, parsed, method, func([]interface{}) ([]byte, error) {
		return m.Outputs.Pack(outputs...)
	})
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	h, ok := f.handlers[*msg.To][sel]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	args, err := f.methods[sel].Inputs.Unpack(msg.Data[4:])
	require.NoError(f.t, err)
	return h(args)
}

type revertWithData struct{ reason string }

func (e revertWithData) Error() string          { return "execution reverted: " + e.reason }
func (e revertWithData) ErrorCode() int         { return 3 }
func (e revertWithData) ErrorData() interface{} { return "0x08c379a0" }

func mustABI(t *testing.T, fn func() (abi.ABI, error)) abi.ABI {
	t.Helper()
	parsed, err := fn()
	require.NoError(t, err)
	return parsed
}

func TestStableSwapPool(t *testing.T) {
	ctx := context.Background()
	poolABI := mustABI(t, StableSwapPoolABI)
	erc20ABI := mustABI(t, ERC20ABI)
	chain := newFakeChain(t)

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	lp := common.HexToAddress("0x2222222222222222222222222222222222222222")
	coins := []common.Address{
		common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"),
	}

	chain.handle(pool, poolABI, "coins", func(args []interface{}) ([]byte, error) {
		i := args[0].(*big.Int).Int64()
		if i >= int64(len(coins)) {
			return nil, errors.New("execution reverted")
		}
		return poolABI.Methods["coins"].Outputs.Pack(coins[i])
	})
	chain.handle(pool, poolABI, "balances", func(args []interface{}) ([]byte, error) {
		i := args[0].(*big.Int).Int64()
		if i == 2 {
			return nil, revertWithData{reason: "killed"}
		}
		return poolABI.Methods["balances"].Outputs.Pack(big.NewInt(1000 + i))
	})
	chain.handle(coins[2], erc20ABI, "balanceOf", func(args []interface{}) ([]byte, error) {
		require.Equal(t, pool, args[0].(common.Address))
		return erc20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(777))
	})
	chain.returns(pool, poolABI, "get_virtual_price", big.NewInt(1_012_000_000_000_000_000))
	chain.returns(pool, poolABI, "lp_token", lp)

	reader := NewERC20Reader(chain)
	p := NewStableSwapPool(pool, chain, reader, zap.NewNop())

	tokens, err := p.Tokens(ctx)
	require.NoError(t, err)
	require.Equal(t, coins, tokens)

	balances, err := p.Balances(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"1000", "1001", "777"}, []string{balances[0].String(), balances[1].String(), balances[2].String()})

	ref, err := p.ReferenceRate(ctx)
	require.NoError(t, err)
	require.Equal(t, "1012000000000000000", ref.String())

	lpToken, err := p.LPToken(ctx)
	require.NoError(t, err)
	require.Equal(t, lp, lpToken)

	bare := NewStableSwapPool(common.HexToAddress("0x3333333333333333333333333333333333333333"), chain, reader, nil)
	lpToken, err = bare.LPToken(ctx)
	require.NoError(t, err)
	require.Equal(t, bare.Address(), lpToken)
}

func TestChainlinkFeedRescalesAnswer(t *testing.T) {
	ctx := context.Background()
	feedABI := mustABI(t, AggregatorV3ABI)
	chain := newFakeChain(t)
	addr := common.HexToAddress("0x4444444444444444444444444444444444444444")

	chain.returns(addr, feedABI, "decimals", uint8(8))
	chain.returns(addr, feedABI, "latestRoundData",
		big.NewInt(42), big.NewInt(100_050_000), big.NewInt(1_700_000_000), big.NewInt(1_700_000_010), big.NewInt(42))

	feed := NewChainlinkFeed(addr, chain)
	reading, err := feed.LatestAnswer(ctx)
	require.NoError(t, err)
	require.Equal(t, "1000500000000000000", reading.Rate.String())
	require.Equal(t, uint64(1_700_000_010), reading.UpdatedAt)

	chain.returns(addr, feedABI, "latestRoundData",
		big.NewInt(43), big.NewInt(100_000_000), big.NewInt(1_700_000_000), big.NewInt(1_700_000_020), big.NewInt(42))
	_, err = feed.LatestAnswer(ctx)
	require.ErrorIs(t, err, oracle.ErrStalePrice)

	chain.returns(addr, feedABI, "latestRoundData",
		big.NewInt(44), big.NewInt(-1), big.NewInt(0), big.NewInt(1_700_000_030), big.NewInt(44))
	reading, err = feed.LatestAnswer(ctx)
	require.NoError(t, err)
	require.Equal(t, -1, reading.Rate.Sign())
}

func TestChainlinkFeedDecimalsLoadConcurrently(t *testing.T) {
	ctx := context.Background()
	feedABI := mustABI(t, AggregatorV3ABI)
	chain := newFakeChain(t)
	addr := common.HexToAddress("0x7777777777777777777777777777777777777777")

	var calls atomic.Int32
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	chain.handle(addr, feedABI, "decimals", func([]interface{}) ([]byte, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return feedABI.Methods["decimals"].Outputs.Pack(uint8(18))
	})
	chain.returns(addr, feedABI, "latestRoundData",
		big.NewInt(7), big.NewInt(1_000_000_000_000_000_000), big.NewInt(1_700_000_000), big.NewInt(1_700_000_000), big.NewInt(7))

	feed := NewChainlinkFeed(addr, chain)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := feed.LatestAnswer(ctx)
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			close(release)
			t.Fatal("second reader blocked behind a pending decimals call")
		}
	}
	close(release)
	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
	}

	reading, err := feed.LatestAnswer(ctx)
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", reading.Rate.String())
	require.Equal(t, int32(2), calls.Load())
}

func TestERC20Reader(t *testing.T) {
	ctx := context.Background()
	erc20ABI := mustABI(t, ERC20ABI)
	bytes32ABI := mustABI(t, erc20ABIBytes32Instance)
	chain := newFakeChain(t)
	token := common.HexToAddress("0x5555555555555555555555555555555555555555")

	calls := 0
	chain.handle(token, erc20ABI, "decimals", func([]interface{}) ([]byte, error) {
		calls++
		return erc20ABI.Methods["decimals"].Outputs.Pack(uint8(6))
	})
	chain.returns(token, erc20ABI, "totalSupply", big.NewInt(5_000_000))
	var symbol [32]byte
	copy(symbol[:], "MKR")
	chain.returns(token, bytes32ABI, "symbol", symbol)

	reader := NewERC20Reader(chain)
	for i := 0; i < 3; i++ {
		decimals, err := reader.Decimals(ctx, token)
		require.NoError(t, err)
		require.Equal(t, uint8(6), decimals)
	}
	require.Equal(t, 1, calls)

	supply, err := reader.TotalSupply(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000), supply.Int64())

	meta, err := reader.FetchTokenMeta(ctx, 2, token, nil)
	require.NoError(t, err)
	require.Equal(t, 2, meta.Index)
	require.Equal(t, "MKR", meta.Symbol)
	require.Equal(t, "", meta.Name)
}

func TestClassifyCallError(t *testing.T) {
	err := classifyCallError(errors.New("execution reverted"))
	require.ErrorIs(t, err, oracle.ErrEmptyRevertData)

	err = classifyCallError(revertWithData{reason: "paused"})
	require.NotErrorIs(t, err, oracle.ErrEmptyRevertData)

	transport := fmt.Errorf("dial tcp: connection refused")
	require.Equal(t, transport, classifyCallError(transport))

	chain := newFakeChain(t)
	addr := common.HexToAddress("0x6666666666666666666666666666666666666666")
	chain.handle(addr, mustABI(t, AggregatorV3ABI), "decimals", func([]interface{}) ([]byte, error) {
		return nil, nil
	})
	_, err = NewChainlinkFeed(addr, chain).LatestAnswer(context.Background())
	require.ErrorIs(t, err, oracle.ErrEmptyRevertData)
}
