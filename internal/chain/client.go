package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrBreakerOpen is returned while the RPC breaker rejects calls.
var ErrBreakerOpen = errors.New("rpc circuit breaker open")

// Options tunes RPC throttling and the circuit breaker.
type Options struct {
	// RequestsPerSecond caps eth_call throughput. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	// BreakerFailures is the consecutive transport failures that open the
	// breaker. Zero disables the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Logger          *zap.Logger
}

// Client wraps go-ethereum RPC with a rate limiter and a circuit breaker.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	caller    ethereum.ContractCaller
	headers   headerReader

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

type headerReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// NewClient dials rpcURL and applies opts.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	ethClient := ethclient.NewClient(rpcClient)
	c := newClient(ethClient, opts)
	c.rpcClient = rpcClient
	c.ethClient = ethClient
	c.headers = ethClient
	return c, nil
}

func newClient(caller ethereum.ContractCaller, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{caller: caller, logger: logger}

	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	if opts.BreakerFailures > 0 {
		timeout := opts.BreakerTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		failures := opts.BreakerFailures
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "rpc",
			Timeout: timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			// Reverts are contract answers, not transport failures.
			IsSuccessful: func(err error) bool {
				return err == nil || isRevert(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("rpc breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}
	return c
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	if c.ethClient == nil {
		return nil, fmt.Errorf("client not dialed")
	}
	return c.ethClient.ChainID(ctx)
}

// LatestBlockTimestamp returns the timestamp of the latest block header.
func (c *Client) LatestBlockTimestamp(ctx context.Context) (uint64, error) {
	if c.headers == nil {
		return 0, fmt.Errorf("client not dialed")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}
	header, err := c.headers.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}
	return header.Time, nil
}

// BreakerState reports the breaker state, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// CallContract performs a throttled eth_call guarded by the breaker.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.breaker == nil {
		return c.caller.CallContract(ctx, msg, blockNumber)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.caller.CallContract(ctx, msg, blockNumber)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	if err != nil {
		return nil, err
	}
	data, _ := out.([]byte)
	return data, nil
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
