package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const stableSwapPoolABIJSON = `[
  {
    "inputs": [{"internalType": "uint256", "name": "i", "type": "uint256"}],
    "name": "coins",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "i", "type": "uint256"}],
    "name": "balances",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "get_virtual_price",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "lp_token",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const aggregatorV3ABIJSON = `[
  {
    "inputs": [],
    "name": "latestRoundData",
    "outputs": [
      {"internalType": "uint80", "name": "roundId", "type": "uint80"},
      {"internalType": "int256", "name": "answer", "type": "int256"},
      {"internalType": "uint256", "name": "startedAt", "type": "uint256"},
      {"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
      {"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "decimals",
    "outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	stableSwapPoolABI     abi.ABI
	stableSwapPoolABIOnce sync.Once
	stableSwapPoolABIErr  error

	aggregatorV3ABI     abi.ABI
	aggregatorV3ABIOnce sync.Once
	aggregatorV3ABIErr  error
)

// StableSwapPoolABI returns the parsed stable-swap pool ABI.
func StableSwapPoolABI() (abi.ABI, error) {
	stableSwapPoolABIOnce.Do(func() {
		stableSwapPoolABI, stableSwapPoolABIErr = abi.JSON(strings.NewReader(stableSwapPoolABIJSON))
	})
	return stableSwapPoolABI, stableSwapPoolABIErr
}

// AggregatorV3ABI returns the parsed Chainlink AggregatorV3 ABI.
func AggregatorV3ABI() (abi.ABI, error) {
	aggregatorV3ABIOnce.Do(func() {
		aggregatorV3ABI, aggregatorV3ABIErr = abi.JSON(strings.NewReader(aggregatorV3ABIJSON))
	})
	return aggregatorV3ABI, aggregatorV3ABIErr
}
