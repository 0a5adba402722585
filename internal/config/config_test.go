package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	feedA = "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"
	feedB = "0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6"
	feedC = "0x3E7d1eAB13ad0104d2750B8863b489D65364e32D"
	pool  = "0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("pool", "", "")
	flags.StringArray("token-feeds", nil, "")
	flags.String("fallback-price", "", "")
	flags.Bool("peg-check", false, "")
	flags.Duration("interval", 0, "")
	return flags
}

func TestLoadFlagsAndDefaults(t *testing.T) {
	flags := newFlags()
	require.NoError(t, flags.Parse([]string{
		"--rpc", "http://localhost:8545",
		"--pool", pool,
		"--token-feeds", feedA + "," + feedB,
		"--token-feeds", feedC,
		"--fallback-price", "1.02",
		"--peg-check",
	}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, [][]string{{feedA, feedB}, {feedC}}, cfg.TokenFeeds)
	assert.True(t, cfg.PegCheck)
	assert.Equal(t, 24*time.Hour, cfg.OracleTimeout)
	assert.Equal(t, 72*time.Hour, cfg.DelayUntilDefault)
	assert.Equal(t, "USD", cfg.TargetName)
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 3, cfg.MaxRetries)

	coll, err := cfg.CollateralConfig()
	require.NoError(t, err)
	assert.Equal(t, "1020000000000000000", coll.FallbackPrice.String())
	assert.Equal(t, "50000000000000000", coll.DefaultThreshold.String())
	assert.Equal(t, "1000000000000000000000000", coll.MaxTradeVolume.String())
	assert.Nil(t, coll.Pegs)

	feeds, err := cfg.FeedAddresses()
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Len(t, feeds[0], 2)

	poolAddr, err := cfg.PoolAddress()
	require.NoError(t, err)
	assert.Equal(t, pool, poolAddr.Hex())

	lp, err := cfg.LPTokenAddress()
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000", lp.Hex())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("COLLATERAL_TOKEN_FEEDS", feedA+","+feedB+"; "+feedC)
	t.Setenv("COLLATERAL_PEGS", "1, 0.5")
	t.Setenv("COLLATERAL_ORACLE_TIMEOUT", "90m")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{feedA, feedB}, {feedC}}, cfg.TokenFeeds)
	assert.Equal(t, []string{"1", "0.5"}, cfg.Pegs)
	assert.Equal(t, 90*time.Minute, cfg.OracleTimeout)

	_, err = cfg.CollateralConfig()
	require.ErrorContains(t, err, "fallback-price is required")
}

func TestLoadYAMLFeedMatrix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collateral.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pool: "`+pool+`"
fallback-price: "1"
pegs: ["1", "1"]
token-feeds:
  - ["`+feedA+`", "`+feedB+`"]
  - "`+feedC+`"
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{feedA, feedB}, {feedC}}, cfg.TokenFeeds)

	coll, err := cfg.CollateralConfig()
	require.NoError(t, err)
	require.Len(t, coll.Pegs, 2)
}

func TestParseErrors(t *testing.T) {
	_, err := ParseAddresses([]string{feedA, "0x1234"})
	require.Error(t, err)

	cfg := Config{FallbackPrice: "-1", MaxTradeVolume: "1", DefaultThreshold: "0.05"}
	_, err = cfg.CollateralConfig()
	require.Error(t, err)

	cfg = Config{TokenFeeds: [][]string{{"nope"}}}
	_, err = cfg.FeedAddresses()
	require.ErrorContains(t, err, "token-feeds[0]")

	_, err = Config{}.PoolAddress()
	require.Error(t, err)
}
