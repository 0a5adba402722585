package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL            string
	Pool              string
	LPToken           string
	TokenFeeds        [][]string
	OracleTimeout     time.Duration
	Name              string
	FallbackPrice     string
	MaxTradeVolume    string
	DefaultThreshold  string
	DelayUntilDefault time.Duration
	TargetName        string
	PegCheck          bool
	Pegs              []string
	Interval          time.Duration
	BlockClock        bool
	StateFile         string
	PGDSN             string
	Out               string
	MetricsAddr       string
	RPCRPS            float64
	RPCBurst          int
	BreakerFailures   uint32
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
	LogFile           string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLATERAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("oracle-timeout", 24*time.Hour)
	v.SetDefault("max-trade-volume", "1000000")
	v.SetDefault("default-threshold", "0.05")
	v.SetDefault("delay-until-default", 72*time.Hour)
	v.SetDefault("target-name", "USD")
	v.SetDefault("peg-check", false)
	v.SetDefault("interval", time.Minute)
	v.SetDefault("out", "./data/collateral.jsonl")
	v.SetDefault("state-file", "./data/state.json")
	v.SetDefault("rpc-rps", 10.0)
	v.SetDefault("rpc-burst", 10)
	v.SetDefault("breaker-failures", 5)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		Pool:              v.GetString("pool"),
		LPToken:           v.GetString("lp-token"),
		TokenFeeds:        getFeedMatrix(v, "token-feeds"),
		OracleTimeout:     v.GetDuration("oracle-timeout"),
		Name:              v.GetString("name"),
		FallbackPrice:     v.GetString("fallback-price"),
		MaxTradeVolume:    v.GetString("max-trade-volume"),
		DefaultThreshold:  v.GetString("default-threshold"),
		DelayUntilDefault: v.GetDuration("delay-until-default"),
		TargetName:        v.GetString("target-name"),
		PegCheck:          v.GetBool("peg-check"),
		Pegs:              getStringSlice(v, "pegs"),
		Interval:          v.GetDuration("interval"),
		BlockClock:        v.GetBool("block-clock"),
		StateFile:         v.GetString("state-file"),
		PGDSN:             v.GetString("pg-dsn"),
		Out:               v.GetString("out"),
		MetricsAddr:       v.GetString("metrics-addr"),
		RPCRPS:            v.GetFloat64("rpc-rps"),
		RPCBurst:          v.GetInt("rpc-burst"),
		BreakerFailures:   v.GetUint32("breaker-failures"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
		LogFile:           v.GetString("log-file"),
	}

	return cfg, nil
}

// getFeedMatrix reads one feed chain per token. Chains are comma-separated
// addresses; a plain string separates tokens with ';'. YAML lists of lists
// are accepted as well.
func getFeedMatrix(v *viper.Viper, key string) [][]string {
	if !v.IsSet(key) {
		return nil
	}

	var rows []string
	switch typed := v.Get(key).(type) {
	case string:
		rows = strings.Split(typed, ";")
	case []string:
		rows = typed
	case []interface{}:
		out := make([][]string, 0, len(typed))
		for _, item := range typed {
			var row []string
			switch inner := item.(type) {
			case []interface{}:
				for _, addr := range inner {
					row = append(row, fmt.Sprintf("%v", addr))
				}
				row = cleanStrings(row)
			default:
				row = splitAndClean(fmt.Sprintf("%v", inner))
			}
			if len(row) > 0 {
				out = append(out, row)
			}
		}
		return out
	default:
		return nil
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if feeds := splitAndClean(row); len(feeds) > 0 {
			out = append(out, feeds)
		}
	}
	return out
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
