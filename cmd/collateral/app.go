package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collateralScope/internal/chain"
	"collateralScope/internal/collateral"
	"collateralScope/internal/config"
	"collateralScope/internal/contracts"
	"collateralScope/internal/metrics"
	"collateralScope/internal/monitor"
	"collateralScope/internal/oracle"
	"collateralScope/internal/storage"
	"collateralScope/internal/storage/postgres"
)

// app holds the wiring shared by every command.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	chain  *chain.Client
	clock  oracle.Clock
	syncer monitor.Syncer
	pg     *postgres.Store
	state  monitor.StateStore
	coll   *collateral.Collateral

	// metrics is optional and must be set before connect.
	metrics  *metrics.Metrics
	recorder *monitor.Recorder
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	return &app{cfg: cfg, logger: logger, clock: oracle.SystemClock{}}, nil
}

// connect dials the RPC and Postgres and builds the collateral, resuming from
// persisted state when there is one. Status changes go to a.recorder.
func (a *app) connect(ctx context.Context) error {
	poolAddr, err := a.cfg.PoolAddress()
	if err != nil {
		return err
	}
	lpToken, err := a.cfg.LPTokenAddress()
	if err != nil {
		return err
	}
	feedAddrs, err := a.cfg.FeedAddresses()
	if err != nil {
		return err
	}
	collCfg, err := a.cfg.CollateralConfig()
	if err != nil {
		return err
	}
	if collCfg.Name == "" {
		collCfg.Name = poolAddr.Hex()
	}

	a.chain, err = chain.NewClient(ctx, a.cfg.RPCURL, chain.Options{
		RequestsPerSecond: a.cfg.RPCRPS,
		Burst:             a.cfg.RPCBurst,
		BreakerFailures:   a.cfg.BreakerFailures,
		Logger:            a.logger,
	})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	if chainID, err := a.chain.GetChainID(ctx); err == nil {
		a.logger.Info("rpc connected", zap.String("chain_id", chainID.String()))
	} else {
		a.logger.Warn("chain id unavailable", zap.Error(err))
	}

	if a.cfg.BlockClock {
		blockClock := chain.NewBlockClock(a.chain)
		if err := blockClock.Sync(ctx); err != nil {
			return fmt.Errorf("sync block clock: %w", err)
		}
		a.clock = blockClock
		a.syncer = blockClock
	}

	if a.cfg.PGDSN != "" {
		a.pg, err = postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		if err := a.pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	if a.cfg.StateFile != "" {
		a.state = &monitor.FileStateStore{Path: a.cfg.StateFile}
	} else if a.pg != nil {
		a.state = &monitor.DBStateStore{Store: a.pg, Name: collCfg.Name}
	}

	erc20 := contracts.NewERC20Reader(a.chain)
	pool := contracts.NewStableSwapPool(poolAddr, a.chain, erc20, a.logger)
	feeds := make([][]oracle.Feed, len(feedAddrs))
	for i, row := range feedAddrs {
		for _, addr := range row {
			feeds[i] = append(feeds[i], contracts.NewChainlinkFeed(addr, a.chain))
		}
	}

	agg, err := oracle.NewAggregator(ctx, oracle.Config{
		Pool:          pool,
		ERC20:         erc20,
		LPToken:       lpToken,
		Feeds:         feeds,
		OracleTimeout: a.cfg.OracleTimeout,
		Clock:         a.clock,
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("build aggregator: %w", err)
	}
	a.logBasket(ctx, agg, erc20)

	a.recorder = monitor.NewRecorder(a.sink(), a.metrics, a.logger)
	opts := []collateral.Option{
		collateral.WithLogger(a.logger),
		collateral.WithClock(a.clock),
		collateral.WithListener(a.recorder.RecordStatusChange),
	}
	if a.state != nil {
		state, ok, err := a.state.Load(ctx)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		if ok {
			a.logger.Info("resume from state",
				zap.String("prev_reference_price", state.PrevReferencePrice.String()),
				zap.Uint64("when_default", state.WhenDefault),
			)
			opts = append(opts, collateral.WithState(state))
		}
	}

	a.coll, err = collateral.New(ctx, agg, collCfg, opts...)
	if err != nil {
		return fmt.Errorf("build collateral: %w", err)
	}

	a.logger.Info("collateral ready",
		zap.String("collateral", a.coll.Name()),
		zap.String("pool", poolAddr.Hex()),
		zap.String("lp_token", agg.LPToken().Hex()),
		zap.Int("tokens", agg.TokenCount()),
		zap.Stringer("status", a.coll.Status()),
		zap.Bool("peg_check", collCfg.PegCheck),
		zap.String("pg_dsn", redactDSN(a.cfg.PGDSN)),
		zap.String("state_file", a.cfg.StateFile),
	)
	return nil
}

func (a *app) logBasket(ctx context.Context, agg *oracle.Aggregator, erc20 *contracts.ERC20Reader) {
	for i := 0; i < agg.TokenCount(); i++ {
		token, err := agg.Token(i)
		if err != nil {
			continue
		}
		meta, err := erc20.FetchTokenMeta(ctx, i, token.Address, a.logger)
		if err != nil {
			a.logger.Warn("token metadata unavailable", zap.Int("index", i), zap.Error(err))
			continue
		}
		a.logger.Info("basket token",
			zap.Int("index", meta.Index),
			zap.String("address", meta.Address),
			zap.String("symbol", meta.Symbol),
			zap.Uint8("decimals", meta.Decimals),
			zap.Int("feeds", len(token.Feeds)),
		)
	}
}

// sink builds the configured observation sinks.
func (a *app) sink() storage.Sink {
	var sinks storage.Multi
	if a.cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(a.cfg.Out))
	}
	if a.pg != nil {
		sinks = append(sinks, a.pg)
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

func (a *app) monitorConfig() monitor.Config {
	return monitor.Config{
		Interval: a.cfg.Interval,
		Retry: monitor.RetryPolicy{
			MaxRetries: a.cfg.MaxRetries,
			BaseDelay:  a.cfg.RetryBackoff,
		},
	}
}

func (a *app) monitorOptions() []monitor.Option {
	opts := []monitor.Option{monitor.WithClock(a.clock)}
	if a.syncer != nil {
		opts = append(opts, monitor.WithSyncer(a.syncer))
	}
	return opts
}

func (a *app) Close() {
	if a.pg != nil {
		a.pg.Close()
	}
	if a.chain != nil {
		a.chain.Close()
	}
	_ = a.logger.Sync()
}
