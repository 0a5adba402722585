package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collateralScope/internal/metrics"
	"collateralScope/internal/monitor"
	"collateralScope/internal/server"
)

func runMonitor(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)

	if err := a.connect(ctx); err != nil {
		return err
	}

	mon, err := monitor.New(a.monitorConfig(), a.coll, a.state, a.recorder, a.logger, a.monitorOptions()...)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	if a.cfg.MetricsAddr != "" {
		srv := server.New(a.cfg.MetricsAddr, a.coll, reg, a.logger)
		go func() {
			serverErr <- srv.Run(ctx)
		}()
	}

	a.logger.Info("monitor start",
		zap.String("collateral", a.coll.Name()),
		zap.Duration("interval", a.cfg.Interval),
		zap.String("metrics_addr", a.cfg.MetricsAddr),
		zap.String("out", a.cfg.Out),
	)

	monitorErr := make(chan error, 1)
	go func() {
		monitorErr <- mon.Run(ctx)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("http server stopped", zap.Error(err))
		}
		stop()
		<-monitorErr
		return err
	case err := <-monitorErr:
		stop()
		if a.cfg.MetricsAddr != "" {
			<-serverErr
		}
		return err
	}
}
