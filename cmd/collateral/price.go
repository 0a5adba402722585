package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collateralScope/internal/fixed"
	"collateralScope/internal/monitor"
)

func runPrice(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.connect(ctx); err != nil {
		return err
	}

	strict, _ := cmd.Flags().GetBool("strict")
	if strict {
		price, err := a.coll.StrictPrice(ctx)
		if err != nil {
			return fmt.Errorf("strict price: %w", err)
		}
		a.logger.Info("strict price", zap.String("price", fixed.Format(price)))
	}

	snap, err := monitor.BuildSnapshot(ctx, a.coll, a.clock.Now())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
