package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tiffinbox/api/internal/platform/config"
	pfirestore "github.com/tiffinbox/api/internal/platform/firestore"
	"github.com/tiffinbox/api/internal/platform/observability"
	"github.com/tiffinbox/api/internal/repositories"
	firestoreRepo "github.com/tiffinbox/api/internal/repositories/firestore"
	"github.com/tiffinbox/api/internal/services"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		path     string
		logLevel string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Load menu items and coupons into Firestore",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := observability.NewLogger(logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			data, err := loadFixtures(path, time.Now().UTC())
			if err != nil {
				return err
			}
			if dryRun {
				logger.Info("fixtures parsed", zap.Int("menu", len(data.Menu)), zap.Int("coupons", len(data.Coupons)))
				return nil
			}
			return seed(cmd.Context(), logger, data)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "cmd/seed/fixtures.yaml", "fixture file to load")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse fixtures without writing")
	return cmd
}

func seed(ctx context.Context, logger *zap.Logger, data fixtures) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	registry, err := firestoreRepo.NewRegistry(pfirestore.NewProvider(cfg.Firestore), nil)
	if err != nil {
		return fmt.Errorf("initialise repositories: %w", err)
	}
	defer func() {
		if err := registry.Close(context.Background()); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	return seedRegistry(ctx, logger, registry, cfg.Gateway.Currency, data)
}

// seedRegistry upserts menu items and creates coupons that do not exist yet.
func seedRegistry(ctx context.Context, logger *zap.Logger, registry repositories.Registry, currency string, data fixtures) error {
	for _, item := range data.Menu {
		if err := registry.Menu().Upsert(ctx, item); err != nil {
			return fmt.Errorf("upsert menu item %s: %w", item.ID, err)
		}
	}
	logger.Info("menu seeded", zap.Int("items", len(data.Menu)))

	coupons, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons: registry.Coupons(),
		Carts:   registry.Carts(),
		Pricing: services.NewPricingEngine(currency),
	})
	if err != nil {
		return err
	}

	created := 0
	for _, cmd := range data.Coupons {
		_, err := coupons.Create(ctx, cmd)
		switch {
		case err == nil:
			created++
		case errors.Is(err, services.ErrCouponConflict):
			logger.Info("coupon already exists", zap.String("code", cmd.Code))
		default:
			return fmt.Errorf("create coupon %s: %w", cmd.Code, err)
		}
	}
	logger.Info("coupons seeded", zap.Int("created", created), zap.Int("total", len(data.Coupons)))
	return nil
}
