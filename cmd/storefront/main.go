// Command storefront serves the ERP-backed storefront API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/config"
	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

var (
	configFile string
	rootCmd    = &cobra.Command{
		Use:   "storefront",
		Short: "Caching storefront API in front of an ERP",
		Long: `storefront serves a paginated product catalog, prices, stock and
checkout on top of an ERP resource API.

Upstream reads are cached in TTL/LRU stores; listing pages, categories and
image URLs can be persisted to Redis or SQLite so they survive restarts.

Configuration comes from environment variables (ERP_DOMAIN, ERP_API_KEY,
ERP_API_SECRET, ...) and an optional storefront.yaml.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: ./storefront.{yaml,toml,json} if present)")
	rootCmd.AddCommand(serveCmd, warmCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and sets up the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{File: configFile})
	if err != nil {
		return nil, err
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	logCfg.Version = version
	logging.Setup(logCfg)
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	server, err := app.Server()
	if err != nil {
		return err
	}

	if cfg.Warmup.Enabled {
		app.Warmer.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("Storefront stopped")
	return nil
}

var warmPages int

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Warm the caches once and exit",
	Long: `Warm fetches categories, the total product count and the first
listing pages. With a persisted backend (CACHE_PERSIST=redis|sqlite) the
warmed entries are available to the next server start.`,
	RunE: runWarm,
}

func init() {
	warmCmd.Flags().IntVarP(&warmPages, "pages", "p", 0, "pages to warm (default: WARMUP_PAGES)")
}

func runWarm(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if warmPages > 0 {
		cfg.Warmup.Pages = warmPages
	}

	app, err := NewApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Warmer.Run(cmd.Context())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("storefront %s (%s)\n", version, commit)
	},
}
