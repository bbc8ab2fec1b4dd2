package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/tradesuite/rolesync/internal/api"
	"github.com/tradesuite/rolesync/internal/catalog"
	"github.com/tradesuite/rolesync/internal/config"
	"github.com/tradesuite/rolesync/internal/directory"
	"github.com/tradesuite/rolesync/internal/entitlement"
	"github.com/tradesuite/rolesync/internal/history"
	"github.com/tradesuite/rolesync/internal/intake"
	"github.com/tradesuite/rolesync/internal/ledger"
	"github.com/tradesuite/rolesync/internal/logging"
	"github.com/tradesuite/rolesync/pkg/discord"
	"github.com/tradesuite/rolesync/pkg/sheets"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "rolesync",
	Short:   "rolesync - Discord entitlement reconciliation engine",
	Long:    `rolesync keeps Discord roles consistent with a Google Sheets purchase ledger: purchasers verify by email over DM, and commerce webhooks grant, revoke, or remove access as subscriptions change.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rolesync %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration and the product catalog, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		products, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration OK (%d products)\n", len(products.ProductIDs()))
		return nil
	},
}

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token <token>",
	Short: "Generate the bcrypt hash for ROLESYNC_WEBHOOK_TOKEN_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Println(string(hash))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(hashTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup; re-initialized once config is loaded.
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "rolesync",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "rolesync",
	})

	log.Info().Str("version", Version).Msg("Starting rolesync reconciliation server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	products, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("Failed to load product catalog")
	}
	log.Info().Strs("products", products.ProductIDs()).Msg("Product catalog loaded")

	sheetsClient, err := sheets.NewClient(ctx, sheets.ClientConfig{
		SpreadsheetID:   cfg.SpreadsheetID,
		CredentialsFile: cfg.GoogleCredentials,
		Timeout:         cfg.LedgerTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Sheets client")
	}
	gateway := ledger.NewSheetGateway(sheetsClient, cfg.SheetName)

	discordClient, err := discord.NewClient(discord.ClientConfig{Token: cfg.DiscordToken})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Discord client")
	}
	discordGateway := discord.NewGateway(discordClient, cfg.DiscordToken)
	dir := directory.NewDiscordDirectory(discordClient, discordGateway, cfg.GuildID)

	store, err := history.NewStore(history.StoreConfig{
		DataDir:       cfg.DataPath,
		RetentionDays: cfg.HistoryRetentionDays,
	})
	if err != nil {
		log.Warn().Err(err).Msg("History store unavailable, continuing without persistence")
		store = nil
	} else {
		defer store.Close()
	}

	coordinator := entitlement.NewCoordinator(gateway, dir, products, recorderOrNil(store), cfg.MaxConcurrentReconciles)

	bot := intake.NewBot(discordClient, dir, coordinator)
	bot.Attach(discordGateway)
	go discordGateway.Run(ctx)

	startMetricsServer(ctx, cfg.MetricsAddr)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(cfg, coordinator, dir, store, Version),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("Shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down HTTP server cleanly")
	}

	// Let queued reconciliations finish so ledger writes are not cut off
	// mid-run.
	drained := make(chan struct{})
	go func() {
		coordinator.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Timed out waiting for queued reconciliations to drain")
	}
}

// recorderOrNil avoids handing the coordinator a typed nil interface when the
// history store failed to open.
func recorderOrNil(store *history.Store) entitlement.Recorder {
	if store == nil {
		return nil
	}
	return store
}
