package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auroraexhibit/internal/api"
	"auroraexhibit/internal/indexer"
	"auroraexhibit/internal/retry"
	"auroraexhibit/internal/storage"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gallery HTTP API",
	Long: `Run the gallery HTTP API. When DATABASE_URL is set the event indexer
runs alongside it and feeds GET /activity.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.Info("🌌 Starting AuroraExhibit...")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// A missing wallet is not fatal: POST /network/detect retries
	if err := a.service.Start(ctx); err != nil {
		slog.Warn("Wallet provider unavailable, serving in disconnected state", "error", err)
	}

	var repository storage.Repository
	var watcher *indexer.Watcher
	if cfg.IndexerEnabled() {
		repo, w, err := setupIndexer(ctx, a)
		if err != nil {
			return err
		}
		defer repo.Close()
		repository, watcher = repo, w
	}

	server := api.NewServer(cfg.APIPort, a.service, repository)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	<-gctx.Done()
	slog.Warn("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("AuroraExhibit stopped")
	return nil
}

// setupIndexer connects the database and builds a watcher for the
// deployment on the wallet endpoint's chain. The watcher is nil when that
// chain has no deployment.
func setupIndexer(ctx context.Context, a *app) (*storage.PostgresRepository, *indexer.Watcher, error) {
	repo, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}
	slog.Info("Database connected successfully")

	client, err := ethclient.DialContext(ctx, cfg.WalletRPCURL)
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("failed to dial %s for indexing: %w", cfg.WalletRPCURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		slog.Warn("Indexer disabled, chain id unavailable", "error", err)
		return repo, nil, nil
	}

	address, ok := a.table.Lookup(chainID.Uint64())
	if !ok {
		client.Close()
		slog.Warn("Indexer disabled, no deployment on chain", "chain_id", chainID)
		return repo, nil, nil
	}

	watcher := indexer.NewWatcher(client, repo, retry.NewStrategy(retry.LoadConfig()), indexer.Config{
		ChainID:      chainID.Uint64(),
		Contract:     address,
		StartBlock:   cfg.IndexerStartBlock,
		BatchSize:    cfg.IndexerBlockBatchSize,
		PollInterval: cfg.IndexerPollInterval,
	})
	return repo, watcher, nil
}
