// Package indexer follows the gallery contract's events and stores them.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/metrics"
	"auroraexhibit/internal/models"
	"auroraexhibit/internal/retry"
	"auroraexhibit/internal/storage"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogReader is the chain surface the watcher needs
type LogReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Config configures a Watcher
type Config struct {
	ChainID      uint64
	Contract     common.Address
	StartBlock   uint64
	BatchSize    uint64
	PollInterval time.Duration
}

// Watcher polls the chain for gallery events and checkpoints its progress
type Watcher struct {
	reader LogReader
	repo   storage.Repository
	retry  retry.Strategy
	cfg    Config
}

// NewWatcher creates a Watcher
func NewWatcher(reader LogReader, repo storage.Repository, strategy retry.Strategy, cfg Config) *Watcher {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 12 * time.Second
	}
	if strategy == nil {
		strategy = retry.NewNoRetryStrategy()
	}
	return &Watcher{
		reader: reader,
		repo:   repo,
		retry:  strategy,
		cfg:    cfg,
	}
}

// Run syncs until ctx is cancelled. Sync failures are logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	slog.Info("Starting event indexer",
		"chain_id", w.cfg.ChainID,
		"contract", w.cfg.Contract.Hex(),
		"start_block", w.cfg.StartBlock,
		"batch_size", w.cfg.BatchSize,
		"retry", w.retry.Name(),
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.SyncOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Info("Event indexer stopped")
				return nil
			}
			metrics.ErrorsTotal.WithLabelValues("indexer").Inc()
			slog.Error("Indexer sync failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("Event indexer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SyncOnce processes every block from the checkpoint to the current head
// and returns the number of events saved
func (w *Watcher) SyncOnce(ctx context.Context) (int, error) {
	contractKey := w.cfg.Contract.Hex()

	last, err := w.repo.GetLastProcessedBlock(ctx, w.cfg.ChainID, contractKey)
	if err != nil {
		return 0, err
	}
	from := w.cfg.StartBlock
	if last > 0 && last >= from {
		from = last + 1
	}

	var head uint64
	err = w.retry.Execute(ctx, func() error {
		var err error
		head, err = w.reader.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read block number: %w", err)
	}
	if from > head {
		return 0, nil
	}

	saved := 0
	for start := from; start <= head; start += w.cfg.BatchSize {
		end := start + w.cfg.BatchSize - 1
		if end > head {
			end = head
		}

		n, err := w.processRange(ctx, start, end)
		if err != nil {
			return saved, err
		}
		saved += n

		if err := w.repo.SaveLastProcessedBlock(ctx, w.cfg.ChainID, contractKey, end); err != nil {
			return saved, err
		}
		metrics.LastIndexedBlock.Set(float64(end))
	}

	if saved > 0 {
		slog.Info("✅ Gallery events indexed", "events", saved, "from_block", from, "to_block", head)
	} else {
		slog.Debug("No new gallery events", "from_block", from, "to_block", head)
	}
	return saved, nil
}

func (w *Watcher) processRange(ctx context.Context, start, end uint64) (int, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(start),
		ToBlock:   new(big.Int).SetUint64(end),
		Addresses: []common.Address{w.cfg.Contract},
		Topics:    [][]common.Hash{contract.EventTopics()},
	}

	var logs []types.Log
	err := w.retry.Execute(ctx, func() error {
		var err error
		logs, err = w.reader.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to filter logs %d-%d: %w", start, end, err)
	}

	events := make([]models.GalleryEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := contract.DecodeEvent(l)
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("indexer_decode").Inc()
			slog.Warn("Skipping undecodable log", "tx_hash", l.TxHash.Hex(), "log_index", l.Index, "error", err)
			continue
		}
		events = append(events, toModel(w.cfg.ChainID, l.Address, ev))
	}

	if err := w.repo.SaveGalleryEvents(ctx, events); err != nil {
		return 0, err
	}
	for _, ev := range events {
		metrics.EventsSaved.WithLabelValues(ev.EventType).Inc()
	}

	slog.Debug("Block range processed", "from_block", start, "to_block", end, "events", len(events))
	return len(events), nil
}

var eventTypes = map[string]string{
	contract.EventPieceMinted:    models.EventTypeMinted,
	contract.EventPieceApplauded: models.EventTypeApplauded,
	contract.EventPieceEndorsed:  models.EventTypeEndorsed,
}

func toModel(chainID uint64, addr common.Address, ev *contract.Event) models.GalleryEvent {
	return models.GalleryEvent{
		ChainID:     chainID,
		Contract:    addr.Hex(),
		EventType:   eventTypes[ev.Name],
		PieceID:     ev.PieceID,
		Account:     ev.Account.Hex(),
		Title:       ev.Title,
		Category:    string(ev.Category),
		TxHash:      ev.TxHash.Hex(),
		BlockNumber: ev.BlockNumber,
		LogIndex:    ev.LogIndex,
		IndexedAt:   time.Now().UTC(),
	}
}
