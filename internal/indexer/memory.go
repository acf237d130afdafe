package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"auroraexhibit/internal/models"
)

// MemoryRepository keeps events in process. It backs the watcher when no
// database is configured and in tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	events      []models.GalleryEvent
	seen        map[string]bool
	checkpoints map[string]uint64
}

// NewMemoryRepository creates an empty MemoryRepository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		seen:        make(map[string]bool),
		checkpoints: make(map[string]uint64),
	}
}

func eventKey(e models.GalleryEvent) string {
	return fmt.Sprintf("%d:%s:%d", e.ChainID, e.TxHash, e.LogIndex)
}

// SaveGalleryEvents stores events, skipping ones already stored
func (r *MemoryRepository) SaveGalleryEvents(ctx context.Context, events []models.GalleryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		key := eventKey(e)
		if r.seen[key] {
			continue
		}
		r.seen[key] = true
		r.events = append(r.events, e)
	}
	return nil
}

// ListGalleryEvents lists events matching filter, newest first
func (r *MemoryRepository) ListGalleryEvents(ctx context.Context, filter models.EventFilter) ([]models.GalleryEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.GalleryEvent{}
	for _, e := range r.events {
		if filter.ChainID != 0 && e.ChainID != filter.ChainID {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.PieceID != nil && e.PieceID != *filter.PieceID {
			continue
		}
		if filter.Account != "" && !strings.EqualFold(e.Account, filter.Account) {
			continue
		}
		if e.BlockNumber < filter.FromBlock {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].LogIndex > out[j].LogIndex
	})

	if filter.Offset >= len(out) {
		return []models.GalleryEvent{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetLastProcessedBlock returns the checkpoint (0 if none)
func (r *MemoryRepository) GetLastProcessedBlock(ctx context.Context, chainID uint64, contract string) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkpoints[checkpointKey(chainID, contract)], nil
}

// SaveLastProcessedBlock records indexing progress
func (r *MemoryRepository) SaveLastProcessedBlock(ctx context.Context, chainID uint64, contract string, block uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints[checkpointKey(chainID, contract)] = block
	return nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }

func checkpointKey(chainID uint64, contract string) string {
	return fmt.Sprintf("%d:%s", chainID, contract)
}
