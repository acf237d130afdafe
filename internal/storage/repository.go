package storage

import (
	"context"

	"auroraexhibit/internal/models"
)

// Repository defines the interface for all storage operations
type Repository interface {
	// Gallery Events
	SaveGalleryEvents(ctx context.Context, events []models.GalleryEvent) error
	ListGalleryEvents(ctx context.Context, filter models.EventFilter) ([]models.GalleryEvent, error)

	// Checkpoints
	GetLastProcessedBlock(ctx context.Context, chainID uint64, contract string) (uint64, error)
	SaveLastProcessedBlock(ctx context.Context, chainID uint64, contract string, block uint64) error

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}
