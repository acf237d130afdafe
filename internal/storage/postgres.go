package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"auroraexhibit/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS gallery_events (
	chain_id     BIGINT      NOT NULL,
	contract     TEXT        NOT NULL,
	event_type   TEXT        NOT NULL,
	piece_id     BIGINT      NOT NULL,
	account      TEXT        NOT NULL,
	title        TEXT        NOT NULL DEFAULT '',
	category     TEXT        NOT NULL DEFAULT '',
	tx_hash      TEXT        NOT NULL,
	block_number BIGINT      NOT NULL,
	log_index    INTEGER     NOT NULL,
	indexed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (chain_id, tx_hash, log_index)
);

CREATE INDEX IF NOT EXISTS idx_gallery_events_piece ON gallery_events (chain_id, piece_id);
CREATE INDEX IF NOT EXISTS idx_gallery_events_block ON gallery_events (chain_id, block_number DESC);

CREATE TABLE IF NOT EXISTS indexer_checkpoints (
	chain_id             BIGINT      NOT NULL,
	contract             TEXT        NOT NULL,
	last_processed_block BIGINT      NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (chain_id, contract)
);
`

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{
		pool: pool,
	}, nil
}

// EnsureSchema creates the tables if they do not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveGalleryEvents saves multiple events in a transaction. Events already stored are skipped.
func (r *PostgresRepository) SaveGalleryEvents(ctx context.Context, events []models.GalleryEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO gallery_events (
			chain_id, contract, event_type, piece_id, account,
			title, category, tx_hash, block_number, log_index
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(query,
			int64(event.ChainID),
			event.Contract,
			event.EventType,
			int64(event.PieceID),
			event.Account,
			event.Title,
			event.Category,
			event.TxHash,
			int64(event.BlockNumber),
			int32(event.LogIndex),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListGalleryEvents lists events matching filter, newest first
func (r *PostgresRepository) ListGalleryEvents(ctx context.Context, filter models.EventFilter) ([]models.GalleryEvent, error) {
	where, args := buildEventFilter(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT
			chain_id, contract, event_type, piece_id, account,
			title, category, tx_hash, block_number, log_index, indexed_at
		FROM gallery_events
		%s
		ORDER BY block_number DESC, log_index DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery events: %w", err)
	}
	defer rows.Close()

	events := []models.GalleryEvent{}

	for rows.Next() {
		var event models.GalleryEvent
		var chainID, pieceID, block int64
		var logIndex int32

		err := rows.Scan(
			&chainID,
			&event.Contract,
			&event.EventType,
			&pieceID,
			&event.Account,
			&event.Title,
			&event.Category,
			&event.TxHash,
			&block,
			&logIndex,
			&event.IndexedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.ChainID = uint64(chainID)
		event.PieceID = uint64(pieceID)
		event.BlockNumber = uint64(block)
		event.LogIndex = uint(logIndex)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// buildEventFilter returns a WHERE clause and its positional arguments
func buildEventFilter(filter models.EventFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.ChainID != 0 {
		add("chain_id = $%d", int64(filter.ChainID))
	}
	if filter.EventType != "" {
		add("event_type = $%d", filter.EventType)
	}
	if filter.PieceID != nil {
		add("piece_id = $%d", int64(*filter.PieceID))
	}
	if filter.Account != "" {
		add("LOWER(account) = LOWER($%d)", filter.Account)
	}
	if filter.FromBlock != 0 {
		add("block_number >= $%d", int64(filter.FromBlock))
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// GetLastProcessedBlock returns the checkpoint for a chain and contract (0 if none)
func (r *PostgresRepository) GetLastProcessedBlock(ctx context.Context, chainID uint64, contract string) (uint64, error) {
	query := `SELECT last_processed_block FROM indexer_checkpoints WHERE chain_id = $1 AND contract = $2`

	var block int64
	err := r.pool.QueryRow(ctx, query, int64(chainID), contract).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last processed block: %w", err)
	}

	return uint64(block), nil
}

// SaveLastProcessedBlock records indexing progress
func (r *PostgresRepository) SaveLastProcessedBlock(ctx context.Context, chainID uint64, contract string, block uint64) error {
	query := `
		INSERT INTO indexer_checkpoints (chain_id, contract, last_processed_block, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (chain_id, contract) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, int64(chainID), contract, int64(block)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// Ping checks if the database connection is alive
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
