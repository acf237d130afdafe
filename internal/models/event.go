package models

import "time"

// Gallery event types
const (
	EventTypeMinted    = "minted"
	EventTypeApplauded = "applauded"
	EventTypeEndorsed  = "endorsed"
)

// GalleryEvent represents a decoded gallery contract log
type GalleryEvent struct {
	// Identification
	ChainID   uint64 `json:"chain_id"`
	Contract  string `json:"contract"`
	EventType string `json:"event_type"`

	// Event data
	PieceID  uint64 `json:"piece_id"`
	Account  string `json:"account"`            // artist, liker or voter
	Title    string `json:"title,omitempty"`    // minted only
	Category string `json:"category,omitempty"` // endorsed only

	// Transaction context
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint      `json:"log_index"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// EventFilter provides criteria for filtering events
type EventFilter struct {
	ChainID   uint64
	EventType string
	PieceID   *uint64
	Account   string
	FromBlock uint64
	Limit     int
	Offset    int
}
