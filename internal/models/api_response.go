package models

import (
	"time"
)

// PieceResponse represents a piece with the caller's session state
type PieceResponse struct {
	ID              uint64    `json:"id"`
	Artist          string    `json:"artist"`
	Title           string    `json:"title"`
	DescriptionHash string    `json:"description_hash,omitempty"`
	FileHash        string    `json:"file_hash,omitempty"`
	Tags            []string  `json:"tags"`
	Categories      []string  `json:"categories"`
	CreatedAt       time.Time `json:"created_at"`

	// Session state ( advisory )
	Liked    bool    `json:"liked"`
	Endorsed bool    `json:"endorsed"`
	Pending  int     `json:"pending"`
	Likes    *string `json:"likes,omitempty"` // decimal, only once decrypted
}

// PieceListResponse represents the gallery listing
type PieceListResponse struct {
	Pieces  []PieceResponse `json:"pieces"`
	Total   int             `json:"total"`
	Message string          `json:"message,omitempty"`
}

// TxResponse represents a confirmed transaction
type TxResponse struct {
	TxHash  string `json:"tx_hash"`
	PieceID uint64 `json:"piece_id"`
	Message string `json:"message,omitempty"`
}

// DecryptResponse represents a decrypted counter
type DecryptResponse struct {
	PieceID  uint64 `json:"piece_id"`
	Category string `json:"category,omitempty"`
	Value    string `json:"value"`
}

// ActivityResponse represents a page of indexed events
type ActivityResponse struct {
	Events []GalleryEvent `json:"events"`
	Total  int            `json:"total"`
}

// HealthResponse represents the service health
type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	FHE      string `json:"fhe"`
	Database string `json:"database,omitempty"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  int    `json:"code"`
}
