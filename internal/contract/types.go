package contract

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Handle is an opaque 32-byte reference to an encrypted value
type Handle [32]byte

// IsZero reports whether the handle was never initialized on-chain
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// Hex returns the 0x-prefixed handle
func (h Handle) Hex() string {
	return hexutil.Encode(h[:])
}

func (h Handle) String() string {
	return h.Hex()
}

// MarshalText encodes the handle as hex
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText decodes a 0x-prefixed 32-byte hex string
func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle decodes a 0x-prefixed 32-byte hex string
func ParseHandle(s string) (Handle, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Handle{}, fmt.Errorf("invalid handle %q: %w", s, err)
	}
	if len(b) != 32 {
		return Handle{}, fmt.Errorf("invalid handle length: %d, expected 32", len(b))
	}
	var h Handle
	copy(h[:], b)
	return h, nil
}

// Category is one of the fixed endorsement categories
type Category string

const (
	CategoryPhotography  Category = "best-photography"
	CategoryDigital      Category = "best-digital"
	CategoryAbstract     Category = "best-abstract"
	CategoryContemporary Category = "best-contemporary"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryPhotography,
	CategoryDigital,
	CategoryAbstract,
	CategoryContemporary,
}

var categoryLabels = map[Category]string{
	CategoryPhotography:  "Photography",
	CategoryDigital:      "Digital Art",
	CategoryAbstract:     "Abstract",
	CategoryContemporary: "Contemporary",
}

// Valid reports whether c belongs to the enumeration
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display name, falling back to the raw id
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseCategory validates a category id
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidPiece, s)
	}
	return c, nil
}

// ParseTags splits a comma separated tag list, dropping empty entries
func ParseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Piece is the on-chain record for one artwork
type Piece struct {
	ID              uint64         `json:"id"`
	Artist          common.Address `json:"artist"`
	Title           string         `json:"title"`
	DescriptionHash string         `json:"descriptionHash"`
	FileHash        string         `json:"fileHash"`
	Tags            []string       `json:"tags"`
	Categories      []Category     `json:"categories"`
	CreatedAt       time.Time      `json:"createdAt"`
	LikesHandle     Handle         `json:"likesHandle"`
}

// MintRequest holds the arguments of mintPiece
type MintRequest struct {
	Title           string
	DescriptionHash string
	FileHash        string
	Tags            []string
	Categories      []Category
}

// ValidateMint checks a mint request before anything reaches the network
func ValidateMint(req MintRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidPiece)
	}
	if len(req.Categories) == 0 {
		return fmt.Errorf("%w: select at least one category", ErrInvalidPiece)
	}
	seen := make(map[Category]bool, len(req.Categories))
	for _, c := range req.Categories {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidPiece, c)
		}
		if seen[c] {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidPiece, c)
		}
		seen[c] = true
	}
	return nil
}

func categoryStrings(cs []Category) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
