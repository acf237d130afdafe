// Package session keeps per-user gallery UI state in memory.
package session

import (
	"math/big"
	"sync"
	"time"

	"auroraexhibit/internal/contract"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MintForm is the mint draft as entered by the user
type MintForm struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	FileRef     string              `json:"fileRef"`
	Tags        string              `json:"tags"`
	Categories  []contract.Category `json:"categories"`
}

// IsZero reports whether the form is empty
func (f MintForm) IsZero() bool {
	return f.Title == "" && f.Description == "" && f.FileRef == "" && f.Tags == "" && len(f.Categories) == 0
}

type tallyKey struct {
	pieceID  uint64
	category contract.Category
}

// Session is one user's view of the gallery.
// The liked and endorsed flags are advisory: they only reflect actions confirmed in this session.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	liked    map[uint64]bool
	endorsed map[uint64]bool
	pending  map[uint64]int
	items    []contract.Piece
	draft    MintForm
	message  string
	likes    *lru.Cache[uint64, *big.Int]
	tallies  *lru.Cache[tallyKey, *big.Int]
}

func newSession(id string, cacheSize int) *Session {
	likes, err := lru.New[uint64, *big.Int](cacheSize)
	if err != nil {
		panic(err)
	}
	tallies, err := lru.New[tallyKey, *big.Int](cacheSize)
	if err != nil {
		panic(err)
	}
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		liked:     make(map[uint64]bool),
		endorsed:  make(map[uint64]bool),
		pending:   make(map[uint64]int),
		likes:     likes,
		tallies:   tallies,
	}
}

func (s *Session) Liked(pieceID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liked[pieceID]
}

func (s *Session) MarkLiked(pieceID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liked[pieceID] = true
}

func (s *Session) Endorsed(pieceID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endorsed[pieceID]
}

func (s *Session) MarkEndorsed(pieceID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endorsed[pieceID] = true
}

// BeginPending counts one in-flight action on a piece. Concurrent actions are not deduplicated.
func (s *Session) BeginPending(pieceID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[pieceID]++
}

// EndPending releases one in-flight action
func (s *Session) EndPending(pieceID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[pieceID] <= 1 {
		delete(s.pending, pieceID)
		return
	}
	s.pending[pieceID]--
}

// Pending returns the number of in-flight actions on a piece
func (s *Session) Pending(pieceID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[pieceID]
}

// SetItems replaces the refreshed gallery items
func (s *Session) SetItems(items []contract.Piece) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

// Items returns a copy of the last refreshed items
func (s *Session) Items() []contract.Piece {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contract.Piece, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Session) Draft() MintForm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *Session) SetDraft(f MintForm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = f
}

func (s *Session) ClearDraft() {
	s.SetDraft(MintForm{})
}

// Message is the last user-facing status line
func (s *Session) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

func (s *Session) SetMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = msg
}

// CachedLikes returns a previously decrypted like count
func (s *Session) CachedLikes(pieceID uint64) (*big.Int, bool) {
	return s.likes.Get(pieceID)
}

func (s *Session) CacheLikes(pieceID uint64, v *big.Int) {
	s.likes.Add(pieceID, v)
}

// ForgetLikes drops a cached like count that a new applause made stale
func (s *Session) ForgetLikes(pieceID uint64) {
	s.likes.Remove(pieceID)
}

// CachedTally returns a previously decrypted vote count
func (s *Session) CachedTally(pieceID uint64, category contract.Category) (*big.Int, bool) {
	return s.tallies.Get(tallyKey{pieceID, category})
}

func (s *Session) CacheTally(pieceID uint64, category contract.Category, v *big.Int) {
	s.tallies.Add(tallyKey{pieceID, category}, v)
}

func (s *Session) ForgetTally(pieceID uint64, category contract.Category) {
	s.tallies.Remove(tallyKey{pieceID, category})
}

// ResetChain drops everything tied to the previous chain: items, flags and decrypted values.
// The mint draft survives.
func (s *Session) ResetChain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.liked = make(map[uint64]bool)
	s.endorsed = make(map[uint64]bool)
	s.likes.Purge()
	s.tallies.Purge()
}
