package session

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"auroraexhibit/internal/contract"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetOrCreate(t *testing.T) {
	store := NewStore(StoreConfig{CacheSize: 4})

	sess, created := store.GetOrCreate("")
	require.True(t, created)
	_, err := uuid.Parse(sess.ID)
	require.NoError(t, err)

	again, created := store.GetOrCreate(sess.ID)
	assert.False(t, created)
	assert.Same(t, sess, again)

	other, created := store.GetOrCreate("unknown")
	assert.True(t, created)
	assert.NotEqual(t, sess.ID, other.ID)
	assert.Equal(t, 2, store.Len())

	assert.True(t, store.Delete(sess.ID))
	assert.False(t, store.Delete(sess.ID))
	_, ok := store.Get(sess.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestSession_PendingIsNotDeduplicated(t *testing.T) {
	sess := NewStore(StoreConfig{CacheSize: 4}).New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.BeginPending(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, sess.Pending(1))

	for i := 0; i < 10; i++ {
		sess.EndPending(1)
	}
	assert.Zero(t, sess.Pending(1))
	sess.EndPending(1)
	assert.Zero(t, sess.Pending(1))
}

func TestSession_CacheIsBounded(t *testing.T) {
	sess := NewStore(StoreConfig{CacheSize: 2}).New()

	sess.CacheLikes(1, big.NewInt(1))
	sess.CacheLikes(2, big.NewInt(2))
	sess.CacheLikes(3, big.NewInt(3))

	_, ok := sess.CachedLikes(1)
	assert.False(t, ok)
	v, ok := sess.CachedLikes(3)
	require.True(t, ok)
	assert.Equal(t, int64(3), v.Int64())

	sess.CacheTally(3, contract.CategoryAbstract, big.NewInt(5))
	_, ok = sess.CachedTally(3, contract.CategoryDigital)
	assert.False(t, ok)
	v, ok = sess.CachedTally(3, contract.CategoryAbstract)
	require.True(t, ok)
	assert.Equal(t, int64(5), v.Int64())
}

func TestSession_ResetChainKeepsDraft(t *testing.T) {
	store := NewStore(StoreConfig{CacheSize: 4})
	sess := store.New()

	sess.MarkLiked(1)
	sess.MarkEndorsed(1)
	sess.CacheLikes(1, big.NewInt(3))
	sess.SetItems([]contract.Piece{{ID: 1, Title: "a"}})
	sess.SetDraft(MintForm{Title: "draft"})

	store.ResetChain()

	assert.False(t, sess.Liked(1))
	assert.False(t, sess.Endorsed(1))
	_, ok := sess.CachedLikes(1)
	assert.False(t, ok)
	assert.Empty(t, sess.Items())
	assert.Equal(t, "draft", sess.Draft().Title)
}

func TestMintForm_IsZero(t *testing.T) {
	assert.True(t, MintForm{}.IsZero())
	assert.False(t, MintForm{Tags: "moon"}.IsZero())
}

func TestStore_DropsLeastRecentlyUsedBeyondCap(t *testing.T) {
	store := NewStore(StoreConfig{CacheSize: 2, MaxSessions: 3})

	first := store.New()
	second := store.New()
	store.New()

	// touching first makes second the oldest
	_, ok := store.Get(first.ID)
	require.True(t, ok)

	for i := 0; i < 100; i++ {
		store.GetOrCreate("")
	}
	assert.Equal(t, 3, store.Len())

	_, ok = store.Get(second.ID)
	assert.False(t, ok)
}

func TestStore_IdleSessionsExpire(t *testing.T) {
	store := NewStore(StoreConfig{IdleTTL: 200 * time.Millisecond})

	idle := store.New()
	busy := store.New()

	require.Eventually(t, func() bool {
		// keep busy alive while idle ages out
		_, ok := store.Get(busy.ID)
		require.True(t, ok)
		_, ok = store.Get(idle.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	sess, created := store.GetOrCreate(idle.ID)
	assert.True(t, created)
	assert.NotEqual(t, idle.ID, sess.ID)

	require.Eventually(t, func() bool { return store.Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	store.ResetChain()
}
