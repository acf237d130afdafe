package indexer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/contract/contracttest"
	"auroraexhibit/internal/models"
	"auroraexhibit/internal/retry"
	"auroraexhibit/internal/signer"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// flakyReader fails the first failures calls of each method
type flakyReader struct {
	*contracttest.Chain
	failures    int32
	blockCalls  atomic.Int32
	filterCalls atomic.Int32
}

func (r *flakyReader) BlockNumber(ctx context.Context) (uint64, error) {
	if r.blockCalls.Add(1) <= r.failures {
		return 0, errors.New("503 Service Unavailable")
	}
	return r.Chain.BlockNumber(ctx)
}

func (r *flakyReader) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if r.filterCalls.Add(1) <= r.failures {
		return nil, errors.New("503 Service Unavailable")
	}
	return r.Chain.FilterLogs(ctx, q)
}

// newActiveChain has four events at blocks 1 to 4: two mints, an applause and an endorsement
func newActiveChain(t *testing.T) *contracttest.Chain {
	t.Helper()

	chain := contracttest.NewChain(31337)
	artist := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	first := chain.Seed(artist, contract.MintRequest{Title: "first", Categories: []contract.Category{contract.CategoryDigital}})
	second := chain.Seed(artist, contract.MintRequest{Title: "second", Categories: []contract.Category{contract.CategoryAbstract}})

	s, err := signer.NewKeySigner("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	adapter := contract.NewAdapter(chain, 31337, chain.Table(), s)
	require.NoError(t, adapter.Applaud(context.Background(), first))
	require.NoError(t, adapter.Endorse(context.Background(), second, contract.CategoryAbstract))
	return chain
}

func testConfig(chain *contracttest.Chain) Config {
	return Config{
		ChainID:      31337,
		Contract:     chain.Address,
		BatchSize:    1000,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestSyncOnce_StoresEventsAndCheckpoints(t *testing.T) {
	chain := newActiveChain(t)
	repo := NewMemoryRepository()
	w := NewWatcher(chain, repo, nil, testConfig(chain))

	n, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	last, err := repo.GetLastProcessedBlock(context.Background(), 31337, chain.Address.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), last)

	events, err := repo.ListGalleryEvents(context.Background(), models.EventFilter{ChainID: 31337})
	require.NoError(t, err)
	require.Len(t, events, 4)

	// newest first
	assert.Equal(t, models.EventTypeEndorsed, events[0].EventType)
	assert.Equal(t, uint64(2), events[0].PieceID)
	assert.Equal(t, string(contract.CategoryAbstract), events[0].Category)
	assert.Equal(t, models.EventTypeApplauded, events[1].EventType)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", events[1].Account)
	assert.Equal(t, models.EventTypeMinted, events[3].EventType)
	assert.Equal(t, "first", events[3].Title)

	n, err = w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncOnce_BatchesAndStartBlock(t *testing.T) {
	chain := newActiveChain(t)
	reader := &flakyReader{Chain: chain}
	repo := NewMemoryRepository()

	cfg := testConfig(chain)
	cfg.BatchSize = 1
	cfg.StartBlock = 3
	w := NewWatcher(reader, repo, nil, cfg)

	n, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 2, reader.filterCalls.Load())

	minted, err := repo.ListGalleryEvents(context.Background(), models.EventFilter{EventType: models.EventTypeMinted})
	require.NoError(t, err)
	assert.Empty(t, minted)
}

func TestSyncOnce_RetriesTransientFailures(t *testing.T) {
	chain := newActiveChain(t)
	reader := &flakyReader{Chain: chain, failures: 2}
	repo := NewMemoryRepository()
	strategy := retry.NewExponentialBackoffStrategy(3, time.Millisecond, time.Millisecond)

	w := NewWatcher(reader, repo, strategy, testConfig(chain))
	n, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.EqualValues(t, 3, reader.blockCalls.Load())

	reader = &flakyReader{Chain: chain, failures: 1}
	w = NewWatcher(reader, NewMemoryRepository(), retry.NewNoRetryStrategy(), testConfig(chain))
	_, err = w.SyncOnce(context.Background())
	assert.ErrorContains(t, err, "503")
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	chain := newActiveChain(t)
	repo := NewMemoryRepository()
	w := NewWatcher(chain, repo, nil, testConfig(chain))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		events, _ := repo.ListGalleryEvents(context.Background(), models.EventFilter{})
		return len(events) == 4
	}, time.Second, 5*time.Millisecond)

	// new activity is picked up on a later tick
	chain.Seed(common.Address{}, contract.MintRequest{Title: "third", Categories: []contract.Category{contract.CategoryDigital}})
	require.Eventually(t, func() bool {
		events, _ := repo.ListGalleryEvents(context.Background(), models.EventFilter{})
		return len(events) == 5
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestMemoryRepository_FilterAndPage(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	pieceOne := uint64(1)

	events := []models.GalleryEvent{
		{ChainID: 1, EventType: models.EventTypeMinted, PieceID: 1, Account: "0xAA", TxHash: "0x01", BlockNumber: 10},
		{ChainID: 1, EventType: models.EventTypeApplauded, PieceID: 1, Account: "0xbb", TxHash: "0x02", BlockNumber: 11},
		{ChainID: 1, EventType: models.EventTypeApplauded, PieceID: 2, Account: "0xBB", TxHash: "0x03", BlockNumber: 12},
	}
	require.NoError(t, repo.SaveGalleryEvents(ctx, events))
	require.NoError(t, repo.SaveGalleryEvents(ctx, events[:1]))

	all, err := repo.ListGalleryEvents(ctx, models.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byPiece, err := repo.ListGalleryEvents(ctx, models.EventFilter{PieceID: &pieceOne})
	require.NoError(t, err)
	assert.Len(t, byPiece, 2)

	byAccount, err := repo.ListGalleryEvents(ctx, models.EventFilter{Account: "0xbB"})
	require.NoError(t, err)
	assert.Len(t, byAccount, 2)

	page, err := repo.ListGalleryEvents(ctx, models.EventFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "0x02", page[0].TxHash)

	empty, err := repo.ListGalleryEvents(ctx, models.EventFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
