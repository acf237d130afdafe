package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/contract/contracttest"
	"auroraexhibit/internal/fhe"
	"auroraexhibit/internal/gallery"
	"auroraexhibit/internal/indexer"
	"auroraexhibit/internal/models"
	"auroraexhibit/internal/provider"
	"auroraexhibit/internal/session"
	"auroraexhibit/internal/signer"
	"auroraexhibit/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hardhatWallet is a provider pinned to chain 31337 that refuses to switch
type hardhatWallet struct{ mu sync.Mutex }

type rejected struct{}

func (rejected) Error() string  { return "user rejected" }
func (rejected) ErrorCode() int { return provider.CodeUserRejected }

func (w *hardhatWallet) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch method {
	case provider.MethodChainID:
		*result.(*hexutil.Uint64) = 31337
	case provider.MethodRequestAccounts:
		*result.(*[]common.Address) = []common.Address{common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")}
	default:
		return rejected{}
	}
	return nil
}

func (w *hardhatWallet) Close() {}

type clearInstance struct{ chain *contracttest.Chain }

func (c clearInstance) ChainID() uint64 { return 31337 }

func (c clearInstance) Decrypt(ctx context.Context, req fhe.DecryptRequest) (*big.Int, error) {
	v, _ := c.chain.ClearValue(req.Handle)
	return new(big.Int).SetUint64(v), nil
}

type testEnv struct {
	chain    *contracttest.Chain
	sessions *session.Store
	handler  http.Handler
}

func newTestEnv(t *testing.T, repo storage.Repository) *testEnv {
	t.Helper()
	return newTestEnvWithSessions(t, repo, session.StoreConfig{CacheSize: 16})
}

func newTestEnvWithSessions(t *testing.T, repo storage.Repository, cfg session.StoreConfig) *testEnv {
	t.Helper()

	chain := contracttest.NewChain(31337)
	s, err := signer.NewKeySigner("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)

	wallet := &hardhatWallet{}
	negotiator := provider.NewNegotiator(func(ctx context.Context) (provider.Provider, error) {
		return wallet, nil
	}, time.Millisecond, 100*time.Millisecond)

	sessions := session.NewStore(cfg)
	svc := gallery.NewService(negotiator, sessions, gallery.Options{
		TargetChainID: 31337,
		Addresses:     chain.Table(),
		Signer:        s,
		NewBackend: func(p provider.Provider) (contract.Backend, error) {
			return chain, nil
		},
		NewInstance: func(ctx context.Context, p provider.Provider, chainID uint64) (fhe.Instance, error) {
			return clearInstance{chain: chain}, nil
		},
	})
	require.NoError(t, svc.Start(context.Background()))

	return &testEnv{chain: chain, sessions: sessions, handler: NewServer(0, svc, repo).Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, sessionID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AuroraExhibit")

	rec = env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[models.HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, string(fhe.StatusReady), health.FHE)
	assert.Empty(t, health.Database)

	rec = env.do(t, http.MethodGet, "/network", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[gallery.NetworkStatus](t, rec)
	assert.Equal(t, uint64(31337), status.ChainID)
	assert.True(t, status.CanAct)
}

func TestSessionHeaderIsIssuedAndReused(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/pieces", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(SessionHeader)
	require.NotEmpty(t, id)

	rec = env.do(t, http.MethodGet, "/pieces", id, nil)
	assert.Equal(t, id, rec.Header().Get(SessionHeader))

	rec = env.do(t, http.MethodGet, "/pieces", "unknown", nil)
	assert.NotEqual(t, "unknown", rec.Header().Get(SessionHeader))
}

func TestHeaderlessRequestsDoNotGrowSessions(t *testing.T) {
	env := newTestEnvWithSessions(t, nil, session.StoreConfig{CacheSize: 2, MaxSessions: 50})

	for i := 0; i < 5000; i++ {
		rec := env.do(t, http.MethodGet, "/draft", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 50, env.sessions.Len())
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/draft/example", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sid := rec.Header().Get(SessionHeader)

	rec = env.do(t, http.MethodDelete, "/session", sid, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, env.sessions.Len())

	rec = env.do(t, http.MethodDelete, "/session", sid, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodDelete, "/session", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the old id no longer carries the draft
	rec = env.do(t, http.MethodGet, "/draft", sid, nil)
	assert.NotEqual(t, sid, rec.Header().Get(SessionHeader))
	assert.True(t, decode[session.MintForm](t, rec).IsZero())
}

func TestMintApplaudDecryptFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/pieces", "", map[string]interface{}{
		"title":      "Northern Lights",
		"fileRef":    "ipfs://QmExampleFileHash456",
		"tags":       "night, sky",
		"categories": []string{"best-photography"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sid := rec.Header().Get(SessionHeader)
	minted := decode[models.TxResponse](t, rec)
	assert.Equal(t, uint64(1), minted.PieceID)
	assert.Contains(t, minted.Message, "#1")

	rec = env.do(t, http.MethodPost, "/pieces/1/applaud", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/pieces/1/applaud", sid, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(gallery.KindValidation), decode[models.ErrorResponse](t, rec).Kind)

	rec = env.do(t, http.MethodPost, "/pieces/1/decrypt", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", decode[models.DecryptResponse](t, rec).Value)

	rec = env.do(t, http.MethodGet, "/pieces", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[models.PieceListResponse](t, rec)
	require.Len(t, list.Pieces, 1)
	piece := list.Pieces[0]
	assert.Equal(t, "Northern Lights", piece.Title)
	assert.True(t, piece.Liked)
	require.NotNil(t, piece.Likes)
	assert.Equal(t, "1", *piece.Likes)
	assert.Equal(t, []string{"night", "sky"}, piece.Tags)
}

func TestEndorseAndTally(t *testing.T) {
	env := newTestEnv(t, nil)
	env.chain.Seed(common.Address{}, contract.MintRequest{Title: "seeded", Categories: []contract.Category{contract.CategoryDigital}})

	rec := env.do(t, http.MethodPost, "/pieces/1/endorse", "", map[string]string{"category": "best-digital"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sid := rec.Header().Get(SessionHeader)

	rec = env.do(t, http.MethodPost, "/pieces/1/tally/best-digital/decrypt", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tally := decode[models.DecryptResponse](t, rec)
	assert.Equal(t, "1", tally.Value)
	assert.Equal(t, "best-digital", tally.Category)

	rec = env.do(t, http.MethodPost, "/pieces/1/tally/best-sculpture/decrypt", sid, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		code   int
		kind   gallery.Kind
	}{
		{"invalid id", http.MethodGet, "/pieces/abc", nil, http.StatusBadRequest, ""},
		{"unknown piece", http.MethodGet, "/pieces/99", nil, http.StatusNotFound, gallery.KindNotFound},
		{"piece zero is looked up", http.MethodGet, "/pieces/0", nil, http.StatusNotFound, gallery.KindNotFound},
		{"applaud unknown piece", http.MethodPost, "/pieces/99/applaud", nil, http.StatusBadGateway, gallery.KindTransaction},
		{"invalid mint", http.MethodPost, "/pieces", map[string]string{"title": "x"}, http.StatusBadRequest, gallery.KindValidation},
		{"unknown route", http.MethodPost, "/pieces/1/frame", nil, http.StatusNotFound, ""},
		{"wrong method", http.MethodDelete, "/pieces", nil, http.StatusMethodNotAllowed, ""},
		{"switch to unknown chain", http.MethodPost, "/network/switch", map[string]uint64{"chainId": 5}, http.StatusConflict, gallery.KindNetworkMismatch},
		{"switch rejected", http.MethodPost, "/network/switch", map[string]uint64{"chainId": 11155111}, http.StatusConflict, gallery.KindNetworkMismatch},
		{"activity disabled", http.MethodGet, "/activity", nil, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, "", tt.body)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			resp := decode[models.ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, string(tt.kind), resp.Kind)
		})
	}
}

func TestDraftExample(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/draft/example", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sid := rec.Header().Get(SessionHeader)

	rec = env.do(t, http.MethodGet, "/draft", sid, nil)
	draft := decode[gallery.MintForm](t, rec)
	assert.Equal(t, "Moonlit Mystery", draft.Title)

	rec = env.do(t, http.MethodPost, "/pieces", sid, map[string]bool{"demo": true})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/draft", sid, nil)
	assert.Equal(t, "Moonlit Mystery", decode[gallery.MintForm](t, rec).Title)
}

func TestActivity(t *testing.T) {
	repo := indexer.NewMemoryRepository()
	env := newTestEnv(t, repo)
	require.NoError(t, repo.SaveGalleryEvents(context.Background(), []models.GalleryEvent{
		{ChainID: 31337, EventType: models.EventTypeMinted, PieceID: 1, TxHash: "0x01", BlockNumber: 1},
		{ChainID: 31337, EventType: models.EventTypeApplauded, PieceID: 1, TxHash: "0x02", BlockNumber: 2},
		{ChainID: 1, EventType: models.EventTypeApplauded, PieceID: 1, TxHash: "0x03", BlockNumber: 3},
	}))

	rec := env.do(t, http.MethodGet, "/activity?piece=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	activity := decode[models.ActivityResponse](t, rec)
	assert.Equal(t, 2, activity.Total)
	assert.Equal(t, "0x02", activity.Events[0].TxHash)

	rec = env.do(t, http.MethodGet, "/activity?type=minted", "", nil)
	assert.Equal(t, 1, decode[models.ActivityResponse](t, rec).Total)

	rec = env.do(t, http.MethodGet, "/activity?type=burned", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "ok", decode[models.HealthResponse](t, rec).Database)
}
