package provider

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// walletError carries an EIP-1193 error code across the RPC boundary
type walletError struct {
	code int
	msg  string
}

func (e *walletError) Error() string  { return e.msg }
func (e *walletError) ErrorCode() int { return e.code }

// fakeWallet mimics an injected wallet: it knows a set of chains and records every call
type fakeWallet struct {
	mu       sync.Mutex
	chainID  uint64
	known    map[uint64]bool
	calls    []string
	rejectUI bool
	accounts []common.Address
}

func (w *fakeWallet) record(method string) {
	w.mu.Lock()
	w.calls = append(w.calls, method)
	w.mu.Unlock()
}

func (w *fakeWallet) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

type ethAPI struct{ w *fakeWallet }

func (e *ethAPI) ChainId() hexutil.Uint64 {
	e.w.record(MethodChainID)
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	return hexutil.Uint64(e.w.chainID)
}

func (e *ethAPI) RequestAccounts() ([]common.Address, error) {
	e.w.record(MethodRequestAccounts)
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	if e.w.rejectUI {
		return nil, &walletError{code: CodeUserRejected, msg: "User rejected the request."}
	}
	return e.w.accounts, nil
}

type walletAPI struct{ w *fakeWallet }

func (a *walletAPI) SwitchEthereumChain(p SwitchParams) error {
	a.w.record(MethodSwitchChain)
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	if a.w.rejectUI {
		return &walletError{code: CodeUserRejected, msg: "User rejected the request."}
	}
	if !a.w.known[uint64(p.ChainID)] {
		return &walletError{code: CodeUnknownChain, msg: fmt.Sprintf("Unrecognized chain ID %s", p.ChainID)}
	}
	a.w.chainID = uint64(p.ChainID)
	return nil
}

func (a *walletAPI) AddEthereumChain(p NetworkParams) error {
	a.w.record(MethodAddChain)
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	a.w.known[uint64(p.ChainID)] = true
	return nil
}

func newWalletProvider(t *testing.T, w *fakeWallet) *RPCProvider {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &ethAPI{w: w}))
	require.NoError(t, srv.RegisterName("wallet", &walletAPI{w: w}))
	client := rpc.DialInProc(srv)
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return NewRPCProvider(client)
}

func TestDetect_FindsProviderAfterPolling(t *testing.T) {
	w := &fakeWallet{chainID: 31337, known: map[uint64]bool{31337: true}}
	p := newWalletProvider(t, w)

	var attempts atomic.Int32
	locate := func(ctx context.Context) (Provider, error) {
		if attempts.Add(1) < 3 {
			return nil, nil
		}
		return p, nil
	}

	n := NewNegotiator(locate, 5*time.Millisecond, time.Second)
	require.NoError(t, n.Detect(context.Background()))

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, StateConnected, n.State())
	assert.Equal(t, uint64(31337), n.ChainID())
	assert.Equal(t, []string{MethodChainID}, w.Calls(), "chain id is read exactly once on detection")
}

func TestDetect_TimeoutStopsPolling(t *testing.T) {
	defer goleak.VerifyNone(t)

	var attempts atomic.Int32
	locate := func(ctx context.Context) (Provider, error) {
		attempts.Add(1)
		return nil, fmt.Errorf("dial tcp: connection refused")
	}

	n := NewNegotiator(locate, 5*time.Millisecond, 40*time.Millisecond)
	err := n.Detect(context.Background())

	require.ErrorIs(t, err, ErrNoProvider)
	assert.Equal(t, StateDisconnected, n.State())
	assert.Nil(t, n.Provider())
	assert.Zero(t, n.ChainID())

	seen := attempts.Load()
	assert.GreaterOrEqual(t, seen, int32(2))

	// no background work survives the timeout
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, seen, attempts.Load())
}

func TestDetect_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewNegotiator(func(ctx context.Context) (Provider, error) { return nil, nil }, time.Millisecond, time.Second)
	err := n.Detect(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateDisconnected, n.State())
}

func TestSwitchNetwork_AddsUnknownChainThenRetries(t *testing.T) {
	w := &fakeWallet{chainID: 31337, known: map[uint64]bool{31337: true}}
	p := newWalletProvider(t, w)

	n := NewNegotiator(func(ctx context.Context) (Provider, error) { return p, nil }, time.Millisecond, time.Second)
	require.NoError(t, n.Detect(context.Background()))

	id, err := n.SwitchNetwork(context.Background(), Sepolia)
	require.NoError(t, err)
	assert.Equal(t, Sepolia.ID(), id)
	assert.Equal(t, Sepolia.ID(), n.ChainID())

	assert.Equal(t, []string{
		MethodChainID,     // detection
		MethodSwitchChain, // rejected with 4902
		MethodAddChain,
		MethodSwitchChain,
		MethodChainID, // final refresh
	}, w.Calls())
}

func TestSwitchNetwork_KnownChainSwitchesDirectly(t *testing.T) {
	w := &fakeWallet{chainID: 31337, known: map[uint64]bool{31337: true, 11155111: true}}
	p := newWalletProvider(t, w)

	n := NewNegotiator(func(ctx context.Context) (Provider, error) { return p, nil }, time.Millisecond, time.Second)
	require.NoError(t, n.Detect(context.Background()))

	_, err := n.SwitchNetwork(context.Background(), Sepolia)
	require.NoError(t, err)
	assert.NotContains(t, w.Calls(), MethodAddChain)
}

func TestSwitchNetwork_UserRejects(t *testing.T) {
	w := &fakeWallet{chainID: 31337, known: map[uint64]bool{31337: true}, rejectUI: true}
	p := newWalletProvider(t, w)

	n := NewNegotiator(func(ctx context.Context) (Provider, error) { return p, nil }, time.Millisecond, time.Second)
	require.NoError(t, n.Detect(context.Background()))

	id, err := n.SwitchNetwork(context.Background(), Sepolia)
	require.ErrorIs(t, err, ErrUserRejected)
	assert.Equal(t, uint64(31337), id, "chain id is still refreshed after a failed switch")
	assert.NotContains(t, w.Calls(), MethodAddChain)
}

func TestSwitchNetwork_NoProvider(t *testing.T) {
	n := NewNegotiator(func(ctx context.Context) (Provider, error) { return nil, nil }, time.Millisecond, time.Second)
	_, err := n.SwitchNetwork(context.Background(), Sepolia)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestConnect(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	w := &fakeWallet{chainID: 31337, known: map[uint64]bool{31337: true}, accounts: []common.Address{account}}
	p := newWalletProvider(t, w)

	n := NewNegotiator(func(ctx context.Context) (Provider, error) { return p, nil }, time.Millisecond, time.Second)
	require.NoError(t, n.Detect(context.Background()))

	accounts, err := n.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{account}, accounts)

	w.mu.Lock()
	w.rejectUI = true
	w.mu.Unlock()
	_, err = n.Connect(context.Background())
	assert.ErrorIs(t, err, ErrUserRejected)
}

func TestKnownNetwork(t *testing.T) {
	params, ok := KnownNetwork(11155111)
	require.True(t, ok)
	assert.Equal(t, "Sepolia", params.ChainName)
	assert.Equal(t, "0xaa36a7", params.ChainID.String())

	_, ok = KnownNetwork(1)
	assert.False(t, ok)
}
