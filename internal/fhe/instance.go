package fhe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/metrics"
	"auroraexhibit/internal/provider"
	"auroraexhibit/internal/signer"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotReady      = errors.New("FHE instance is not ready")
	ErrNotAuthorized = errors.New("not authorized to decrypt this handle")
	ErrNetwork       = errors.New("FHE network request failed")
)

// InitError is returned by Gate.Instance after a failed initialization
type InitError struct {
	ChainID uint64
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("FHE initialization failed on chain %d: %v", e.ChainID, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// DecryptRequest identifies one handle and the parties to the decryption
type DecryptRequest struct {
	Handle   contract.Handle
	Contract common.Address
	User     common.Address
}

// Instance decrypts handles for one chain
type Instance interface {
	ChainID() uint64
	Decrypt(ctx context.Context, req DecryptRequest) (*big.Int, error)
}

// Config selects and configures instances
type Config struct {
	RelayerURL string
	// Chains served by a local mock coprocessor, keyed by chain id
	MockChains        map[uint64]string
	ACLAddress        common.Address
	DecryptionAddress common.Address
	HTTPClient        *http.Client
}

// Factory creates instances per chain
type Factory struct {
	cfg    Config
	signer signer.Signer
}

// NewFactory creates a factory. s may be nil, in which case relayer
// decryption is refused as unauthorized.
func NewFactory(cfg Config, s signer.Signer) *Factory {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Factory{cfg: cfg, signer: s}
}

// Create picks the mock instance for configured mock chains and the relayer otherwise
func (f *Factory) Create(ctx context.Context, p provider.Provider, chainID uint64) (Instance, error) {
	var (
		inst Instance
		err  error
	)
	if url, ok := f.cfg.MockChains[chainID]; ok {
		slog.Info("Using mock FHE instance", "chain_id", chainID, "rpc_url", url)
		inst, err = NewMockInstance(ctx, url, chainID)
	} else {
		slog.Info("Using relayer FHE instance", "chain_id", chainID, "relayer_url", f.cfg.RelayerURL)
		inst, err = NewRelayerInstance(ctx, RelayerConfig{
			URL:               f.cfg.RelayerURL,
			ChainID:           chainID,
			DecryptionAddress: f.cfg.DecryptionAddress,
			HTTPClient:        f.cfg.HTTPClient,
		}, f.signer)
	}
	if err != nil {
		return nil, err
	}

	g := &guarded{Instance: inst}
	if f.cfg.ACLAddress != (common.Address{}) {
		g.acl = &ACL{provider: p, address: f.cfg.ACLAddress}
	}
	return g, nil
}

// guarded adds the zero-handle shortcut, the ACL pre-check and metrics
type guarded struct {
	Instance
	acl *ACL
}

// Close closes the wrapped instance when it holds a connection
func (g *guarded) Close() error {
	if c, ok := g.Instance.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (g *guarded) Decrypt(ctx context.Context, req DecryptRequest) (*big.Int, error) {
	if req.Handle.IsZero() {
		metrics.DecryptRequests.WithLabelValues("zero").Inc()
		return big.NewInt(0), nil
	}

	start := time.Now()
	v, err := g.decrypt(ctx, req)
	metrics.DecryptDuration.Observe(time.Since(start).Seconds())
	metrics.DecryptRequests.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		slog.Warn("Decrypt failed", "handle", req.Handle.Hex(), "user", req.User.Hex(), "error", err)
		return nil, err
	}
	return v, nil
}

func (g *guarded) decrypt(ctx context.Context, req DecryptRequest) (*big.Int, error) {
	if g.acl != nil {
		allowed, err := g.acl.IsAllowed(ctx, req.Handle, req.User)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s has no ACL permission for %s", ErrNotAuthorized, req.User.Hex(), req.Handle.Hex())
		}
	}
	return g.Instance.Decrypt(ctx, req)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotAuthorized):
		return "unauthorized"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "error"
	}
}
