package fhe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Mock coprocessor methods exposed by a local development node
const (
	MethodRelayerMetadata = "fhevm_relayer_metadata"
	MethodUserDecrypt     = "fhevm_userDecrypt"
)

// MockInstance decrypts through a development node running the FHEVM mock
type MockInstance struct {
	client  *rpc.Client
	chainID uint64
}

// NewMockInstance dials url and probes the mock coprocessor metadata
func NewMockInstance(ctx context.Context, url string, chainID uint64) (*MockInstance, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial mock node %s: %w", url, classifyRPCError(err))
	}

	var meta json.RawMessage
	if err := client.CallContext(ctx, &meta, MethodRelayerMetadata); err != nil {
		client.Close()
		return nil, fmt.Errorf("node at %s is not an FHEVM mock: %w", url, classifyRPCError(err))
	}

	return &MockInstance{client: client, chainID: chainID}, nil
}

func (m *MockInstance) ChainID() uint64 {
	return m.chainID
}

func (m *MockInstance) Decrypt(ctx context.Context, req DecryptRequest) (*big.Int, error) {
	var out hexutil.Big
	if err := m.client.CallContext(ctx, &out, MethodUserDecrypt, req.Handle.Hex(), req.Contract, req.User); err != nil {
		return nil, fmt.Errorf("mock decrypt of %s failed: %w", req.Handle.Hex(), classifyRPCError(err))
	}
	return (*big.Int)(&out), nil
}

// Close releases the node connection
func (m *MockInstance) Close() error {
	m.client.Close()
	return nil
}

// classifyRPCError separates authorization refusals from transport failures.
// Other JSON-RPC errors are returned unchanged.
func classifyRPCError(err error) error {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %v", ErrNotAuthorized, err)
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if isAuthorizationMessage(rpcErr.Error()) {
			return fmt.Errorf("%w: %v", ErrNotAuthorized, err)
		}
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func isAuthorizationMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, pattern := range []string{
		"not authorized",
		"unauthorized",
		"not allowed",
		"permission denied",
		"no permission",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
