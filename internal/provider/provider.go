// Package provider locates a wallet provider and negotiates the active network
// with it over the standard request-based wallet RPC surface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Wallet RPC methods
const (
	MethodChainID         = "eth_chainId"
	MethodRequestAccounts = "eth_requestAccounts"
	MethodSwitchChain     = "wallet_switchEthereumChain"
	MethodAddChain        = "wallet_addEthereumChain"
)

// Wallet error codes (EIP-1193 / EIP-3085)
const (
	CodeUserRejected = 4001
	CodeUnknownChain = 4902
)

var (
	ErrNoProvider   = errors.New("no wallet provider found")
	ErrUserRejected = errors.New("request rejected by user")
)

// Provider is a request-based wallet RPC endpoint
type Provider interface {
	Request(ctx context.Context, result interface{}, method string, params ...interface{}) error
	Close()
}

// RPCProvider is a Provider backed by a go-ethereum RPC client
type RPCProvider struct {
	client *rpc.Client
}

// NewRPCProvider wraps an existing RPC client
func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

// Request performs a single RPC call
func (p *RPCProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return p.client.CallContext(ctx, result, method, params...)
}

// RPC exposes the underlying client so ethclient can share the connection
func (p *RPCProvider) RPC() *rpc.Client {
	return p.client
}

// Close closes the client connection
func (p *RPCProvider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

// ReadChainID asks the provider for its active chain id
func ReadChainID(ctx context.Context, p Provider) (uint64, error) {
	var id hexutil.Uint64
	if err := p.Request(ctx, &id, MethodChainID); err != nil {
		return 0, fmt.Errorf("failed to read chain id: %w", err)
	}
	return uint64(id), nil
}

// ErrorCode extracts the wallet error code from err, if any
func ErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// IsUnknownChain reports whether the wallet rejected a switch because it does not know the chain
func IsUnknownChain(err error) bool {
	code, ok := ErrorCode(err)
	if ok && code == CodeUnknownChain {
		return true
	}
	// some wallets wrap the code inside the message of a generic error
	return err != nil && strings.Contains(err.Error(), "Unrecognized chain ID")
}

// IsUserRejected reports whether the user dismissed the wallet prompt
func IsUserRejected(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == CodeUserRejected
}
