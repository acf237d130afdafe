package fhe

import (
	"context"
	"fmt"
	"strings"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/provider"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const aclABI = `[{
	"inputs": [
		{"internalType": "bytes32", "name": "handle", "type": "bytes32"},
		{"internalType": "address", "name": "account", "type": "address"}
	],
	"name": "isAllowed",
	"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
	"stateMutability": "view",
	"type": "function"
}]`

var parsedACL = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(aclABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// ACL queries the coprocessor access-control contract through the wallet provider
type ACL struct {
	provider provider.Provider
	address  common.Address
}

// NewACL binds the ACL contract at address
func NewACL(p provider.Provider, address common.Address) *ACL {
	return &ACL{provider: p, address: address}
}

// IsAllowed reports whether account may decrypt handle
func (a *ACL) IsAllowed(ctx context.Context, handle contract.Handle, account common.Address) (bool, error) {
	data, err := parsedACL.Pack("isAllowed", [32]byte(handle), account)
	if err != nil {
		return false, fmt.Errorf("failed to pack isAllowed: %w", err)
	}

	call := map[string]interface{}{
		"to":   a.address,
		"data": hexutil.Bytes(data),
	}
	var out hexutil.Bytes
	if err := a.provider.Request(ctx, &out, "eth_call", call, "latest"); err != nil {
		return false, fmt.Errorf("ACL check failed: %w", classifyRPCError(err))
	}

	var allowed bool
	if err := parsedACL.UnpackIntoInterface(&allowed, "isAllowed", out); err != nil {
		return false, fmt.Errorf("failed to unpack isAllowed: %w", err)
	}
	return allowed, nil
}
