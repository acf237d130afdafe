// Package deploy publishes the gallery contract from a Hardhat artifact and
// records the result in the per-chain address table.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/signer"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrNoBytecode = errors.New("artifact has no creation bytecode")
	ErrNotGallery = errors.New("artifact is not the gallery contract")
)

// Result describes a deployment
type Result struct {
	Address common.Address
	TxHash  common.Hash
	// Skipped is true when an existing deployment was kept
	Skipped bool
}

// Deployer deploys to one chain
type Deployer struct {
	backend   contract.Backend
	chainID   *big.Int
	signer    signer.Signer
	table     contract.AddressTable
	tablePath string
}

// NewDeployer creates a Deployer. The table is saved back to tablePath after a deployment.
func NewDeployer(backend contract.Backend, chainID uint64, s signer.Signer, table contract.AddressTable, tablePath string) *Deployer {
	if table == nil {
		table = contract.AddressTable{}
	}
	return &Deployer{
		backend:   backend,
		chainID:   new(big.Int).SetUint64(chainID),
		signer:    s,
		table:     table,
		tablePath: tablePath,
	}
}

// Table returns the address table, including any deployment made by Deploy
func (d *Deployer) Table() contract.AddressTable {
	return d.table
}

// Deploy publishes the artifact's bytecode. An existing entry with live code
// is kept unless force is set.
func (d *Deployer) Deploy(ctx context.Context, artifact *contract.HardhatArtifact, chainName string, force bool) (*Result, error) {
	if d.signer == nil {
		return nil, contract.ErrNoSigner
	}
	code := artifact.Code()
	if code == nil {
		return nil, fmt.Errorf("%s: %w", artifact.ContractName, ErrNoBytecode)
	}
	if err := checkGalleryABI(artifact); err != nil {
		return nil, err
	}

	if addr, ok := d.table.Lookup(d.chainID.Uint64()); ok && !force {
		live, err := d.backend.CodeAt(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing deployment: %w", err)
		}
		if len(live) > 0 {
			slog.Info("Reusing existing deployment",
				"contract", artifact.ContractName,
				"address", addr.Hex(),
				"chain_id", d.chainID,
			)
			return &Result{Address: addr, Skipped: true}, nil
		}
		slog.Warn("Recorded deployment has no code, redeploying", "address", addr.Hex())
	}

	from := d.signer.Address()
	gasLimit, err := d.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, Data: code})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate deployment gas: %w", err)
	}
	// Add 20% buffer
	gasLimit = gasLimit * 12 / 10

	nonce, err := d.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := d.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewContractCreation(nonce, big.NewInt(0), gasLimit, gasPrice, code)
	signed, err := d.signer.SignTx(tx, d.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign deployment: %w", err)
	}
	if err := d.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send deployment: %w", err)
	}

	slog.Info("Deployment submitted, waiting for confirmation",
		"contract", artifact.ContractName,
		"tx_hash", signed.Hash().Hex(),
		"deployer", from.Hex(),
	)

	start := time.Now()
	addr, err := bind.WaitDeployed(ctx, d.backend, signed)
	if err != nil {
		return nil, fmt.Errorf("deployment %s failed: %w", signed.Hash().Hex(), err)
	}

	d.table.Set(contract.Deployment{
		Address:   addr.Hex(),
		ChainID:   d.chainID.Uint64(),
		ChainName: chainName,
	})
	if d.tablePath != "" {
		if err := d.table.Save(d.tablePath); err != nil {
			return nil, err
		}
	}

	slog.Info("✅ Contract deployed",
		"contract", artifact.ContractName,
		"address", addr.Hex(),
		"chain_id", d.chainID,
		"duration", time.Since(start),
	)
	return &Result{Address: addr, TxHash: signed.Hash()}, nil
}

// checkGalleryABI rejects artifacts missing any gallery entry point
func checkGalleryABI(artifact *contract.HardhatArtifact) error {
	parsed, err := artifact.ParseABI()
	if err != nil {
		return err
	}
	for name := range contract.ParsedABI.Methods {
		if _, ok := parsed.Methods[name]; !ok {
			return fmt.Errorf("%s lacks %s: %w", artifact.ContractName, name, ErrNotGallery)
		}
	}
	return nil
}
