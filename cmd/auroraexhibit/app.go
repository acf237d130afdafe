package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"auroraexhibit/internal/config"
	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/fhe"
	"auroraexhibit/internal/gallery"
	"auroraexhibit/internal/ipfs"
	"auroraexhibit/internal/provider"
	"auroraexhibit/internal/session"
	"auroraexhibit/internal/signer"

	"github.com/ethereum/go-ethereum/common"
)

// app wires the gallery service from configuration
type app struct {
	cfg        *config.Config
	table      contract.AddressTable
	signer     signer.Signer
	negotiator *provider.Negotiator
	service    *gallery.Service
	ipfs       *ipfs.Client
}

func addressesPath(c *config.Config) string {
	return contract.ResolvePath(c.ABIDir, c.AddressesFile)
}

func loadSigner(c *config.Config) (signer.Signer, error) {
	if c.PrivateKey == "" {
		return nil, nil
	}
	s, err := signer.NewKeySigner(c.PrivateKey)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newApp(c *config.Config) (*app, error) {
	table, err := contract.LoadAddressTable(addressesPath(c))
	if err != nil {
		return nil, err
	}

	s, err := loadSigner(c)
	if err != nil {
		return nil, err
	}

	fheCfg := fhe.Config{
		RelayerURL: c.FHERelayerURL,
		MockChains: c.FHEMockChains,
	}
	if c.FHEACLAddress != "" {
		fheCfg.ACLAddress = common.HexToAddress(c.FHEACLAddress)
	}
	if c.FHEDecryptionAddress != "" {
		fheCfg.DecryptionAddress = common.HexToAddress(c.FHEDecryptionAddress)
	}
	factory := fhe.NewFactory(fheCfg, s)

	a := &app{
		cfg:        c,
		table:      table,
		signer:     s,
		negotiator: provider.NewNegotiator(provider.DialLocator(c.WalletRPCURL), c.ProviderPollInterval, c.ProviderDetectTimeout),
	}

	opts := gallery.Options{
		TargetChainID:      c.TargetChainID,
		ForceTargetNetwork: c.ForceTargetNetwork,
		Addresses:          table,
		Signer:             s,
		NewInstance:        factory.Create,
	}
	if c.IPFSAPIURL != "" {
		client, err := ipfs.NewClient(c.IPFSAPIURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create IPFS client: %w", err)
		}
		a.ipfs = client
		opts.Content = client
	}

	a.service = gallery.NewService(a.negotiator, session.NewStore(session.StoreConfig{
		CacheSize:   c.SessionCacheSize,
		MaxSessions: c.SessionMax,
		IdleTTL:     c.SessionIdleTTL,
	}), opts)
	return a, nil
}

// startApp builds the app and binds it to the wallet's chain
func startApp(ctx context.Context) (*app, error) {
	a, err := newApp(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.service.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to wallet at %s: %w", cfg.WalletRPCURL, err)
	}

	status := a.service.Network()
	if status.Mismatch {
		slog.Warn("Wallet is not on the expected network",
			"chain_id", status.ChainID,
			"expected_chain_id", status.ExpectedChainID,
		)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.service.Close(); err != nil {
		slog.Warn("Failed to close FHE instance", "error", err)
	}
	a.negotiator.Close()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
