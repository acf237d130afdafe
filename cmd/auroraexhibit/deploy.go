package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/deploy"
	"auroraexhibit/internal/provider"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
)

var (
	deployArtifact  string
	deployChainName string
	deployForce     bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the gallery contract and record its address",
	Long: `Deploy the gallery contract from a Hardhat artifact with PRIVATE_KEY and
record the address in the per-chain address table. An existing deployment
with live code is kept unless --force is given.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&deployArtifact, "artifact", "", "Hardhat artifact (default: $ABI_DIR/AuroraExhibit.json)")
	deployCmd.Flags().StringVar(&deployChainName, "chain-name", "", "Name recorded in the address table (default: known network name)")
	deployCmd.Flags().BoolVar(&deployForce, "force", false, "Redeploy even if a live deployment is recorded")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	s, err := loadSigner(cfg)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("PRIVATE_KEY is required to deploy: %w", contract.ErrNoSigner)
	}

	path := deployArtifact
	if path == "" {
		path = contract.ResolvePath(cfg.ABIDir, "AuroraExhibit.json")
	}
	artifact, err := contract.LoadArtifact(path)
	if err != nil {
		return err
	}

	client, err := ethclient.DialContext(ctx, cfg.WalletRPCURL)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", cfg.WalletRPCURL, err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}

	name := deployChainName
	if name == "" {
		name = chainID.String()
		if n, ok := provider.KnownNetwork(chainID.Uint64()); ok {
			name = n.ChainName
		}
	}

	table, err := contract.LoadAddressTable(addressesPath(cfg))
	if err != nil {
		return err
	}

	d := deploy.NewDeployer(client, chainID.Uint64(), s, table, addressesPath(cfg))
	res, err := d.Deploy(ctx, artifact, name, deployForce)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Skipped {
		fmt.Fprintf(out, "AuroraExhibit already deployed at %s on %s\n", res.Address.Hex(), name)
		return nil
	}
	fmt.Fprintf(out, "AuroraExhibit contract: %s (tx %s)\n", res.Address.Hex(), res.TxHash.Hex())
	return nil
}
