package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Inspect or change the wallet network",
}

var networkStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider, chain and FHE status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			return printJSON(cmd.OutOrStdout(), a.service.Network())
		})
	},
}

var networkSwitchCmd = &cobra.Command{
	Use:   "switch <chainId>",
	Short: "Ask the wallet to switch chains",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chainID, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			status, err := a.service.SwitchNetwork(ctx, chainID)
			if printErr := printJSON(cmd.OutOrStdout(), status); printErr != nil {
				return printErr
			}
			return err
		})
	},
}
