package main

import (
	"fmt"
	"log/slog"
	"os"

	"auroraexhibit/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfg *config.Config

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "auroraexhibit",
	Short: "Gallery client with confidential applause and endorsements",
	Long: `AuroraExhibit mints art pieces on an EVM chain and lets visitors applaud
and endorse them. Like counts and category tallies are FHE encrypted and are
only decrypted on request.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load configuration
		_ = godotenv.Load()
		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// 2. Configure logger
		var logLevel slog.Level
		switch cfg.LogLevel {
		case "debug":
			logLevel = slog.LevelDebug
		case "info":
			logLevel = slog.LevelInfo
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)

		slog.Debug("Configuration loaded",
			"wallet_rpc", cfg.WalletRPCURL,
			"target_chain_id", cfg.TargetChainID,
			"read_only", cfg.PrivateKey == "",
			"log_level", cfg.LogLevel,
		)
		return nil
	},
}

func init() {
	networkCmd.AddCommand(networkStatusCmd)
	networkCmd.AddCommand(networkSwitchCmd)

	piecesCmd.AddCommand(piecesListCmd)
	piecesCmd.AddCommand(piecesShowCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(piecesCmd)
	rootCmd.AddCommand(mintCmd)
	rootCmd.AddCommand(applaudCmd)
	rootCmd.AddCommand(endorseCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(networkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
