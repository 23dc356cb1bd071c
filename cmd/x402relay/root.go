package x402relay

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/surajcodesml/a2a/pkg/agent"
	"github.com/surajcodesml/a2a/pkg/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "x402relay",
	Short: "x402relay - agents that fetch paywalled resources and settle their HTTP 402 challenges",
	Long: "x402relay runs a requester agent that fetches resources for other agents and a payer agent " +
		"that settles x402 payment challenges with stablecoin wallets kept in an encrypted store.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.x402relay/x402relay.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(requesterCmd)
	rootCmd.AddCommand(payerCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of x402relay",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "x402relay v%s\n", agent.Version)
	},
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// agentURL is the URL an agent advertises in its card.
func agentURL(cfg *config.Config, port int) string {
	if cfg.Server.ExternalURL != "" {
		return cfg.Server.ExternalURL
	}
	return fmt.Sprintf("http://localhost:%d/", port)
}
