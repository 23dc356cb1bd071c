package x402relay

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/surajcodesml/a2a/pkg/a2a"
	"github.com/surajcodesml/a2a/pkg/agent"
)

var cardCmd = &cobra.Command{
	Use:   "card",
	Short: "Print the agent card an agent publishes",
	RunE:  runCard,
}

var (
	cardRole string
	cardURL  string
)

func init() {
	cardCmd.Flags().StringVar(&cardRole, "role", "payer", "agent role: payer or requester")
	cardCmd.Flags().StringVar(&cardURL, "url", "", "URL to advertise (default: derived from config)")
}

func runCard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var card a2a.AgentCard
	switch cardRole {
	case "payer":
		url := cardURL
		if url == "" {
			url = agentURL(cfg, cfg.Payer.Port)
		}
		card = agent.PayerCard(url)
	case "requester":
		url := cardURL
		if url == "" {
			url = agentURL(cfg, cfg.Requester.Port)
		}
		card = agent.RequesterCard(url)
	default:
		return fmt.Errorf("unknown role %q (want payer or requester)", cardRole)
	}

	published, err := a2a.PublishCard(card)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, published.Bytes(), "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = cmd.OutOrStdout().Write(out.Bytes())
	return err
}
