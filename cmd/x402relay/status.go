package x402relay

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the health of the local agents",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 3 * time.Second}
	for _, a := range []struct {
		name string
		port int
	}{
		{"payer", cfg.Payer.Port},
		{"requester", cfg.Requester.Port},
	} {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", a.name, probe(client, a.port))
	}
	return nil
}

func probe(client *http.Client, port int) string {
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/readyz", port))
	if err != nil {
		return "not running"
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return fmt.Sprintf("ready on :%d", port)
	}
	return fmt.Sprintf("unhealthy on :%d (%s)", port, resp.Status)
}
