package x402relay

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/surajcodesml/a2a/pkg/config"
	"github.com/surajcodesml/a2a/pkg/gateway"
	"github.com/surajcodesml/a2a/pkg/paywall"
	"github.com/surajcodesml/a2a/pkg/relay"
)

var requesterCmd = &cobra.Command{
	Use:   "requester",
	Short: "Start the requester agent",
	RunE:  runRequester,
}

func runRequester(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := setup(ctx, "x402relay-requester")
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.cfg

	fetcher, err := newFetcher(cfg, rt.logger)
	if err != nil {
		return err
	}

	a, err := gateway.NewRequester(gateway.RequesterConfig{
		URL:              agentURL(cfg, cfg.Requester.Port),
		Fetcher:          fetcher,
		CallerToken:      cfg.Requester.CallerToken,
		VehicleReportURL: cfg.Requester.VehicleReportURL,
		Sessions:         rt.store,
		AuditLog:         rt.audit,
		AuthToken:        cfg.Server.AuthToken,
		Logger:           rt.logger,
	})
	if err != nil {
		return err
	}
	return rt.serve(ctx, a, cfg.Requester.Port)
}

// newFetcher wires the paywall client to the payment agent named in cfg.
func newFetcher(cfg *config.Config, logger *slog.Logger) (*paywall.Client, error) {
	fetchTimeout, relayTimeout := cfg.Requester.Timeouts()
	relayClient, err := relay.NewClient(relay.Config{
		Endpoint:      cfg.Requester.RelayURL,
		Mode:          cfg.Requester.RelayMode,
		Tool:          cfg.Requester.RelayTool,
		Timeout:       relayTimeout,
		StrictReplies: cfg.Requester.StrictReplies,
		AuthToken:     cfg.Requester.RelayAuthToken,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	return paywall.NewClient(paywall.Config{
		Timeout:      fetchTimeout,
		MaxBodyBytes: cfg.Requester.MaxBodyBytes,
		Relayer:      relayClient,
		Logger:       logger,
	}), nil
}
