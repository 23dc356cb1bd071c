package x402relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/surajcodesml/a2a/pkg/paywall"
	"github.com/surajcodesml/a2a/pkg/relay"
	"github.com/surajcodesml/a2a/pkg/telemetry"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a URL once, paying through the payment agent if it answers 402",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

var fetchToken string

func init() {
	fetchCmd.Flags().StringVar(&fetchToken, "token", "", "agent token selecting the paying wallet (default: requester.caller_token)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	// Logs go to stderr so stdout carries only the body.
	logger := telemetry.SetupLogger(cfg.Log.Level, "text", cmd.ErrOrStderr())
	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}

	token := fetchToken
	if token == "" {
		token = cfg.Requester.CallerToken
	}
	return fetchTo(ctx, cmd.OutOrStdout(), fetcher, paywall.FetchRequest{URL: args[0], CallerToken: token}, logger)
}

func fetchTo(ctx context.Context, w io.Writer, fetcher *paywall.Client, req paywall.FetchRequest, logger *slog.Logger) error {
	body, err := fetcher.Fetch(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrRelayTimeout):
			logger.Error("payment agent did not answer in time")
		case errors.Is(err, relay.ErrRemotePaymentFailed):
			logger.Error("payment agent could not pay")
		case errors.Is(err, paywall.ErrProvider):
			logger.Error("provider refused the request")
		}
		return err
	}
	_, err = fmt.Fprintln(w, body)
	return err
}
