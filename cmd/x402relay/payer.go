package x402relay

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/surajcodesml/a2a/pkg/config"
	"github.com/surajcodesml/a2a/pkg/credentials"
	"github.com/surajcodesml/a2a/pkg/gateway"
	"github.com/surajcodesml/a2a/pkg/payment"
	"github.com/surajcodesml/a2a/pkg/store"
	"github.com/surajcodesml/a2a/pkg/wallet"
)

var payerCmd = &cobra.Command{
	Use:   "payer",
	Short: "Start the payment agent",
	RunE:  runPayer,
}

func runPayer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := setup(ctx, "x402relay-payer")
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.cfg

	creds, err := openCredentials(cfg, rt.store)
	if err != nil {
		return err
	}

	guard, err := newGuard(rt, cfg.Payer.Idempotency)
	if err != nil {
		return err
	}
	maxAmount, err := payment.ParseAmount(cfg.Payer.MaxAmount)
	if err != nil {
		return fmt.Errorf("payer.max_amount: %w", err)
	}

	payments := payment.NewExecutor(payment.Config{
		Resolver:  payment.NewResolver(creds, wallet.NewPayer, cfg.Payer.DefaultIdentity),
		Guard:     guard,
		AuditLog:  rt.audit,
		Timeout:   config.Duration(cfg.Payer.FetchTimeout, 30*time.Second),
		MaxAmount: maxAmount,
		Logger:    rt.logger,
	})

	a, err := gateway.NewPayer(gateway.PayerConfig{
		URL:        agentURL(cfg, cfg.Payer.Port),
		Payer:      payments,
		Sessions:   rt.store,
		AuditLog:   rt.audit,
		AuthToken:  cfg.Server.AuthToken,
		MCPEnabled: cfg.Payer.MCPEnabled,
		Logger:     rt.logger,
	})
	if err != nil {
		return err
	}
	return rt.serve(ctx, a, cfg.Payer.Port)
}

// newGuard builds the idempotency guard. The redis backend shares
// at-most-once payment across payer replicas.
func newGuard(rt *services, c config.IdempotencyConf) (payment.Guard, error) {
	ttl := config.Duration(c.TTL, payment.DefaultGuardTTL)
	if c.Backend != config.BackendRedis {
		return payment.NewMemoryGuard(ttl), nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, DB: c.RedisDB})
	rt.onClose(rdb.Close)
	rt.probes = append(rt.probes, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	return payment.NewRedisGuard(rdb, ttl), nil
}

func openCredentials(cfg *config.Config, st *store.Store) (*credentials.Store, error) {
	masterKey := os.Getenv(cfg.Credentials.MasterKeyEnv)
	if masterKey == "" {
		return nil, fmt.Errorf("%s is not set; the wallet store cannot be opened", cfg.Credentials.MasterKeyEnv)
	}
	creds, err := credentials.New(st.DB(), masterKey)
	if err != nil {
		return nil, fmt.Errorf("opening wallet store: %w", err)
	}
	return creds, nil
}
