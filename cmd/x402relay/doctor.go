package x402relay

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/surajcodesml/a2a/pkg/a2a"
	"github.com/surajcodesml/a2a/pkg/agent"
	"github.com/surajcodesml/a2a/pkg/config"
	"github.com/surajcodesml/a2a/pkg/credentials"
	"github.com/surajcodesml/a2a/pkg/payment"
	"github.com/surajcodesml/a2a/pkg/store"
	"github.com/surajcodesml/a2a/pkg/wallet"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose issues with the x402relay installation",
	RunE:  runDoctor,
}

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "x402relay doctor v%s\n", agent.Version)
	fmt.Fprintf(out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(out, "Go: %s\n\n", runtime.Version())

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(out, "  ✗ Config file: %s\n", err)
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	checks := []checkResult{
		checkDataDir(),
		checkConfig(),
		checkDatabase(cfg),
		checkMasterKey(cfg),
		checkWallet(ctx, cfg),
		checkIdempotency(ctx, cfg),
		checkAgent("Payer agent", cfg.Payer.Port),
		checkAgent("Requester agent", cfg.Requester.Port),
		checkRelayTarget(ctx, cfg),
	}

	passed, failed := 0, 0
	for _, c := range checks {
		status := "✓"
		if !c.ok {
			status = "✗"
			failed++
		} else {
			passed++
		}
		fmt.Fprintf(out, "  %s %s: %s\n", status, c.name, c.detail)
	}

	fmt.Fprintf(out, "\n%d passed, %d failed\n", passed, failed)

	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

func checkDataDir() checkResult {
	dir := config.DataDir()
	info, err := os.Stat(dir)
	if err != nil {
		return checkResult{"Data directory", false, fmt.Sprintf("%s does not exist", dir)}
	}
	if !info.IsDir() {
		return checkResult{"Data directory", false, fmt.Sprintf("%s is not a directory", dir)}
	}
	return checkResult{"Data directory", true, dir}
}

func checkConfig() checkResult {
	path := configPath()
	if _, err := os.Stat(path); err != nil {
		return checkResult{"Config file", true, fmt.Sprintf("%s not found (using defaults)", path)}
	}
	return checkResult{"Config file", true, path}
}

func checkDatabase(cfg *config.Config) checkResult {
	info, err := os.Stat(cfg.Store.DSN)
	if err != nil {
		return checkResult{"Database", false, fmt.Sprintf("%s not found (will be created on first start)", cfg.Store.DSN)}
	}
	return checkResult{"Database", true, fmt.Sprintf("%s (%d KB)", cfg.Store.DSN, info.Size()/1024)}
}

func checkMasterKey(cfg *config.Config) checkResult {
	name := cfg.Credentials.MasterKeyEnv
	if os.Getenv(name) == "" {
		return checkResult{"Master key", false, fmt.Sprintf("%s not set (required by the payer)", name)}
	}
	return checkResult{"Master key", true, fmt.Sprintf("%s set", name)}
}

func checkWallet(ctx context.Context, cfg *config.Config) checkResult {
	const name = "Default wallet"
	masterKey := os.Getenv(cfg.Credentials.MasterKeyEnv)
	if masterKey == "" {
		return checkResult{name, false, "cannot open wallet store without the master key"}
	}
	if _, err := os.Stat(cfg.Store.DSN); err != nil {
		return checkResult{name, false, "no database yet; run `x402relay wallet set`"}
	}
	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return checkResult{name, false, err.Error()}
	}
	defer st.Close()
	creds, err := credentials.New(st.DB(), masterKey)
	if err != nil {
		return checkResult{name, false, err.Error()}
	}
	key, err := creds.Get(ctx, payment.WalletKey(cfg.Payer.DefaultIdentity))
	if err != nil {
		return checkResult{name, false, fmt.Sprintf("identity %q: %v", cfg.Payer.DefaultIdentity, err)}
	}
	address, err := wallet.AddressOf(key)
	if err != nil {
		return checkResult{name, false, fmt.Sprintf("identity %q holds an invalid key", cfg.Payer.DefaultIdentity)}
	}
	return checkResult{name, true, fmt.Sprintf("%s -> %s", cfg.Payer.DefaultIdentity, address)}
}

func checkIdempotency(ctx context.Context, cfg *config.Config) checkResult {
	c := cfg.Payer.Idempotency
	if c.Backend != config.BackendRedis {
		return checkResult{"Idempotency backend", true, "in-memory (single payer only)"}
	}
	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, DB: c.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return checkResult{"Idempotency backend", false, fmt.Sprintf("redis at %s: %v", c.RedisAddr, err)}
	}
	return checkResult{"Idempotency backend", true, fmt.Sprintf("redis at %s", c.RedisAddr)}
}

func checkAgent(name string, port int) checkResult {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", port))
	if err != nil {
		return checkResult{name, false, "not running"}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return checkResult{name, true, fmt.Sprintf("running at :%d", port)}
	}
	return checkResult{name, false, fmt.Sprintf("unhealthy (status %d)", resp.StatusCode)}
}

// checkRelayTarget fetches the payment agent's card from the requester's
// point of view. MCP targets publish no card.
func checkRelayTarget(ctx context.Context, cfg *config.Config) checkResult {
	const name = "Relay target"
	if cfg.Requester.RelayMode == config.RelayModeMCP {
		return checkResult{name, true, fmt.Sprintf("%s (mcp, not probed)", cfg.Requester.RelayURL)}
	}
	client := a2a.NewClient(cfg.Requester.RelayURL, a2a.WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	card, err := client.FetchCard(ctx)
	if err != nil {
		return checkResult{name, false, fmt.Sprintf("%s: %v", cfg.Requester.RelayURL, err)}
	}
	for _, s := range card.Skills {
		if s.ID == cfg.Requester.RelayTool {
			return checkResult{name, true, fmt.Sprintf("%s (%s)", card.Name, s.ID)}
		}
	}
	return checkResult{name, false, fmt.Sprintf("%s does not offer %q", card.Name, cfg.Requester.RelayTool)}
}
