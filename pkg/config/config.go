package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server      ServerConfig      `toml:"server"`
	Requester   RequesterConfig   `toml:"requester"`
	Payer       PayerConfig       `toml:"payer"`
	Tasks       TasksConfig       `toml:"tasks"`
	Store       StoreConfig       `toml:"store"`
	Log         LogConfig         `toml:"log"`
	Tracing     TracingConfig     `toml:"tracing"`
	Credentials CredentialsConfig `toml:"credentials"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	Port        int    `toml:"port"`
	AuthToken   string `toml:"auth_token"`
	ExternalURL string `toml:"external_url"`
}

type RequesterConfig struct {
	Port             int    `toml:"port"`
	RelayURL         string `toml:"relay_url"`
	RelayMode        string `toml:"relay_mode"`
	RelayTool        string `toml:"relay_tool"`
	RelayAuthToken   string `toml:"relay_auth_token"`
	RelayTimeout     string `toml:"relay_timeout"`
	FetchTimeout     string `toml:"fetch_timeout"`
	MaxBodyBytes     int64  `toml:"max_body_bytes"`
	CallerToken      string `toml:"caller_token"`
	StrictReplies    bool   `toml:"strict_replies"`
	VehicleReportURL string `toml:"vehicle_report_url"`
}

type PayerConfig struct {
	Port            int             `toml:"port"`
	DefaultIdentity string          `toml:"default_identity"`
	FetchTimeout    string          `toml:"fetch_timeout"`
	MCPEnabled      bool            `toml:"mcp_enabled"`
	Idempotency     IdempotencyConf `toml:"idempotency"`
	MaxAmount       string          `toml:"max_amount"`
}

type IdempotencyConf struct {
	Backend   string `toml:"backend"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	TTL       string `toml:"ttl"`
}

type TasksConfig struct {
	Retention       string `toml:"retention"`
	GCSchedule      string `toml:"gc_schedule"`
	// RecordRetention bounds how long audit entries and sessions are kept.
	// Empty keeps them forever.
	RecordRetention string `toml:"record_retention"`
}

type StoreConfig struct {
	DSN string `toml:"dsn"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TracingConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

type CredentialsConfig struct {
	MasterKeyEnv string `toml:"master_key_env"`
}

const (
	RelayModeA2A   = "a2a"
	RelayModeTools = "tools"
	RelayModeMCP   = "mcp"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind: "loopback",
		},
		Requester: RequesterConfig{
			Port:             10003,
			RelayURL:         "http://localhost:10002/",
			RelayMode:        RelayModeA2A,
			RelayTool:        "pay402_and_fetch",
			RelayTimeout:     "90s",
			FetchTimeout:     "30s",
			MaxBodyBytes:     4 << 20,
			StrictReplies:    false,
			VehicleReportURL: "http://localhost:9000/vin/{vin}",
		},
		Payer: PayerConfig{
			Port:            10002,
			DefaultIdentity: "default",
			FetchTimeout:    "30s",
			MCPEnabled:      true,
			Idempotency: IdempotencyConf{
				Backend: BackendMemory,
				TTL:     "10m",
			},
		},
		Tasks: TasksConfig{
			Retention:       "10m",
			GCSchedule:      "@every 1m",
			RecordRetention: "720h",
		},
		Store: StoreConfig{
			DSN: filepath.Join(DataDir(), "x402relay.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Credentials: CredentialsConfig{
			MasterKeyEnv: "X402RELAY_MASTER_KEY",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(DataDir(), "x402relay.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv lets the deployment environment override the file, matching the
// variable names the payment agent has always been configured with.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("PAYSTABL_AGENT_URL"); v != "" {
		cfg.Requester.RelayURL = v
	}
	if v := os.Getenv("PAYSTABL_AGENT_TOKEN"); v != "" {
		cfg.Requester.CallerToken = v
	}
	if v := os.Getenv("PAYSTABL_AGENT_HOST"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("PAYSTABL_AGENT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("config: invalid PAYSTABL_AGENT_PORT %q", v)
		}
		cfg.Payer.Port = port
	}
	return nil
}

func (c *Config) Validate() error {
	fetch, err := parseDuration("requester.fetch_timeout", c.Requester.FetchTimeout)
	if err != nil {
		return err
	}
	relay, err := parseDuration("requester.relay_timeout", c.Requester.RelayTimeout)
	if err != nil {
		return err
	}
	if relay <= fetch {
		return fmt.Errorf("config: requester.relay_timeout (%s) must be longer than requester.fetch_timeout (%s)", relay, fetch)
	}
	if _, err := parseDuration("payer.fetch_timeout", c.Payer.FetchTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("payer.idempotency.ttl", c.Payer.Idempotency.TTL); err != nil {
		return err
	}
	if _, err := parseDuration("tasks.retention", c.Tasks.Retention); err != nil {
		return err
	}
	if c.Tasks.RecordRetention != "" {
		if _, err := parseDuration("tasks.record_retention", c.Tasks.RecordRetention); err != nil {
			return err
		}
	}

	switch c.Requester.RelayMode {
	case RelayModeA2A, RelayModeTools, RelayModeMCP:
	default:
		return fmt.Errorf("config: unknown requester.relay_mode %q", c.Requester.RelayMode)
	}

	switch c.Payer.Idempotency.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Payer.Idempotency.RedisAddr == "" {
			return fmt.Errorf("config: payer.idempotency.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown payer.idempotency.backend %q", c.Payer.Idempotency.Backend)
	}
	return nil
}

func (c RequesterConfig) Timeouts() (fetch, relay time.Duration) {
	fetch, _ = time.ParseDuration(c.FetchTimeout)
	relay, _ = time.ParseDuration(c.RelayTimeout)
	return fetch, relay
}

func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", field, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", field)
	}
	return d, nil
}

func DataDir() string {
	if dir := os.Getenv("X402RELAY_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".x402relay"
	}
	return filepath.Join(home, ".x402relay")
}

func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "x402relay.toml")
}

func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
