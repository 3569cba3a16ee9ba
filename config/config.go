// Package config loads and validates the server's environment-driven
// configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// DefaultPort is used when MCP_SERVER_URL carries no explicit port.
const DefaultPort = 7284

// EnvFile is loaded from the working directory unless the process runs in
// an isolated environment.
const EnvFile = ".env.canton"

// Config is the fully resolved server configuration.
type Config struct {
	ServerURL string
	Port      int
	LogLevel  string
	DocsPath  string

	DCAP   DCAPConfig
	X402   X402Config
	Canton CantonConfig
}

// DCAPConfig configures the UDP telemetry emitter.
type DCAPConfig struct {
	Enabled          bool
	MulticastIP      string
	Port             int
	ServerID         string
	ServerName       string
	DiscoverInterval int // seconds
}

// Addr is the telemetry destination host:port.
func (c DCAPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.MulticastIP, c.Port)
}

// X402Config configures the EVM payment rail.
type X402Config struct {
	Enabled          bool
	WalletAddress    string
	Network          string
	Token            string
	FacilitatorURL   string
	VerifyTimeoutSec int
	SettleTimeoutSec int
	InternalAPIKey   string
}

// CantonConfig configures the Canton payment rail.
type CantonConfig struct {
	Enabled        bool
	FacilitatorURL string
	PayeeParty     string
	Network        string
}

// LoadEnvFile loads .env.canton from the working directory. Variables
// already present in the process environment win. Isolated environments
// (containers with injected env) skip the file entirely.
func LoadEnvFile() {
	if GetBool("IS_ISOLATED_ENVIRONMENT", false) {
		return
	}
	// godotenv never overrides existing variables; a missing file is fine.
	_ = godotenv.Load(EnvFile)
}

// Load resolves the configuration from the process environment.
func Load() (*Config, error) {
	serverURL := GetString("MCP_SERVER_URL", fmt.Sprintf("http://localhost:%d", DefaultPort))
	port, err := portFromURL(serverURL)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL: strings.TrimSuffix(serverURL, "/"),
		Port:      port,
		LogLevel:  GetString("LOG_LEVEL", "info"),
		DocsPath:  GetString("CANONICAL_DOCS_PATH", "./canonical-docs"),
		DCAP: DCAPConfig{
			Enabled:          GetBool("DCAP_ENABLED", true),
			MulticastIP:      GetString("DCAP_MULTICAST_IP", ""),
			Port:             GetInt("DCAP_PORT", 10191),
			ServerID:         GetString("DCAP_SERVER_ID", "canton-mcp"),
			ServerName:       GetString("DCAP_SERVER_NAME", "Canton MCP Server"),
			DiscoverInterval: GetInt("DCAP_DISCOVER_INTERVAL_SEC", 300),
		},
		X402: X402Config{
			Enabled:          GetBool("X402_ENABLED", false),
			WalletAddress:    GetString("X402_WALLET_ADDRESS", ""),
			Network:          GetString("X402_NETWORK", "base-sepolia"),
			Token:            GetString("X402_TOKEN", "USDC"),
			FacilitatorURL:   GetString("X402_FACILITATOR_URL", "https://x402.org/facilitator"),
			VerifyTimeoutSec: GetInt("X402_VERIFICATION_TIMEOUT", 5),
			SettleTimeoutSec: GetInt("X402_SETTLEMENT_TIMEOUT", 60),
			InternalAPIKey:   GetString("X402_INTERNAL_API_KEY", ""),
		},
		Canton: CantonConfig{
			Enabled:        GetBool("CANTON_ENABLED", false),
			FacilitatorURL: GetString("CANTON_FACILITATOR_URL", ""),
			PayeeParty:     GetString("CANTON_PAYEE_PARTY", ""),
			Network:        GetString("CANTON_NETWORK", "canton-testnet"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DCAP.Enabled && c.DCAP.MulticastIP == "" {
		return fmt.Errorf("DCAP_MULTICAST_IP is required when DCAP_ENABLED is true")
	}
	if c.X402.Enabled && !common.IsHexAddress(c.X402.WalletAddress) {
		return fmt.Errorf("X402_WALLET_ADDRESS %q is not a valid EVM address", c.X402.WalletAddress)
	}
	if c.Canton.Enabled {
		if c.Canton.FacilitatorURL == "" {
			return fmt.Errorf("CANTON_FACILITATOR_URL is required when CANTON_ENABLED is true")
		}
		if c.Canton.PayeeParty == "" {
			return fmt.Errorf("CANTON_PAYEE_PARTY is required when CANTON_ENABLED is true")
		}
	}
	return nil
}

func portFromURL(raw string) (int, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid MCP_SERVER_URL %q: %w", raw, err)
	}
	if parsed.Port() == "" {
		return DefaultPort, nil
	}
	port, err := strconv.Atoi(parsed.Port())
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in MCP_SERVER_URL %q", raw)
	}
	return port, nil
}

// GetString returns the named environment variable or the default.
func GetString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// GetBool parses a boolean environment variable. "true", "1", "yes" and
// "on" (case-insensitive) are true; everything else set is false.
func GetBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// GetInt parses an integer environment variable, falling back on parse
// failure.
func GetInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return parsed
}
