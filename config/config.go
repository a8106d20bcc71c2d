package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level daemon configuration, decoded from TOML.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	LogPath     string `toml:"LogPath"`
	Environment string `toml:"Environment"`

	Audit     AuditConfig     `toml:"Audit"`
	Twap      TwapConfig      `toml:"Twap"`
	Telemetry TelemetryConfig `toml:"Telemetry"`
	Genesis   GenesisConfig   `toml:"Genesis"`
}

// AuditConfig seeds the risk classifier.
type AuditConfig struct {
	DefaultThresholdBps uint64 `toml:"DefaultThresholdBps"`
}

// TwapConfig seeds the order scheduler.
type TwapConfig struct {
	IntervalSeconds uint64 `toml:"IntervalSeconds"`
	ExecutorFeeBps  uint64 `toml:"ExecutorFeeBps"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
}

// GenesisConfig seeds state on first boot. Addresses are bech32 strings with
// the swg prefix.
type GenesisConfig struct {
	Owner          string         `toml:"Owner"`
	TrustedCallers []string       `toml:"TrustedCallers"`
	Tokens         []GenesisToken `toml:"Tokens"`
	Balances       []GenesisFund  `toml:"Balances"`
	VenueRateBps   uint64         `toml:"VenueRateBps"`
	VenueLiquidity []GenesisFund  `toml:"VenueLiquidity"`
}

// GenesisToken registers a token symbol on first boot.
type GenesisToken struct {
	Address  string `toml:"Address"`
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// GenesisFund mints an opening balance. Amount is a decimal string so large
// values survive TOML integer limits.
type GenesisFund struct {
	Token   string `toml:"Token"`
	Account string `toml:"Account"`
	Amount  string `toml:"Amount"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./swapguard-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.Audit.DefaultThresholdBps == 0 {
		c.Audit.DefaultThresholdBps = 9_500
	}
	if c.Twap.IntervalSeconds == 0 {
		c.Twap.IntervalSeconds = 3_600
	}
	if c.Genesis.VenueRateBps == 0 {
		c.Genesis.VenueRateBps = 10_000
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}
}

// createDefault writes a default configuration file and returns it.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
