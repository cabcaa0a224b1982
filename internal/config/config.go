// Package config loads the megagrid client configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/daviddao/megagrid/internal/chain"
)

// Backends.
const (
	BackendDev = "dev"
	BackendEth = "eth"
)

// Config is the full client configuration.
type Config struct {
	Backend   string `yaml:"backend" validate:"oneof=dev eth"`
	RPCURL    string `yaml:"rpc_url" validate:"omitempty,url"`
	WSURL     string `yaml:"ws_url" validate:"omitempty,url"`
	WalletURL string `yaml:"wallet_url" validate:"omitempty,url"`
	Contract  string `yaml:"contract" validate:"omitempty,eth_addr"`

	Chain ChainConfig `yaml:"chain"`
	Dev   DevConfig   `yaml:"dev"`

	DefaultDimension int    `yaml:"default_dimension" validate:"gte=1,lte=4096"`
	CellWidth        int    `yaml:"cell_width" validate:"gte=1,lte=4"`
	Color            string `yaml:"color" validate:"omitempty,hexcolor"`

	LogFile     string `yaml:"log_file"`
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	TraceFile   string `yaml:"trace_file"`
}

// ChainConfig describes the target network.
type ChainConfig struct {
	ID       uint64         `yaml:"id" validate:"required"`
	Name     string         `yaml:"name" validate:"required"`
	Currency chain.Currency `yaml:"currency"`
}

// DevConfig configures the local SQLite devnet and its simulated wallet.
type DevConfig struct {
	DB   string        `yaml:"db"`
	Size int           `yaml:"size" validate:"gte=1,lte=4096"`
	Poll time.Duration `yaml:"poll"`

	WalletChainID uint64   `yaml:"wallet_chain_id"`
	KnownChains   []uint64 `yaml:"known_chains"`
	Accounts      []string `yaml:"accounts" validate:"dive,eth_addr"`
	// Reject lists wallet requests the simulated user declines, e.g.
	// "wallet_switchEthereumChain".
	Reject []string `yaml:"reject"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: BackendDev,
		RPCURL:  "https://carrot.megaeth.com/rpc",
		Chain: ChainConfig{
			ID:       6342,
			Name:     "MegaETH Testnet",
			Currency: chain.Currency{Name: "MEGA", Symbol: "MEGA", Decimals: 18},
		},
		Dev: DevConfig{
			Size:          128,
			Poll:          2 * time.Second,
			WalletChainID: 1,
			KnownChains:   []uint64{1},
			Accounts:      []string{"0x5eaf00d000000000000000000000000000000001"},
		},
		DefaultDimension: 128,
		CellWidth:        2,
		LogLevel:         "info",
	}
}

// DefaultPath is ~/.megagrid/megagrid.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".megagrid", "megagrid.yaml"), nil
}

// Load reads path (DefaultPath when empty), writing the defaults there on
// first run, then applies environment overrides and validates.
func Load(path string) (Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := WriteDefault(path); err != nil {
				return Config{}, err
			}
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() error {
	for env, dst := range map[string]*string{
		"MEGAGRID_RPC_URL":    &c.RPCURL,
		"MEGAGRID_WS_URL":     &c.WSURL,
		"MEGAGRID_WALLET_URL": &c.WalletURL,
		"MEGAGRID_CONTRACT":   &c.Contract,
		"MEGAGRID_DB":         &c.Dev.DB,
		"MEGAGRID_BACKEND":    &c.Backend,
	} {
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("MEGAGRID_CHAIN_ID"); ok {
		id, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return fmt.Errorf("MEGAGRID_CHAIN_ID=%q: %w", v, err)
		}
		c.Chain.ID = id
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and backend requirements.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Backend == BackendEth {
		if c.RPCURL == "" {
			return errors.New("backend eth needs rpc_url")
		}
		if c.Contract == "" {
			return errors.New("backend eth needs contract")
		}
	}
	return nil
}

// Network is the descriptor offered to the wallet when adding the target
// network: one RPC endpoint and no block explorers.
func (c Config) Network() chain.Network {
	var rpc []string
	if c.RPCURL != "" {
		rpc = []string{c.RPCURL}
	}
	return chain.Network{
		ChainID:      c.Chain.ID,
		Name:         c.Chain.Name,
		Currency:     c.Chain.Currency,
		RPCURLs:      rpc,
		ExplorerURLs: []string{},
	}
}
