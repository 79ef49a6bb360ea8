package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// ChainConfig describes one of the two ledgers the resolver operates on.
type ChainConfig struct {
	ChainID        int64  `toml:"ChainID"`
	FactoryAddress string `toml:"FactoryAddress"`
	RescueDelay    uint32 `toml:"RescueDelay"`
}

// Config is the resolverd daemon configuration.
type Config struct {
	ListenAddress   string      `toml:"ListenAddress"`
	DataDir         string      `toml:"DataDir"`
	Environment     string      `toml:"Environment"`
	LogFile         string      `toml:"LogFile"`
	OperatorAddress string      `toml:"OperatorAddress"`
	ResolverAddress string      `toml:"ResolverAddress"`
	OperatorToken   string      `toml:"OperatorToken"`
	Source          ChainConfig `toml:"Source"`
	Destination     ChainConfig `toml:"Destination"`
}

const defaultRescueDelay uint32 = 7 * 24 * 60 * 60

func defaultConfig() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8650",
		DataDir:       "./data",
		Environment:   "local",
		Source:        ChainConfig{ChainID: 1, RescueDelay: defaultRescueDelay},
		Destination:   ChainConfig{ChainID: 2, RescueDelay: defaultRescueDelay},
	}
}

// Load reads the configuration from path, writing the defaults there first if
// no file exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.Source.RescueDelay == 0 {
		cfg.Source.RescueDelay = defaultRescueDelay
	}
	if cfg.Destination.RescueDelay == 0 {
		cfg.Destination.RescueDelay = defaultRescueDelay
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir is required")
	}
	for name, addr := range map[string]string{
		"OperatorAddress":            c.OperatorAddress,
		"ResolverAddress":            c.ResolverAddress,
		"Source.FactoryAddress":      c.Source.FactoryAddress,
		"Destination.FactoryAddress": c.Destination.FactoryAddress,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("config: %s must be a hex address", name)
		}
	}
	if strings.TrimSpace(c.OperatorToken) == "" {
		return fmt.Errorf("config: OperatorToken is required")
	}
	return nil
}

// Operator returns the parsed operator address. Call Validate first.
func (c *Config) Operator() common.Address {
	return common.HexToAddress(c.OperatorAddress)
}

// Resolver returns the parsed resolver funding address. Call Validate first.
func (c *Config) Resolver() common.Address {
	return common.HexToAddress(c.ResolverAddress)
}
