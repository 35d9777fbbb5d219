package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// StakingConfig bounds the short-horizon staking programme. Amounts are
// decimal strings in whole asset units; zero values fall back to the engine
// defaults.
type StakingConfig struct {
	MinStake            string `toml:"MinStake"`
	MaxStake            string `toml:"MaxStake"`
	MaxTotalStake       string `toml:"MaxTotalStake"`
	StakeablePeriodSecs int64  `toml:"StakeablePeriodSecs"`
	LockupDurationSecs  int64  `toml:"LockupDurationSecs"`
}

// DAOConfig parameterises the long-horizon membership vault.
type DAOConfig struct {
	MembershipStake    string   `toml:"MembershipStake"`
	LockupDurationSecs int64    `toml:"LockupDurationSecs"`
	PreExistingMembers []string `toml:"PreExistingMembers"`
	MembershipURI      string   `toml:"MembershipURI"`
}

// GenesisConfig seeds asset balances at first boot. Keys are hex addresses,
// values decimal amounts.
type GenesisConfig struct {
	StakingBalances map[string]string `toml:"StakingBalances"`
	RewardBalances  map[string]string `toml:"RewardBalances"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Config is the service configuration loaded from TOML.
type Config struct {
	ListenAddress string          `toml:"ListenAddress"`
	DataDir       string          `toml:"DataDir"`
	Environment   string          `toml:"Environment"`
	Operator      string          `toml:"Operator"`
	Staking       StakingConfig   `toml:"staking"`
	DAO           DAOConfig       `toml:"dao"`
	Genesis       GenesisConfig   `toml:"genesis"`
	Telemetry     TelemetryConfig `toml:"telemetry"`
}

const defaultListenAddress = ":8545"

// Load loads the configuration from the given path, creating a commented
// default file when none exists.
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
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
}

// Validate checks the address and amount fields decode cleanly.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Operator) == "" {
		return fmt.Errorf("config: Operator address required")
	}
	if !common.IsHexAddress(c.Operator) {
		return fmt.Errorf("config: invalid Operator address %q", c.Operator)
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"staking.MinStake", c.Staking.MinStake},
		{"staking.MaxStake", c.Staking.MaxStake},
		{"staking.MaxTotalStake", c.Staking.MaxTotalStake},
		{"dao.MembershipStake", c.DAO.MembershipStake},
	} {
		if _, err := parseAmount(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	for _, member := range c.DAO.PreExistingMembers {
		if !common.IsHexAddress(member) {
			return fmt.Errorf("config: invalid pre-existing member %q", member)
		}
	}
	for addr := range c.Genesis.StakingBalances {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("config: invalid genesis address %q", addr)
		}
	}
	for addr := range c.Genesis.RewardBalances {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("config: invalid genesis address %q", addr)
		}
	}
	return nil
}

// OperatorAddress returns the decoded operator account.
func (c *Config) OperatorAddress() [20]byte {
	return common.HexToAddress(c.Operator)
}

// Amount decodes a decimal amount field, empty meaning zero.
func Amount(raw string) (*big.Int, error) {
	return parseAmount(raw)
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return parsed, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: defaultListenAddress,
		DataDir:       "./data",
		Environment:   "local",
		Operator:      "0x0000000000000000000000000000000000000001",
		Staking: StakingConfig{
			MinStake:            "10000",
			MaxStake:            "250000",
			MaxTotalStake:       "0",
			StakeablePeriodSecs: 4 * 7 * 24 * 60 * 60,
			LockupDurationSecs:  52 * 7 * 24 * 60 * 60,
		},
		DAO: DAOConfig{
			MembershipStake:    "10000",
			LockupDurationSecs: 52 * 7 * 24 * 60 * 60,
		},
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create default %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode default %s: %w", path, err)
	}
	return cfg, nil
}
