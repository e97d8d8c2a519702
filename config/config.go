package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/NoahSaso/cw-receipt/crypto"
)

// Config is the daemon configuration loaded from TOML.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Env           string `toml:"Env"`
	LogFile       string `toml:"LogFile"`

	// RPCAuthToken gates mutating RPC methods when set.
	RPCAuthToken string `toml:"RPCAuthToken"`
	// RPCRateLimit is the per-client budget of mutating requests per minute.
	// Zero disables rate limiting.
	RPCRateLimit float64 `toml:"RPCRateLimit"`

	Genesis Genesis `toml:"genesis"`
}

// Genesis seeds the ledger on first boot.
type Genesis struct {
	// Owner may update the output address later. Optional; when empty the
	// ledger is ownerless and the output address is frozen.
	Owner string `toml:"Owner"`
	// Output is the mandatory destination every payment is forwarded to.
	Output string `toml:"Output"`
}

// Load loads the configuration from the given path, creating a default file
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
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = "127.0.0.1:8651"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "dev"
	}
}

// Validate checks the loaded configuration before the daemon starts. The
// genesis block is only required while the data directory holds no state, but
// a malformed address is rejected regardless.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Genesis.Output) != "" {
		if _, err := crypto.DecodeAddress(c.Genesis.Output); err != nil {
			return fmt.Errorf("config: invalid genesis output: %w", err)
		}
	}
	if strings.TrimSpace(c.Genesis.Owner) != "" {
		if _, err := crypto.DecodeAddress(c.Genesis.Owner); err != nil {
			return fmt.Errorf("config: invalid genesis owner: %w", err)
		}
	}
	if c.RPCRateLimit < 0 {
		return fmt.Errorf("config: RPCRateLimit must not be negative")
	}
	return nil
}

// GenesisAddresses parses the configured genesis addresses. The boolean
// reports whether an output address was configured at all.
func (c *Config) GenesisAddresses() (owner *crypto.Address, output crypto.Address, ok bool, err error) {
	if strings.TrimSpace(c.Genesis.Output) == "" {
		return nil, crypto.Address{}, false, nil
	}
	output, err = crypto.DecodeAddress(c.Genesis.Output)
	if err != nil {
		return nil, crypto.Address{}, false, err
	}
	if strings.TrimSpace(c.Genesis.Owner) != "" {
		parsed, err := crypto.DecodeAddress(c.Genesis.Owner)
		if err != nil {
			return nil, crypto.Address{}, false, err
		}
		owner = &parsed
	}
	return owner, output, true, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create default %s: %w", path, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	return cfg, nil
}
