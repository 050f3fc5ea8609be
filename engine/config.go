package engine

import (
	"os"

	toml "github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Config is the engine configuration, loadable from a TOML file:
//
//	data_dir = "/var/lib/harudb"
//	buffer_instances = 4
//	buffer_pool_size = 64
//	isolation = "REPEATABLE_READ"
type Config struct {
	// DataDir holds the data file
	DataDir string `toml:"data_dir"`
	// NumInstances is the buffer pool shard count
	NumInstances int `toml:"buffer_instances"`
	// PoolSize is the frame count per shard
	PoolSize int `toml:"buffer_pool_size"`
	// Isolation is the default isolation level for new transactions
	Isolation string `toml:"isolation"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		DataDir:      "harudb-data",
		NumInstances: 4,
		PoolSize:     64,
		Isolation:    "REPEATABLE_READ",
	}
}

// LoadConfig reads a TOML file over the defaults
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "os.ReadFile failed")
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "toml.Unmarshal failed")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir must be set")
	}
	if c.NumInstances < 1 {
		return errors.New("config: buffer_instances must be at least 1")
	}
	if c.PoolSize < 1 {
		return errors.New("config: buffer_pool_size must be at least 1")
	}
	return nil
}
