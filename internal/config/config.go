package config

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/prime"
)

const (
	EnvPrefix      = "LCGRSA"
	ConfigFileName = ".lcgrsa"

	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	// Seed of 0 means seed from the current time.
	Seed        uint64        `mapstructure:"seed" json:"seed"`
	Rounds      int           `mapstructure:"rounds" json:"rounds"`
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts"`
	Provider    string        `mapstructure:"provider" json:"provider"`
	Format      string        `mapstructure:"format" json:"format"`
	Server      ServerConfig  `mapstructure:"server" json:"server"`
	Storage     StorageConfig `mapstructure:"storage" json:"storage"`
}

type ServerConfig struct {
	Port      string `mapstructure:"port" json:"port"`
	Workers   int    `mapstructure:"workers" json:"workers"`
	QueueSize int    `mapstructure:"queue_size" json:"queue_size"`
}

type StorageConfig struct {
	Driver          string        `mapstructure:"driver" json:"driver"`
	DSN             string        `mapstructure:"dsn" json:"dsn"`
	Dir             string        `mapstructure:"dir" json:"dir"`
	MaxAge          time.Duration `mapstructure:"max_age" json:"max_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("seed", 0)
	v.SetDefault("rounds", prime.DefaultRounds)
	v.SetDefault("max_attempts", prime.DefaultMaxAttempts)
	v.SetDefault("provider", "asn1")
	v.SetDefault("format", "table")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.workers", 1)
	v.SetDefault("server.queue_size", 0)

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.dsn", "./lcgrsa.db")
	v.SetDefault("storage.dir", "./lcgrsa_storage")
	v.SetDefault("storage.max_age", 24*time.Hour)
	v.SetDefault("storage.cleanup_interval", time.Hour)
}

// Default returns the configuration with no file, env or flag overrides.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, _ := decode(v)
	return cfg
}

// Load reads configuration into v from cfgFile, or from $HOME/.lcgrsa.yaml
// when cfgFile is empty, then from LCGRSA_* environment variables. Flags
// bound to v before the call take precedence.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to find home directory: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Rounds < 1 {
		return fmt.Errorf("%w: rounds must be at least 1, got %d", ErrInvalidConfig, c.Rounds)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must not be negative", ErrInvalidConfig)
	}
	if _, err := interchange.NewProvider(c.Provider); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("%w: server.workers must be at least 1", ErrInvalidConfig)
	}
	if c.Server.QueueSize < 0 {
		return fmt.Errorf("%w: server.queue_size must not be negative", ErrInvalidConfig)
	}
	return nil
}

// PrimeOptions translates the search settings into generator options.
func (c *Config) PrimeOptions() []prime.Option {
	return []prime.Option{
		prime.WithRounds(c.Rounds),
		prime.WithMaxAttempts(c.MaxAttempts),
	}
}

// NewBridge returns a PEM bridge using the configured provider.
func (c *Config) NewBridge() (*interchange.Bridge, error) {
	p, err := interchange.NewProvider(c.Provider)
	if err != nil {
		return nil, err
	}
	return interchange.NewBridge(p), nil
}

// KeyDir is where generated PEM files are written.
func (c *Config) KeyDir() string {
	return filepath.Join(c.Storage.Dir, "keys")
}
