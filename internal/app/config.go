package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aussiebroadwan/iotrac/pkg/poller"
)

// Store drivers.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Sealing modes for stored credentials.
const (
	SealKeyfile    = "keyfile"
	SealPassphrase = "passphrase"
	SealNone       = "none"
)

type PollConfig struct {
	Connection time.Duration `mapstructure:"connection"`
	Devices    time.Duration `mapstructure:"devices"`
	Logs       time.Duration `mapstructure:"logs"`
	Protection time.Duration `mapstructure:"protection"`
}

type Config struct {
	APIURL  string        `mapstructure:"api_url"`  // Backend base URL (default: http://localhost:8000)
	Timeout time.Duration `mapstructure:"timeout"`  // Per-request timeout (default: 15s)
	Output  string        `mapstructure:"output"`   // CLI output format: table, json, yaml (default: table)

	StoreDriver    string `mapstructure:"store_driver"`    // file, sqlite or memory (default: file)
	StorePath      string `mapstructure:"store_path"`      // Default: <user config dir>/iotrac/credentials.{json,db}
	Seal           string `mapstructure:"seal"`            // keyfile, passphrase or none (default: keyfile)
	SealKeyFile    string `mapstructure:"seal_key_file"`   // Default: <store dir>/seal.key
	SealPassphrase string `mapstructure:"seal_passphrase"` // Required when seal is passphrase

	Env       string `mapstructure:"env"`        // dev, staging, prod (default: dev)
	LogLevel  string `mapstructure:"log_level"`  // debug, info, warn, error (default: warn)
	LogFormat string `mapstructure:"log_format"` // json or text (default: text)

	ResendInterval time.Duration `mapstructure:"resend_interval"` // Minimum gap between code resends (default: 30s)
	RequireTOTP    bool          `mapstructure:"require_totp"`    // Also send logins without a second factor to enrolment (default: false)

	Poll PollConfig `mapstructure:"poll"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "http://localhost:8000")
	v.SetDefault("timeout", "15s")
	v.SetDefault("output", "table")
	v.SetDefault("store_driver", StoreFile)
	v.SetDefault("store_path", "")
	v.SetDefault("seal", SealKeyfile)
	v.SetDefault("seal_key_file", "")
	v.SetDefault("seal_passphrase", "")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
	v.SetDefault("resend_interval", "30s")
	v.SetDefault("require_totp", false)
	v.SetDefault("poll.connection", poller.ConnectionInterval.String())
	v.SetDefault("poll.devices", poller.DevicesInterval.String())
	v.SetDefault("poll.logs", poller.LogsInterval.String())
	v.SetDefault("poll.protection", poller.ProtectionInterval.String())
}

// LoadConfig reads, in increasing priority: defaults, the YAML config file
// (file, or $HOME/.iotrac.yaml when file is empty), a .env file in the
// working directory, and IOTRAC_* environment variables. A missing default
// config file is not an error; a missing explicit one is.
func LoadConfig(file string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".iotrac")
	}

	v.SetEnvPrefix("IOTRAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.resolvePaths(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields LoadConfig cannot default.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api_url %q: must be an http(s) URL", c.APIURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s: must be positive", c.Timeout)
	}

	switch c.StoreDriver {
	case StoreFile, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("invalid store_driver %q: want file, sqlite or memory", c.StoreDriver)
	}

	switch c.Seal {
	case SealKeyfile, SealNone:
	case SealPassphrase:
		if c.SealPassphrase == "" {
			return errors.New("seal_passphrase is required when seal is passphrase")
		}
	default:
		return fmt.Errorf("invalid seal %q: want keyfile, passphrase or none", c.Seal)
	}

	switch c.Output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid output %q: want table, json or yaml", c.Output)
	}
	return nil
}

// resolvePaths fills in the store and key file locations under the user's
// config directory.
func (c *Config) resolvePaths() error {
	if c.StoreDriver == StoreMemory {
		return nil
	}

	if c.StorePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("failed to locate config directory: %w", err)
		}
		name := "credentials.json"
		if c.StoreDriver == StoreSQLite {
			name = "credentials.db"
		}
		c.StorePath = filepath.Join(dir, "iotrac", name)
	}

	if c.SealKeyFile == "" {
		c.SealKeyFile = filepath.Join(filepath.Dir(c.StorePath), "seal.key")
	}
	return nil
}

// StateDir is the directory holding the store and its companions.
func (c Config) StateDir() string {
	if c.StorePath == "" {
		return os.TempDir()
	}
	return filepath.Dir(c.StorePath)
}
