package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/breeze-rmm/vdd/internal/logging"
	"github.com/breeze-rmm/vdd/internal/protocol"
)

// Config controls how the client talks to the adapter.
type Config struct {
	AdapterGUID   string        `mapstructure:"adapter_guid"`
	MaxDisplays   int           `mapstructure:"max_displays"`
	Timeouts      TimeoutConfig `mapstructure:"timeouts"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	LogFile       string        `mapstructure:"log_file"`
	LogMaxSizeMB  int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups int           `mapstructure:"log_max_backups"`
}

// TimeoutConfig overrides per-command budgets. Zero keeps the default.
type TimeoutConfig struct {
	VersionMs int `mapstructure:"version_ms"`
	AddMs     int `mapstructure:"add_ms"`
	RemoveMs  int `mapstructure:"remove_ms"`
	UpdateMs  int `mapstructure:"update_ms"`
}

// DefaultMaxDisplays is half of the 16 displays the driver supports per
// adapter; plugging more in quick succession makes hot-plug lag badly.
const DefaultMaxDisplays = 8

func Default() *Config {
	return &Config{
		AdapterGUID:   protocol.AdapterGUID,
		MaxDisplays:   DefaultMaxDisplays,
		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  logging.DefaultMaxSizeMB,
		LogMaxBackups: logging.DefaultMaxBackups,
	}
}

// Load reads cfgFile, or vdd.yaml from the config directory when cfgFile is
// empty. A missing file is not an error. VDD_* environment variables
// override file values, e.g. VDD_TIMEOUTS_ADD_MS.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("vdd")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VDD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"adapter_guid", "max_displays",
		"timeouts.version_ms", "timeouts.add_ms", "timeouts.remove_ms", "timeouts.update_ms",
		"log_level", "log_format", "log_file", "log_max_size_mb", "log_max_backups",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ProtocolTimeouts converts the configured budgets.
func (c *Config) ProtocolTimeouts() protocol.Timeouts {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return protocol.Timeouts{
		Version: ms(c.Timeouts.VersionMs),
		Add:     ms(c.Timeouts.AddMs),
		Remove:  ms(c.Timeouts.RemoveMs),
		Update:  ms(c.Timeouts.UpdateMs),
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "VirtualDisplay")
	case "darwin":
		return "/Library/Application Support/VirtualDisplay"
	default:
		return "/etc/vdd"
	}
}
