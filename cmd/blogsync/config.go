package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	blogsync "github.com/Sekunev/BE-WORKSHOP-sub000"
	mapstructure "github.com/go-viper/mapstructure/v2"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.blogsync/config.toml.
type Config struct {
	Default DefaultConfig `toml:"default" mapstructure:"default"`
	Storage StorageConfig `toml:"storage" mapstructure:"storage"`
	Cache   CacheConfig   `toml:"cache" mapstructure:"cache"`
	Offline OfflineConfig `toml:"offline" mapstructure:"offline"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
}

// DefaultConfig holds the backend connection settings.
type DefaultConfig struct {
	APIKey  string `toml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL string `toml:"base_url,omitempty" mapstructure:"base_url"`
}

// StorageConfig selects the local persistence engine.
type StorageConfig struct {
	Driver   string `toml:"driver,omitempty" mapstructure:"driver"`
	Path     string `toml:"path,omitempty" mapstructure:"path"`
	Compress bool   `toml:"compress,omitempty" mapstructure:"compress"`
}

// CacheConfig sizes the response cache. A disabled headroom is stored as
// blogsync.NoHeadroom, since a zero would be omitted and read back as the
// default.
type CacheConfig struct {
	MaxSize       int64    `toml:"max_size,omitempty" mapstructure:"max_size"`
	Headroom      float64  `toml:"headroom,omitempty" mapstructure:"headroom"`
	SweepInterval Duration `toml:"sweep_interval,omitempty" mapstructure:"sweep_interval"`
	TTL           Duration `toml:"ttl,omitempty" mapstructure:"ttl"`
}

// OfflineConfig tunes the sync engine.
type OfflineConfig struct {
	MaxRetries     int      `toml:"max_retries,omitempty" mapstructure:"max_retries"`
	RequestTimeout Duration `toml:"request_timeout,omitempty" mapstructure:"request_timeout"`
}

// LogConfig sets the log level (debug, info, warn, error).
type LogConfig struct {
	Level string `toml:"level,omitempty" mapstructure:"level"`
}

// Duration is a time.Duration written as "1h30m" in the config file.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// ============================================================================
// Config helpers
// ============================================================================

// configFile overrides the default config location (--config).
var configFile string

// configDir returns the directory holding the config file, creating it if needed.
func configDir() (string, error) {
	if configFile != "" {
		dir := filepath.Dir(configFile)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("cannot create config directory: %w", err)
		}
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".blogsync")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file.
func configPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// readConfigFile parses the config file as written, without defaults or
// environment overrides. A missing file yields a zero Config.
func readConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// loadConfig returns the effective configuration: defaults, then the file,
// then BLOGSYNC_* environment variables (BLOGSYNC_STORAGE_DRIVER, ...).
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v, filepath.Dir(path))

	v.SetEnvPrefix("BLOGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("default.api_key", "")
	v.SetDefault("default.base_url", "http://localhost:5000")

	v.SetDefault("storage.driver", "badger")
	v.SetDefault("storage.path", filepath.Join(dir, "data"))
	v.SetDefault("storage.compress", false)

	v.SetDefault("cache.max_size", 50<<20)
	v.SetDefault("cache.headroom", 0.1)
	v.SetDefault("cache.sweep_interval", "1h")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("offline.max_retries", 3)
	v.SetDefault("offline.request_timeout", "15s")

	v.SetDefault("log.level", "warn")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}
}

// setConfigValue sets a config field using dot notation (e.g. "default.api_key").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. default.api_key)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "default":
		switch field {
		case "api_key":
			cfg.Default.APIKey = value
		case "base_url":
			cfg.Default.BaseURL = value
		default:
			return fmt.Errorf("unknown field %q in section [default]", field)
		}
	case "storage":
		switch field {
		case "driver":
			switch value {
			case "badger", "sqlite", "memory":
			default:
				return fmt.Errorf("storage.driver must be badger, sqlite or memory")
			}
			cfg.Storage.Driver = value
		case "path":
			cfg.Storage.Path = value
		case "compress":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("storage.compress: %w", err)
			}
			cfg.Storage.Compress = b
		default:
			return fmt.Errorf("unknown field %q in section [storage]", field)
		}
	case "cache":
		switch field {
		case "max_size":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return fmt.Errorf("cache.max_size must be a byte count")
			}
			cfg.Cache.MaxSize = n
		case "headroom":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil || (f < 0 && f != blogsync.NoHeadroom) || f >= 1 {
				return fmt.Errorf("cache.headroom must be in [0, 1)")
			}
			if f == 0 {
				f = blogsync.NoHeadroom
			}
			cfg.Cache.Headroom = f
		case "sweep_interval":
			return cfg.Cache.SweepInterval.UnmarshalText([]byte(value))
		case "ttl":
			return cfg.Cache.TTL.UnmarshalText([]byte(value))
		default:
			return fmt.Errorf("unknown field %q in section [cache]", field)
		}
	case "offline":
		switch field {
		case "max_retries":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return fmt.Errorf("offline.max_retries must be a positive integer")
			}
			cfg.Offline.MaxRetries = n
		case "request_timeout":
			return cfg.Offline.RequestTimeout.UnmarshalText([]byte(value))
		default:
			return fmt.Errorf("unknown field %q in section [offline]", field)
		}
	case "log":
		if field != "level" {
			return fmt.Errorf("unknown field %q in section [log]", field)
		}
		cfg.Log.Level = value
	default:
		return fmt.Errorf("unknown config section %q (valid: default, storage, cache, offline, log)", section)
	}
	return nil
}

// ============================================================================
// config command
// ============================================================================

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configShowCmd.Flags().BoolVar(&configShowEffective, "effective", false, "Print the merged configuration (defaults, file, environment)")
}

var configShowEffective bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage blogsync configuration",
	Long:  "View or modify the blogsync CLI configuration stored in ~/.blogsync/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if configShowEffective {
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			data, err := toml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("cannot marshal config: %w", err)
			}
			fmt.Fprint(out, string(data))
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintln(out, "No configuration file found. Run 'blogsync init <api-key>' to create one.")
				return nil
			}
			return fmt.Errorf("cannot read config file: %w", err)
		}
		fmt.Fprint(out, string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: blogsync config set storage.driver sqlite",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		path, err := configPath()
		if err != nil {
			return err
		}
		cfg, err := readConfigFile(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}

		if err := saveConfig(path, cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}
