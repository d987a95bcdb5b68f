package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override, e.g. STUDYDECK_ADDR or
// STUDYDECK_LOG__LEVEL for nested keys.
const EnvPrefix = "STUDYDECK_"

// Config is the runtime configuration of studydeck.
type Config struct {
	DB          string        `koanf:"db" validate:"required"`
	Addr        string        `koanf:"addr" validate:"required,hostname_port"`
	ReposDir    string        `koanf:"repos_dir" validate:"required"`
	SyncOnStart bool          `koanf:"sync_on_start"`
	SaveTimeout time.Duration `koanf:"save_timeout" validate:"gt=0"`
	SessionTTL  time.Duration `koanf:"session_ttl" validate:"gt=0"`
	Log         LogConfig     `koanf:"log"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

var defaults = map[string]any{
	"db":            "studydeck.db",
	"addr":          "127.0.0.1:8080",
	"repos_dir":     "repos",
	"sync_on_start": false,
	"save_timeout":  5 * time.Second,
	"session_ttl":   30 * time.Minute,
	"log.level":     "info",
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"db":           "db",
	"addr":         "addr",
	"repos-dir":    "repos_dir",
	"sync":         "sync_on_start",
	"save-timeout": "save_timeout",
	"session-ttl":  "session_ttl",
	"log-level":    "log.level",
}

// RegisterFlags adds the configuration flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("db", defaults["db"].(string), "Path to the SQLite database file")
	flags.String("addr", defaults["addr"].(string), "HTTP listen address")
	flags.String("repos-dir", defaults["repos_dir"].(string), "Directory for git deck checkouts")
	flags.Bool("sync", false, "Sync all deck sources before serving")
	flags.Duration("save-timeout", defaults["save_timeout"].(time.Duration), "Timeout for persisting a graded card")
	flags.Duration("session-ttl", defaults["session_ttl"].(time.Duration), "How long an idle review session is kept")
	flags.String("log-level", defaults["log.level"].(string), "Log level: debug, info, warn or error")
}

// Load layers defaults, the YAML file named by --config (if any), STUDYDECK_
// environment variables and explicitly set flags, in that order, then
// validates the result. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("config: default %s: %w", key, err)
		}
	}

	var path string
	if flags != nil {
		path, _ = flags.GetString("config")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: file %s not found", path)
			}
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("config: loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns STUDYDECK_LOG__LEVEL into log.level.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Logger returns a text slog.Logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
