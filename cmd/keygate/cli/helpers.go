package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/faucetdb/keygate/internal/config"
	"github.com/faucetdb/keygate/internal/service"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// KEYGATE_DATA_DIR env var, or ~/.keygate as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("KEYGATE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".keygate")
}

// loadConfig builds the effective configuration: defaults, then the YAML
// file (--config, or keygate.yaml found by viper), then KEYGATE_* env vars.
func loadConfig() (*config.YAMLConfig, error) {
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}

	cfg := config.DefaultYAMLConfig()
	if path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		switch {
		case err == nil:
			cfg = loaded
		case cfgFile == "" && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	applyEnvOverrides(cfg, envViper())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envViper returns a viper instance that only sees KEYGATE_* variables, so
// raw ${VAR} references in the config file never override expanded values.
func envViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("KEYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func applyEnvOverrides(cfg *config.YAMLConfig, v *viper.Viper) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	setString("server.host", &cfg.Server.Host)
	setInt("server.port", &cfg.Server.Port)
	setInt("server.rate_limit", &cfg.Server.RateLimit)
	setString("server.shutdown_timeout", &cfg.Server.ShutdownTimeout)
	setString("store.driver", &cfg.Store.Driver)
	setString("store.dsn", &cfg.Store.DSN)
	setString("auth.master_key", &cfg.Auth.MasterKey)
	setString("auth.api_key_header", &cfg.Auth.APIKeyHeader)
	setString("logging.level", &cfg.Logging.Level)
	setString("logging.format", &cfg.Logging.Format)
}

// openKeyStore opens the configured key store. The sqlite driver without a
// DSN uses keygate.db in the data directory.
func openKeyStore(cfg *config.YAMLConfig) (*config.Store, error) {
	if cfg.Store.Driver == config.DriverSQLite && cfg.Store.DSN == "" {
		return config.NewStore(resolveDataDir())
	}
	return config.OpenStore(cfg.Store.Driver, cfg.Store.DSN)
}

// openKeyService loads the configuration and opens the store behind a
// KeyService. The caller must close the returned store.
func openKeyService() (*service.KeyService, *config.Store, *config.YAMLConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := openKeyStore(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open key store: %w", err)
	}
	return service.NewKeyService(store, cfg.Auth.MasterKey), store, cfg, nil
}

// newLogger builds the process logger from the logging section. dev forces
// debug level.
func newLogger(w io.Writer, cfg config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = slog.LevelInfo
		}
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// wantJSON reports whether command output should be JSON: either requested
// explicitly or stdout is not a terminal.
func wantJSON(jsonFlag bool) bool {
	return jsonFlag || !isTerminal(os.Stdout)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
