// Package config loads the daemon's runtime configuration: database
// path and outer passphrase, optional backups directory, and the IPC
// socket path. It layers a TOML file, PASD_*-prefixed environment
// variables, and CLI flags through viper, mirroring the kgiusti
// teacher's BindPFlags-then-ReadInConfig wiring.
package config

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nullgarden/pasd/internal/pasdlog"
)

const defaultTOML = `# Path to database.
# db_path = "/path/to/database"

# Outer encryption key. (store it somewhere else)
# db_key = "outer encryption key"

# Directory backups of the database are written to.
# backups_path = "/path/to/backups"

# Path to the IPC socket.
# ipc_socket_path = "/tmp/pasd.sock"
`

// Config mirrors the record spec.md §6 describes. DBPath and DBKey are
// fixed for the process lifetime once the daemon has opened its
// database; BackupsPath and IPCSocketPath may be changed by a config
// reload (see Watch).
type Config struct {
	DBPath        string
	DBKey         string
	BackupsPath   string
	IPCSocketPath string
	LogLevel      pasdlog.Level
	LogJSON       bool
}

// defaultIPCSocketPath matches original_source/src/main.rs's fallback.
const defaultIPCSocketPath = "/tmp/pasd.sock"

// BindFlags registers the CLI flags config.Load reads through viper.
// Call once against a cobra command's persistent flag set before
// Load.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "path to the configuration file")
	flags.String("db", "", "path to the database file")
	flags.String("db-key", "", "outer encryption passphrase")
	flags.String("backups", "", "directory backups are written to")
	flags.String("socket", "", "path to the IPC unix socket")
	flags.Bool("debug", false, "enable debug logging")
}

// Load builds a Config from (in increasing precedence) a TOML config
// file, PASD_*-prefixed environment variables, and CLI flags already
// bound to v via BindFlags+v.BindPFlags. If no config file exists at
// the resolved path, a commented default one is written so an
// operator has a template to edit.
func Load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("pasd")
	v.AutomaticEnv()

	configFile := v.GetString("config")
	if configFile == "" {
		configFile = filepath.Join(configDir(), "config.toml")
	}
	if err := ensureDefaultFile(filepath.Dir(configFile), filepath.Base(configFile)); err != nil {
		return Config{}, err
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	cfg := Config{
		DBPath:        firstNonEmpty(v.GetString("db"), v.GetString("db_path")),
		DBKey:         firstNonEmpty(v.GetString("db-key"), v.GetString("db_key")),
		BackupsPath:   firstNonEmpty(v.GetString("backups"), v.GetString("backups_path")),
		IPCSocketPath: firstNonEmpty(v.GetString("socket"), v.GetString("ipc_socket_path")),
		LogLevel:      pasdlog.InfoLevel,
		LogJSON:       false,
	}
	if cfg.IPCSocketPath == "" {
		cfg.IPCSocketPath = defaultIPCSocketPath
	}
	if v.GetBool("debug") {
		cfg.LogLevel = pasdlog.DebugLevel
	}
	return cfg, nil
}

// Watch installs a viper config-file watcher that invokes onReload
// with the current backups_path and ipc_socket_path whenever the
// config file changes on disk, whether or not those two values
// changed. db_path and
// db_key are intentionally not re-read: the database is already open
// under the old value and a fixed passphrase for the process lifetime.
func Watch(v *viper.Viper, onReload func(backupsPath, ipcSocketPath string)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		pasdlog.Logger.Debug().Str("file", e.Name).Msg("config file changed, reloading")
		backups := firstNonEmpty(v.GetString("backups"), v.GetString("backups_path"))
		socket := firstNonEmpty(v.GetString("socket"), v.GetString("ipc_socket_path"))
		onReload(backups, socket)
	})
	v.WatchConfig()
}

// configDir reveals the platform config directory for "pasd",
// following the original's reveal_dir_path: /etc/pasd when $HOME is
// /root, otherwise $XDG_CONFIG_HOME/pasd or ~/.config/pasd.
func configDir() string {
	home := os.Getenv("HOME")
	if home == "/root" {
		return "/etc/pasd"
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pasd")
	}
	return filepath.Join(home, ".config", "pasd")
}

// firstNonEmpty prefers a flag/env-bound key over the config file's
// long-form key, since flags are the higher-precedence layer but
// viper has no single key both layers agree on here.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func ensureDefaultFile(dir, name string) error {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultTOML), 0o600)
}
