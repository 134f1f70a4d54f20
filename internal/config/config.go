// Package config loads parkd settings from a YAML file, PARKD_* environment
// variables and command-line overrides, in increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/facilities"
)

// EnvPrefix is the prefix of environment overrides: cache.path is read
// from PARKD_CACHE_PATH.
const EnvPrefix = "PARKD"

// Config is the full parkd configuration.
type Config struct {
	DataDir      string             `mapstructure:"data_dir"`
	Offline      bool               `mapstructure:"offline"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Facilities   FacilitiesConfig   `mapstructure:"facilities"`
	Geocoder     GeocoderConfig     `mapstructure:"geocoder"`
	Reachability ReachabilityConfig `mapstructure:"reachability"`
	Feed         FeedConfig         `mapstructure:"feed"`
	Log          LogConfig          `mapstructure:"log"`
	Session      SessionConfig      `mapstructure:"session"`
}

// CacheConfig configures the local cache database.
type CacheConfig struct {
	Path   string        `mapstructure:"path"`
	Expiry time.Duration `mapstructure:"expiry"`
}

// RemoteConfig configures the document backend.
type RemoteConfig struct {
	URL       string        `mapstructure:"url"`
	AuthToken string        `mapstructure:"auth_token"`
	Driver    string        `mapstructure:"driver"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// FacilitiesConfig configures the public car park feed.
type FacilitiesConfig struct {
	URL     string        `mapstructure:"url"`
	Lang    string        `mapstructure:"lang"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// GeocoderConfig configures place search.
type GeocoderConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	URL       string        `mapstructure:"url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ReachabilityConfig configures the network monitor.
type ReachabilityConfig struct {
	Root            string        `mapstructure:"root"`
	RecheckInterval time.Duration `mapstructure:"recheck_interval"`
}

// FeedConfig configures the local UI feed server.
type FeedConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures log output.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Quiet      bool   `mapstructure:"quiet"`
}

// SessionConfig configures where the session token is kept.
type SessionConfig struct {
	TokenPath string `mapstructure:"token_path"`
}

// DefaultDataDir returns $HOME/.parkd, or .parkd when there is no home.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parkd"
	}
	return filepath.Join(home, ".parkd")
}

// Default returns the configuration rooted at DefaultDataDir.
func Default() *Config {
	return DefaultIn(DefaultDataDir())
}

// DefaultIn returns the default configuration rooted at dataDir.
func DefaultIn(dataDir string) *Config {
	return &Config{
		DataDir: dataDir,
		Cache: CacheConfig{
			Path:   filepath.Join(dataDir, "cache.db"),
			Expiry: 24 * time.Hour,
		},
		Remote: RemoteConfig{
			URL:     "file:" + filepath.Join(dataDir, "backend.db"),
			Driver:  "sqlite3",
			Timeout: 5 * time.Second,
		},
		Facilities: FacilitiesConfig{
			URL:     facilities.DefaultBaseURL,
			Lang:    string(facilities.LangEnglish),
			Timeout: 15 * time.Second,
		},
		Geocoder: GeocoderConfig{
			Enabled:   true,
			UserAgent: "parkd/1.0",
			Timeout:   5 * time.Second,
		},
		Reachability: ReachabilityConfig{
			Root:            "/sys/class/net",
			RecheckInterval: 2 * time.Second,
		},
		Feed: FeedConfig{Addr: "127.0.0.1:8787"},
		Log: LogConfig{
			File:       filepath.Join(dataDir, "parkd.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Session: SessionConfig{TokenPath: filepath.Join(dataDir, "session.json")},
	}
}

// Load reads the configuration. path selects a config file explicitly;
// otherwise config.yaml in the data directory is used if it exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// data_dir decides every other default, so resolve it first.
	dataDir := DefaultDataDir()
	if env := os.Getenv(EnvPrefix + "_DATA_DIR"); env != "" {
		dataDir = env
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dataDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errs.As(err, &notFound) {
			return nil, errs.Wrapf(err, "failed to read config")
		}
	}
	if fileDir := v.GetString("data_dir"); fileDir != "" {
		dataDir = fileDir
	}

	setDefaults(v, DefaultIn(dataDir))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.Wrapf(err, "failed to decode config")
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Cache.Path = expandHome(cfg.Cache.Path)
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.Session.TokenPath = expandHome(cfg.Session.TokenPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even
// when the file does not mention them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("offline", d.Offline)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.expiry", d.Cache.Expiry)
	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.auth_token", d.Remote.AuthToken)
	v.SetDefault("remote.driver", d.Remote.Driver)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("facilities.url", d.Facilities.URL)
	v.SetDefault("facilities.lang", d.Facilities.Lang)
	v.SetDefault("facilities.timeout", d.Facilities.Timeout)
	v.SetDefault("geocoder.enabled", d.Geocoder.Enabled)
	v.SetDefault("geocoder.url", d.Geocoder.URL)
	v.SetDefault("geocoder.user_agent", d.Geocoder.UserAgent)
	v.SetDefault("geocoder.timeout", d.Geocoder.Timeout)
	v.SetDefault("reachability.root", d.Reachability.Root)
	v.SetDefault("reachability.recheck_interval", d.Reachability.RecheckInterval)
	v.SetDefault("feed.addr", d.Feed.Addr)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.quiet", d.Log.Quiet)
	v.SetDefault("session.token_path", d.Session.TokenPath)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Cache.Path == "" {
		return errs.New("cache.path must be set")
	}
	if c.Cache.Expiry <= 0 {
		return errs.Newf("cache.expiry must be positive (got %s)", c.Cache.Expiry)
	}
	if c.Remote.Timeout <= 0 {
		return errs.Newf("remote.timeout must be positive (got %s)", c.Remote.Timeout)
	}
	if c.Feed.Addr == "" {
		return errs.New("feed.addr must be set")
	}
	return nil
}

// Lang returns the facilities payload language.
func (c *Config) Lang() facilities.Lang {
	return facilities.ParseLang(c.Facilities.Lang)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
