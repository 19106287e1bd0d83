package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const appName = "listen4me"

// Environment overrides, read after the TOML file.
const (
	EnvLogLevel = "LISTEN4ME_LOG_LEVEL"
	EnvSMTPPass = "LISTEN4ME_SMTP_PASS"
	EnvDBPath   = "LISTEN4ME_DB"
)

// Config holds all application configuration
type Config struct {
	Version    int              `toml:"version"`
	LogLevel   string           `toml:"log_level"`
	Categories []CategoryConfig `toml:"categories"`
	Spikes     SpikesConfig     `toml:"spikes"`
	Ingest     IngestConfig     `toml:"ingest"`
	Report     ReportConfig     `toml:"report"`
	Store      StoreConfig      `toml:"store"`
	Email      EmailConfig      `toml:"email"`
}

// CategoryConfig is one bucket definition. The order of [[categories]]
// entries in the file is the classification precedence.
type CategoryConfig struct {
	Name    string `toml:"name"`
	Pattern string `toml:"pattern"`
}

type SpikesConfig struct {
	Window int     `toml:"window"`
	Sigma  float64 `toml:"sigma"`
}

type IngestConfig struct {
	HeaderRow     int    `toml:"header_row"` // lines to skip before the CSV header
	DefaultOrigin string `toml:"default_origin"`
	BatchSize     int    `toml:"batch_size"`
}

type ReportConfig struct {
	LookbackDays int      `toml:"lookback_days"`
	Schedule     string   `toml:"schedule"` // cron spec
	Timezone     string   `toml:"timezone"`
	TopN         int      `toml:"top_n"`
	SampleLimit  int      `toml:"sample_limit"`
	OutputDir    string   `toml:"output_dir"`
	Categories   []string `toml:"categories"` // empty means every configured category
	EmailReport  bool     `toml:"email_report"`
	RunOnStart   bool     `toml:"run_on_start"` // service renders a report at startup
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type EmailConfig struct {
	Provider string `toml:"provider"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass"`
	FromAddr string `toml:"from_address"`
	ToAddr   string `toml:"to_address"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version:    1,
		LogLevel:   "info",
		Categories: DefaultCategories(),
		Spikes: SpikesConfig{
			Window: 7,
			Sigma:  2.5,
		},
		Ingest: IngestConfig{
			HeaderRow:     0,
			DefaultOrigin: "other",
			BatchSize:     500,
		},
		Report: ReportConfig{
			LookbackDays: 30,
			Schedule:     "0 7 * * *",
			Timezone:     "UTC",
			TopN:         10,
			SampleLimit:  200,
		},
		Email: EmailConfig{
			Provider: "smtp",
			SMTPPort: 587,
		},
	}
}

// Validate checks values that would otherwise fail deep inside a run.
// Category patterns are compiled (and rejected) by the classifier.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("no categories configured"))
	}
	if c.Spikes.Window < 1 {
		errs = append(errs, fmt.Errorf("spikes.window must be >= 1, got %d", c.Spikes.Window))
	}
	if c.Spikes.Sigma <= 0 {
		errs = append(errs, fmt.Errorf("spikes.sigma must be > 0, got %v", c.Spikes.Sigma))
	}
	if c.Ingest.HeaderRow < 0 {
		errs = append(errs, fmt.Errorf("ingest.header_row must be >= 0, got %d", c.Ingest.HeaderRow))
	}
	if c.Report.TopN < 1 {
		errs = append(errs, fmt.Errorf("report.top_n must be >= 1, got %d", c.Report.TopN))
	}
	return errors.Join(errs...)
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the directory for cached pipeline output.
// On macOS this is ~/Library/Caches/listen4me/
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, appName), nil
}

// DBPath returns the sqlite path, honouring store.path and LISTEN4ME_DB.
func (c *Config) DBPath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "posts.db"), nil
}

// ReportDir returns where rendered reports are written.
func (c *Config) ReportDir() (string, error) {
	if c.Report.OutputDir != "" {
		return c.Report.OutputDir, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "reports"), nil
}

// Load reads config from the default location
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from path. Keys missing from the file keep their
// defaults; a file that lists categories replaces the default vocabulary.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.Categories = nil

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadOrDefault is LoadFrom, except a missing file yields the defaults.
// The bool reports whether the file existed.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := LoadFrom(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.applyEnv()
		return cfg, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// applyEnv loads .env (if present) and applies environment overrides.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvSMTPPass); v != "" {
		c.Email.SMTPPass = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Store.Path = v
	}
}

// Save writes config to the default location
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes config to path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
