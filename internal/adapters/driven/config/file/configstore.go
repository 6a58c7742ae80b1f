package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the persisted settings file, stored as TOML.
type Config struct {
	// DataDir roots the local payload store, SQLite database, and
	// telemetry mirror. Empty means ~/.kapsel/data.
	DataDir string `toml:"data_dir"`

	// MaxPayloadBytes caps a single capture. Zero means the default.
	MaxPayloadBytes int64 `toml:"max_payload_bytes"`

	Upload UploadConfig `toml:"upload"`
	Google GoogleConfig `toml:"google"`
}

// UploadConfig tunes the sync engine.
type UploadConfig struct {
	// RemoteRoot is the top-level remote folder. Empty means "kapsel".
	RemoteRoot string `toml:"remote_root"`

	// Workers drains the upload queue. Zero means 2.
	Workers int `toml:"workers"`

	// ReconcileInterval is a Go duration string, e.g. "24h".
	ReconcileInterval string `toml:"reconcile_interval"`

	// BackoffBase and BackoffMax are Go duration strings bounding the
	// retry delay for transient upload failures.
	BackoffBase string `toml:"backoff_base"`
	BackoffMax  string `toml:"backoff_max"`
}

// GoogleConfig holds the OAuth client used for Drive access.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// ConfigStore reads and writes the TOML settings file.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	config   Config
}

// NewConfigStore creates a config store rooted at configDir. If
// configDir is empty, defaults to ~/.kapsel.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".kapsel")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
	}

	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

// Config returns a copy of the current configuration.
func (s *ConfigStore) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Update applies fn to the configuration and persists the result.
func (s *ConfigStore) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.config)
	return s.save()
}

// Load reads the TOML file; a missing file yields the zero config.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.config = Config{}
			return nil
		}
		return err
	}

	var loaded Config
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}
	s.config = loaded
	return nil
}

// save writes the config to disk (caller must hold lock).
func (s *ConfigStore) save() error {
	data, err := toml.Marshal(s.config)
	if err != nil {
		return err
	}
	// Restricted permissions: the file can carry an OAuth client secret.
	return os.WriteFile(s.filePath, data, 0600)
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// ReconcileInterval parses the configured interval, falling back to def.
func (c Config) ReconcileInterval(def time.Duration) time.Duration {
	return parseDuration(c.Upload.ReconcileInterval, def)
}

// BackoffBase parses the configured base delay, falling back to def.
func (c Config) BackoffBase(def time.Duration) time.Duration {
	return parseDuration(c.Upload.BackoffBase, def)
}

// BackoffMax parses the configured delay ceiling, falling back to def.
func (c Config) BackoffMax(def time.Duration) time.Duration {
	return parseDuration(c.Upload.BackoffMax, def)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
