package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ReactionPolicy controls how an incoming reaction merges with the
// reactions already stored on a message.
type ReactionPolicy string

const (
	// ReactionAppend blindly appends every incoming reaction.
	ReactionAppend ReactionPolicy = "append"
	// ReactionReplace replaces a prior reaction from the same participant.
	ReactionReplace ReactionPolicy = "replace"
)

// Config represents ~/.chatsync/config.toml.
type Config struct {
	ServerAddr     string         `toml:"server_addr"`
	Insecure       bool           `toml:"insecure"`
	DefaultSession string         `toml:"default_session"`
	AccountID      string         `toml:"account_id"`
	ReactionPolicy ReactionPolicy `toml:"reaction_policy"`

	// Reconnect backoff bounds, e.g. "500ms" / "30s".
	BackoffInitial duration `toml:"backoff_initial"`
	BackoffMax     duration `toml:"backoff_max"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultSession: "default",
		ReactionPolicy: ReactionAppend,
		BackoffInitial: duration{500 * time.Millisecond},
		BackoffMax:     duration{30 * time.Second},
	}
}

// Load reads config from path, layered over defaults. A missing file is an
// error; callers that accept absence should stat first.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	switch c.ReactionPolicy {
	case ReactionAppend, ReactionReplace:
	default:
		return fmt.Errorf("unknown reaction_policy %q", c.ReactionPolicy)
	}
	if c.BackoffInitial.Duration <= 0 || c.BackoffMax.Duration < c.BackoffInitial.Duration {
		return fmt.Errorf("invalid backoff bounds: initial=%s max=%s", c.BackoffInitial, c.BackoffMax)
	}
	return nil
}

// Save writes config to path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// BackoffBounds returns the reconnect backoff window.
func (c *Config) BackoffBounds() (initial, max time.Duration) {
	return c.BackoffInitial.Duration, c.BackoffMax.Duration
}
