package session

import (
	"os"

	"github.com/yarsha/chatsync/internal/config"
)

// Resolve picks the session name: explicit flag, then config default,
// then "default".
func Resolve(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if _, err := os.Stat(ConfigPath()); err == nil {
		if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
			return cfg.DefaultSession
		}
	}
	return "default"
}
