package stream

import (
	"fmt"
	"os"
	"strings"
)

// FileTokenSource reads the bearer token from a session file on every call,
// so a token refreshed by another process is picked up without a restart.
type FileTokenSource struct {
	Path string
}

func (s *FileTokenSource) Token() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", s.Path)
	}
	return token, nil
}

// StaticTokenSource returns a fixed token. Used in tests.
type StaticTokenSource string

func (s StaticTokenSource) Token() (string, error) { return string(s), nil }
