package session

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsAreSessionScoped(t *testing.T) {
	for _, tc := range []struct {
		desc string
		path string
		want string
	}{
		{"store", StorePath("work"), filepath.Join("sessions", "work", "chatsync.db")},
		{"token", TokenPath("work"), filepath.Join("sessions", "work", "token")},
		{"lock", LockPath("work"), filepath.Join("sessions", "work", "LOCK")},
		{"log", LogPath("work"), filepath.Join("sessions", "work", "logs", "chatsyncd.log")},
	} {
		if !strings.HasSuffix(tc.path, tc.want) {
			t.Errorf("%s path = %q, want suffix %q", tc.desc, tc.path, tc.want)
		}
	}
}

func TestDistinctSessionsDoNotCollide(t *testing.T) {
	if StorePath("a") == StorePath("b") {
		t.Error("store paths for distinct sessions collide")
	}
}
