package stream

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsAuthError reports whether err means the session token is no longer
// valid. Auth failures must not be retried: the supervisor surfaces them to
// the user instead of reconnecting.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return true
		}
	}
	// Some server builds report token rejection as a plain error string.
	return strings.Contains(strings.ToLower(err.Error()), "invalid token")
}
