package stream

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsAuthError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unauthenticated", status.Error(codes.Unauthenticated, "token expired"), true},
		{"permission denied", status.Error(codes.PermissionDenied, "no access"), true},
		{"unavailable", status.Error(codes.Unavailable, "connection reset"), false},
		{"marker text", errors.New("rpc failed: Invalid Token supplied"), true},
		{"plain network error", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAuthError(tc.err); got != tc.want {
				t.Errorf("IsAuthError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
