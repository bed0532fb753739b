package server

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestOriginPolicy(t *testing.T) {
	policy := NewOriginPolicy([]string{" HTTP://LocalHost:8080 ", "not a url", "", "https://app.example.com/path"}, zerolog.Nop())

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:8080", true},
		{"https://app.example.com", true},
		{"https://APP.example.com", true},
		{"http://localhost:9090", false},
		{"https://evil.example.com", false},
		{"", false},
		{"::::", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, policy.CheckOrigin(r))
		})
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	policy := NewOriginPolicy([]string{"*"}, zerolog.Nop())
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anything.example.org")
	require.True(t, policy.Allowed(r))
}
