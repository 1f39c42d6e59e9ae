package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginPolicyAllow(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{
			name:    "absent origin always admitted",
			allowed: []string{"http://app.example.com"},
			origin:  "",
			want:    true,
		},
		{
			name:    "absent origin admitted with empty allow list",
			allowed: nil,
			origin:  "",
			want:    true,
		},
		{
			name:    "exact match",
			allowed: []string{"http://app.example.com"},
			origin:  "http://app.example.com",
			want:    true,
		},
		{
			name:    "wildcard port",
			allowed: []string{"http://localhost:*"},
			origin:  "http://localhost:5173",
			want:    true,
		},
		{
			name:    "wildcard subdomain",
			allowed: []string{"https://*.example.com"},
			origin:  "https://scan.example.com",
			want:    true,
		},
		{
			name:    "non-matching origin rejected",
			allowed: []string{"http://localhost:*"},
			origin:  "http://evil.example.com",
			want:    false,
		},
		{
			name:    "empty allow list rejects declared origins",
			allowed: nil,
			origin:  "http://app.example.com",
			want:    false,
		},
		{
			name:    "pattern is anchored",
			allowed: []string{"http://localhost"},
			origin:  "http://localhost.evil.example.com",
			want:    false,
		},
		{
			name:    "regex metacharacters are literal",
			allowed: []string{"http://app.example.com"},
			origin:  "http://appXexampleXcom",
			want:    false,
		},
		{
			name:    "blank entries ignored",
			allowed: []string{"", "  ", "http://localhost:*"},
			origin:  "http://localhost:8080",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewOriginPolicy(tt.allowed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, policy.Allow(tt.origin))
		})
	}
}
