package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProxyV1(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		src     string
		wantErr bool
	}{
		{"tcp4", "PROXY TCP4 192.0.2.1 192.0.2.2 56324 443", "192.0.2.1:56324", false},
		{"tcp6", "PROXY TCP6 2001:db8::1 2001:db8::2 56324 443", "[2001:db8::1]:56324", false},
		{"unknown", "PROXY UNKNOWN", "", false},
		{"unknown with junk", "PROXY UNKNOWN ffff:f...f 65535 65535", "", false},
		{"bad signature", "PROXI TCP4 192.0.2.1 192.0.2.2 1 2", "", true},
		{"missing fields", "PROXY TCP4 192.0.2.1 192.0.2.2 56324", "", true},
		{"bad protocol", "PROXY TCP9 192.0.2.1 192.0.2.2 1 2", "", true},
		{"bad address", "PROXY TCP4 nonsense 192.0.2.2 1 2", "", true},
		{"v6 address under tcp4", "PROXY TCP4 ::1 ::1 1 2", "", true},
		{"v4 address under tcp6", "PROXY TCP6 192.0.2.1 2001:db8::2 1 2", "", true},
		{"bad port", "PROXY TCP4 192.0.2.1 192.0.2.2 1 99999", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := parseProxyV1(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.src, src)
		})
	}
}

func TestBuildProxyV1(t *testing.T) {
	line := buildProxyV1("192.0.2.1:56324", "192.0.2.2:443")
	assert.Equal(t, "PROXY TCP4 192.0.2.1 192.0.2.2 56324 443\r\n", string(line))

	line = buildProxyV1("[2001:db8::1]:56324", "[2001:db8::2]:443")
	assert.Equal(t, "PROXY TCP6 2001:db8::1 2001:db8::2 56324 443\r\n", string(line))

	// anything unparseable degrades to UNKNOWN, which receivers must accept
	assert.Equal(t, "PROXY UNKNOWN\r\n", string(buildProxyV1("", "192.0.2.2:443")))
	assert.Equal(t, "PROXY UNKNOWN\r\n", string(buildProxyV1("no-port", "192.0.2.2:443")))
	assert.Equal(t, "PROXY UNKNOWN\r\n", string(buildProxyV1("x:1", "192.0.2.2:443")))

	// a mixed-family pair cannot be announced under either protocol token
	assert.Equal(t, "PROXY UNKNOWN\r\n", string(buildProxyV1("192.0.2.1:1024", "[2001:db8::2]:443")))
	assert.Equal(t, "PROXY UNKNOWN\r\n", string(buildProxyV1("[2001:db8::1]:1024", "192.0.2.2:443")))
}

// A built line parses back to its own source address.
func TestProxyV1RoundTrip(t *testing.T) {
	line := buildProxyV1("203.0.113.9:1024", "203.0.113.10:7080")
	require.True(t, len(line) <= proxyLineMax)

	src, err := parseProxyV1(string(line[:len(line)-2]))
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9:1024", src)
}
