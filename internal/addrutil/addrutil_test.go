package addrutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAddr(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://bing.com/", "bing.com:443"},
		{"https://bing.com:123/", "bing.com:123"},
		{"http://bing.com", "bing.com:80"},
		{"http://bing.com:123", "bing.com:123"},
	}
	for _, c := range cases {
		got, err := GetAddr(c.in)
		assert.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestGetAddrFailsWithoutHost(t *testing.T) {
	// "bing.com:443" parses as scheme="bing.com", opaque="443" per RFC 3986 —
	// there is no Host component, so this must fail rather than silently
	// misparse. Callers fall back to the raw token in that case.
	_, err := GetAddr("bing.com:443")
	assert.Error(t, err)
}
