// ABOUTME: Tests for the client address allow-list
// ABOUTME: Covers exact addresses, prefixes, glob patterns and parse errors

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressList_Allows(t *testing.T) {
	l, err := ParseAddressList([]string{"127.0.0.1", "10.0.0.0/8", "192.168.1.*", "fd00::1"})
	require.NoError(t, err)

	tests := []struct {
		remote string
		want   bool
	}{
		{"127.0.0.1:5555", true},
		{"127.0.0.1", true},
		{"127.0.0.2:5555", false},
		{"10.1.2.3:80", true},
		{"11.0.0.1:80", false},
		{"192.168.1.44:1234", true},
		{"192.168.2.44:1234", false},
		{"[fd00::1]:8080", true},
		{"[::ffff:127.0.0.1]:9000", true},
		{"not-an-address", false},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Allows(tt.remote))
		})
	}
}

func TestAddressList_EmptyAllowsAll(t *testing.T) {
	l, err := ParseAddressList(nil)
	require.NoError(t, err)
	assert.True(t, l.Empty())
	assert.True(t, l.Allows("203.0.113.9:1"))

	var nilList *AddressList
	assert.True(t, nilList.Allows("203.0.113.9:1"))
}

func TestAddressList_Localhost(t *testing.T) {
	l, err := ParseAddressList([]string{"localhost"})
	require.NoError(t, err)
	assert.True(t, l.Allows("127.0.0.1:1"))
	assert.True(t, l.Allows("[::1]:1"))
	assert.False(t, l.Allows("192.0.2.1:1"))
}

func TestParseAddressList_Errors(t *testing.T) {
	for _, entry := range []string{"300.1.1.1", "10.0.0.0/99", "192.168.[", "example.com"} {
		t.Run(entry, func(t *testing.T) {
			_, err := ParseAddressList([]string{entry})
			assert.Error(t, err)
		})
	}
}
