package directory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatic(t *testing.T) {
	input := `# reservations
dhcp-host=aa:bb:cc:01:02:03,MyPhone,10.0.0.5
dhcp-host=AA:BB:CC:1:2:4,10.0.0.6,nas
dhcp-host=aa:bb:cc:01:02:05,10.0.0.7
dhcp-host=not-a-mac,ghost,10.0.0.8
dhcp-range=10.0.0.100,10.0.0.200,12h

dhcp-host=aa:bb:cc:01:02:06,printer,10.0.0.9,set:lan,ignored-extra
`
	got := ParseStatic(strings.NewReader(input))
	require.Len(t, got, 4)

	assert.Equal(t, Entry{MAC: "aa:bb:cc:01:02:03", Hostname: "MyPhone", IP: "10.0.0.5", Source: SourceStatic}, got[0])
	// Field order after the MAC does not matter.
	assert.Equal(t, "nas", got[1].Hostname)
	assert.Equal(t, "10.0.0.6", got[1].IP)
	assert.Equal(t, "aa:bb:cc:01:02:04", got[1].MAC)
	// IP-only reservation: hostname stays empty.
	assert.Equal(t, "", got[2].Hostname)
	assert.Equal(t, "10.0.0.7", got[2].IP)
	// Fields past the second are option tags, not hostnames.
	assert.Equal(t, "printer", got[3].Hostname)
}

func TestParseLeases(t *testing.T) {
	input := `1724630000 aa:bb:cc:01:02:03 10.0.0.50 android-phone 01:aa:bb:cc:01:02:03
1724630100 AA:BB:CC:1:2:4 10.0.0.51 * *
1724630200 garbage 10.0.0.52 x
short line
`
	got := ParseLeases(strings.NewReader(input))
	require.Len(t, got, 2)

	assert.Equal(t, Lease{MAC: "aa:bb:cc:01:02:03", IP: "10.0.0.50", Hostname: "android-phone"}, got[0])
	assert.Equal(t, Lease{MAC: "aa:bb:cc:01:02:04", IP: "10.0.0.51", Hostname: ""}, got[1])
}

func TestIsIPv4(t *testing.T) {
	assert.True(t, IsIPv4("10.0.0.5"))
	assert.True(t, IsIPv4("192.168.50.1"))
	assert.False(t, IsIPv4("10.0.0"))
	assert.False(t, IsIPv4("aa:bb:cc:01:02:03"))
	assert.False(t, IsIPv4("hostname"))
}
