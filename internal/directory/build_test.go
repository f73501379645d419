package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshfw/internal/config"
	"meshfw/internal/fleet"
	"meshfw/internal/remote"
)

func testFleet(t *testing.T) *fleet.Registry {
	t.Helper()
	reg, err := fleet.New([]config.Node{
		{Addr: "10.0.0.1", Label: "router", Primary: true},
		{Addr: "10.0.0.2", Label: "mesh1"},
	})
	require.NoError(t, err)
	return reg
}

var testPaths = config.Paths{
	Static: "/etc/dnsmasq.d/static.conf",
	Leases: "/var/lib/misc/dnsmasq.leases",
	Cache:  "/tmp/test_macs.tsv",
}

func TestBuild(t *testing.T) {
	s := remote.NewScript()
	s.On("10.0.0.1", "cat "+testPaths.Static,
		"dhcp-host=aa:bb:cc:00:00:01,NAS,10.0.0.5\n")
	s.On("10.0.0.1", "cat "+testPaths.Leases,
		"1724630000 aa:bb:cc:00:00:02 10.0.0.50 phone *\n")
	s.On("10.0.0.1", InfraCommand(), "lan_hwaddr=aa:bb:cc:00:00:10\n")
	s.On("10.0.0.2", InfraCommand(), "lan_hwaddr=aa:bb:cc:00:00:20\n")

	b := &Builder{Runner: s, Fleet: testFleet(t), Paths: testPaths}
	d, leases, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, leases, 1)
	assert.Equal(t, 4, d.Len())

	e, _ := d.Lookup("aa:bb:cc:00:00:20")
	assert.Equal(t, "mesh1", e.Hostname)
}

func TestBuild_DegradesWithoutDHCP(t *testing.T) {
	s := remote.NewScript()
	// cat commands are unscripted, so both DHCP fetches fail.
	s.On("10.0.0.1", InfraCommand(), "lan_hwaddr=aa:bb:cc:00:00:10\n")
	s.On("10.0.0.2", InfraCommand(), "lan_hwaddr=aa:bb:cc:00:00:20\n")

	b := &Builder{Runner: s, Fleet: testFleet(t), Paths: testPaths}
	d, leases, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, leases)
	assert.Equal(t, 2, d.Len())
}

func TestBuild_DeadMeshNodeCostsOnlyItsInfra(t *testing.T) {
	s := remote.NewScript()
	s.On("10.0.0.1", "cat "+testPaths.Static,
		"dhcp-host=aa:bb:cc:00:00:01,NAS,10.0.0.5\n")
	s.On("10.0.0.1", "cat "+testPaths.Leases, "")
	s.On("10.0.0.1", InfraCommand(), "lan_hwaddr=aa:bb:cc:00:00:10\n")
	s.Down("10.0.0.2")

	b := &Builder{Runner: s, Fleet: testFleet(t), Paths: testPaths}
	d, _, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
	_, ok := d.Lookup("aa:bb:cc:00:00:20")
	assert.False(t, ok)
}

func TestBuild_AllSourcesDownFails(t *testing.T) {
	s := remote.NewScript()
	s.Down("10.0.0.1")
	s.Down("10.0.0.2")

	b := &Builder{Runner: s, Fleet: testFleet(t), Paths: testPaths}
	_, _, err := b.Build(context.Background())
	assert.Error(t, err)
}
