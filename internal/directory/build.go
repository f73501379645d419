package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"meshfw/internal/config"
	"meshfw/internal/fleet"
	"meshfw/internal/remote"
)

// Builder assembles the directory from the fleet. DHCP data (static +
// leases) comes from the primary node only; infrastructure addresses come
// from every node.
type Builder struct {
	Runner remote.Runner
	Fleet  *fleet.Registry
	Paths  config.Paths
}

// Build fetches all three sources and merges them. A node that cannot be
// reached only costs its own infra entries; DHCP fetch failures from the
// primary degrade to an infra-only directory rather than failing the build.
func (b *Builder) Build(ctx context.Context) (*Directory, []Lease, error) {
	primary := b.Fleet.Primary()

	var static []Entry
	if out, err := b.Runner.Run(ctx, primary.Addr, "cat "+b.Paths.Static); err != nil {
		slog.Debug("static reservations unavailable", "node", primary.Label, "err", err)
	} else {
		static = ParseStatic(strings.NewReader(out))
	}

	var leases []Lease
	if out, err := b.Runner.Run(ctx, primary.Addr, "cat "+b.Paths.Leases); err != nil {
		slog.Debug("lease file unavailable", "node", primary.Label, "err", err)
	} else {
		leases = ParseLeases(strings.NewReader(out))
	}

	var infra []Entry
	cmd := InfraCommand()
	for _, n := range b.Fleet.All() {
		out, err := b.Runner.Run(ctx, n.Addr, cmd)
		if err != nil {
			slog.Debug("infra fetch failed", "node", n.Label, "err", err)
			continue
		}
		infra = append(infra, ParseInfra(n, out)...)
	}

	d := Merge(static, leases, infra)
	if d.Len() == 0 {
		return nil, nil, fmt.Errorf("directory build produced no entries (all sources unavailable?)")
	}
	return d, leases, nil
}
