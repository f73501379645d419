package ebt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"meshfw/internal/firewall"
	"meshfw/internal/fleet"
	"meshfw/internal/remote"
)

const (
	cmdDumpFilter = "ebtables -L"
	cmdDumpNAT    = "ebtables -t nat -L"
)

// NodeDump is one node's complete rule dump (filter + nat), or the fetch
// failure that stands in for it. A node that cannot be reached yields
// Err != nil and no rules; the caller keeps going with the other nodes.
type NodeDump struct {
	Node  fleet.Node
	Rules []firewall.RawRule
	Err   error
}

// Fetch retrieves both tables from one node. No retries: a dead node is
// reported once per invocation.
func Fetch(ctx context.Context, r remote.Runner, node fleet.Node) NodeDump {
	d := NodeDump{Node: node}
	for _, q := range []struct {
		table firewall.Table
		cmd   string
	}{{firewall.TableFilter, cmdDumpFilter}, {firewall.TableNAT, cmdDumpNAT}} {
		out, err := r.Run(ctx, node.Addr, q.cmd)
		if err != nil {
			d.Err = fmt.Errorf("fetch %s table from %s: %w", q.table, node.Label, err)
			d.Rules = nil
			return d
		}
		d.Rules = append(d.Rules, firewall.ParseDump(q.table, out)...)
	}
	return d
}

// FetchAll fetches every node concurrently. Results come back in the input
// order, which callers keep address-sorted for stable rendering. A failure
// on one node never cancels the others.
func FetchAll(ctx context.Context, r remote.Runner, nodes []fleet.Node) []NodeDump {
	out := make([]NodeDump, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n fleet.Node) {
			defer wg.Done()
			out[i] = Fetch(ctx, r, n)
			if out[i].Err != nil {
				slog.Debug("node fetch failed", "node", n.Label, "err", out[i].Err)
			}
		}(i, n)
	}
	wg.Wait()
	return out
}

// RulesFor filters a dump down to the rules mentioning a MAC, comparing in
// canonical form so padding/casing differences don't hide matches.
func RulesFor(rules []firewall.RawRule, mac string) []firewall.RawRule {
	canon, ok := firewall.CanonicalMAC(mac)
	if !ok {
		return nil
	}
	var out []firewall.RawRule
	for _, r := range rules {
		norm := firewall.Normalize(r)
		for _, f := range splitFields(norm.Text) {
			if f == canon {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
