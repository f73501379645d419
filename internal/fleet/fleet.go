package fleet

import (
	"fmt"
	"sort"

	"meshfw/internal/config"
)

// Node is one router participating in the mesh. Addr is the unique key.
type Node struct {
	Addr    string
	Label   string
	Primary bool
}

// Registry is the immutable node table, built once from config.
type Registry struct {
	nodes []Node

	// Degraded is set when no node was marked primary and the first node
	// was promoted as a fallback.
	Degraded bool
}

// New builds the registry. Exactly one primary is expected; with none, the
// first node is promoted and Degraded is set. More than one primary is a
// configuration error.
func New(nodes []config.Node) (*Registry, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("empty node table")
	}
	r := &Registry{}
	primaries := 0
	for _, n := range nodes {
		r.nodes = append(r.nodes, Node{Addr: n.Addr, Label: n.Label, Primary: n.Primary})
		if n.Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return nil, fmt.Errorf("%d nodes marked primary, want exactly 1", primaries)
	}
	if primaries == 0 {
		r.nodes[0].Primary = true
		r.Degraded = true
	}
	return r, nil
}

// All returns the nodes sorted by address, for deterministic output.
func (r *Registry) All() []Node {
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Primary returns the primary node.
func (r *Registry) Primary() Node {
	for _, n := range r.nodes {
		if n.Primary {
			return n
		}
	}
	return r.nodes[0] // unreachable after New
}

// Find resolves a node by address or label.
func (r *Registry) Find(key string) (Node, bool) {
	for _, n := range r.nodes {
		if n.Addr == key || n.Label == key {
			return n, true
		}
	}
	return Node{}, false
}

// Select maps the -n arguments to nodes; an empty selection means all nodes.
func (r *Registry) Select(keys []string) ([]Node, error) {
	if len(keys) == 0 {
		return r.All(), nil
	}
	var out []Node
	seen := map[string]struct{}{}
	for _, k := range keys {
		n, ok := r.Find(k)
		if !ok {
			return nil, fmt.Errorf("unknown node %q", k)
		}
		if _, dup := seen[n.Addr]; dup {
			continue
		}
		seen[n.Addr] = struct{}{}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out, nil
}
