package report

import (
	"meshfw/internal/firewall"
	"meshfw/internal/firewall/ebt"
	"meshfw/internal/fleet"
)

// Line is one rule in a node's original order, annotated for display.
type Line struct {
	Rule   firewall.RawRule
	Common bool
	Info   firewall.RuleInfo
}

// NodeReport is one node's classified rule listing.
type NodeReport struct {
	Node   fleet.Node
	Err    error // fetch failure; Lines empty
	Lines  []Line
	Unique int
	Total  int
}

// Report is the cross-node classification for one invocation.
type Report struct {
	Nodes      []NodeReport
	CommonKeys int // distinct keys present on every active node
	Active     int // nodes that returned data
}

// Build classifies each distinct (chain, canonical text) key as common iff
// every node that returned data has it. chain filters to a single chain when
// non-empty. Classification is computed once over the key sets; the per-node
// listing walks the original rule order and looks the verdict up by key.
func Build(dumps []ebt.NodeDump, chain string) Report {
	type nodeRules struct {
		rules []firewall.RawRule
		keys  map[string]struct{}
	}

	perNode := make([]nodeRules, len(dumps))
	counts := map[string]int{}
	active := 0
	for i, d := range dumps {
		if d.Err != nil {
			continue
		}
		active++
		nr := nodeRules{keys: map[string]struct{}{}}
		for _, r := range d.Rules {
			if chain != "" && r.Chain != chain {
				continue
			}
			nr.rules = append(nr.rules, r)
			nr.keys[firewall.Normalize(r).Key()] = struct{}{}
		}
		for k := range nr.keys {
			counts[k]++
		}
		perNode[i] = nr
	}

	rep := Report{Active: active}
	for _, c := range counts {
		if c == active {
			rep.CommonKeys++
		}
	}

	for i, d := range dumps {
		nr := NodeReport{Node: d.Node, Err: d.Err}
		if d.Err == nil {
			for _, r := range perNode[i].rules {
				norm := firewall.Normalize(r)
				common := counts[norm.Key()] == active
				nr.Lines = append(nr.Lines, Line{
					Rule:   r,
					Common: common,
					Info:   firewall.Classify(norm),
				})
				nr.Total++
				if !common {
					nr.Unique++
				}
			}
		}
		rep.Nodes = append(rep.Nodes, nr)
	}
	return rep
}
