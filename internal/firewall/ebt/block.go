package ebt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"meshfw/internal/firewall"
	"meshfw/internal/fleet"
	"meshfw/internal/remote"
)

// Mode is the intended block state of a device across the fleet.
type Mode int

const (
	ModeUnblock Mode = iota
	ModeSilent       // direct DROP, requester times out on its own
	ModeReject       // mark only; downstream policy converts the mark to an
	                 // explicit reject so clients fail fast
)

func (m Mode) String() string {
	switch m {
	case ModeSilent:
		return "block-silent"
	case ModeReject:
		return "block-reject"
	}
	return "unblock"
}

// rejectMark is matched by the reject policy outside this tool.
const rejectMark = "0x1"

type ruleSpec struct {
	table firewall.Table
	chain string
	args  string
}

// modeRules returns the rule set a mode installs for one MAC.
// Silent mode drops on FORWARD (both directions) and on INPUT/OUTPUT so
// node-local traffic dies too; reject mode marks in the nat table instead.
func modeRules(m Mode, mac string) []ruleSpec {
	switch m {
	case ModeSilent:
		return []ruleSpec{
			{firewall.TableFilter, "FORWARD", "-s " + mac + " -j DROP"},
			{firewall.TableFilter, "FORWARD", "-d " + mac + " -j DROP"},
			{firewall.TableFilter, "INPUT", "-s " + mac + " -j DROP"},
			{firewall.TableFilter, "OUTPUT", "-d " + mac + " -j DROP"},
		}
	case ModeReject:
		return []ruleSpec{
			{firewall.TableNAT, "PREROUTING", "-s " + mac + " -j mark --mark-set " + rejectMark + " --mark-target ACCEPT"},
			{firewall.TableNAT, "POSTROUTING", "-d " + mac + " -j mark --mark-set " + rejectMark + " --mark-target ACCEPT"},
		}
	}
	return nil
}

func (s ruleSpec) command(flag string) string {
	var b strings.Builder
	b.WriteString("ebtables ")
	if s.table == firewall.TableNAT {
		b.WriteString("-t nat ")
	}
	b.WriteString(flag)
	b.WriteString(" ")
	b.WriteString(s.chain)
	b.WriteString(" ")
	b.WriteString(s.args)
	return b.String()
}

// NodeResult is the outcome of the mutation on one node.
type NodeResult struct {
	Node fleet.Node
	Err  error
}

// Orchestrator applies block/unblock transitions to every node
// independently. Explicitly non-transactional: each node is attempted,
// failures are collected, nothing is rolled back. A rule present only on the
// primary would not isolate devices sharing a mesh node, hence every node.
type Orchestrator struct {
	runner remote.Runner
}

func NewOrchestrator(r remote.Runner) *Orchestrator { return &Orchestrator{runner: r} }

// Apply drives one device to the target mode on every node. The MAC must
// already be canonical. Per node: delete both modes' rules first (idempotent
// cleanup, "does not exist" is fine), then insert the target mode's rules.
func (o *Orchestrator) Apply(ctx context.Context, nodes []fleet.Node, mac string, m Mode) []NodeResult {
	out := make([]NodeResult, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeResult{Node: n, Err: o.applyNode(ctx, n, mac, m)})
	}
	return out
}

func (o *Orchestrator) applyNode(ctx context.Context, n fleet.Node, mac string, m Mode) error {
	// Defensive cleanup of both modes, safe when nothing is installed.
	cleanup := append(modeRules(ModeSilent, mac), modeRules(ModeReject, mac)...)
	for _, r := range cleanup {
		out, err := o.runner.Run(ctx, n.Addr, r.command("-D"))
		if err == nil {
			continue
		}
		if errors.Is(err, remote.ErrUnreachable) {
			return err
		}
		if !strings.Contains(out, "does not exist") && !strings.Contains(out, "doesn't exist") {
			return fmt.Errorf("cleanup on %s: %w", n.Label, err)
		}
	}
	for _, r := range modeRules(m, mac) {
		if _, err := o.runner.Run(ctx, n.Addr, r.command("-A")); err != nil {
			return fmt.Errorf("install %s rule on %s: %w", m, n.Label, err)
		}
	}
	return nil
}

func splitFields(s string) []string { return strings.Fields(s) }
