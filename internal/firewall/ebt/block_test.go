package ebt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshfw/internal/firewall"
	"meshfw/internal/fleet"
	"meshfw/internal/remote"
)

const testMAC = "aa:bb:cc:01:02:03"

var (
	nodeA = fleet.Node{Addr: "10.0.0.1", Label: "router", Primary: true}
	nodeB = fleet.Node{Addr: "10.0.0.2", Label: "mesh1"}
)

// fakeNode emulates one node's ebtables state: -A appends, -D removes (or
// complains the rule does not exist), -L dumps.
type fakeNode struct {
	addr   string
	chains map[string][]string // "table/CHAIN" -> rule args
}

func newFakeNode(addr string) *fakeNode {
	return &fakeNode{addr: addr, chains: map[string][]string{}}
}

func (f *fakeNode) Run(_ context.Context, nodeAddr, command string) (string, error) {
	if nodeAddr != f.addr {
		return "", fmt.Errorf("%w: %s", remote.ErrUnreachable, nodeAddr)
	}
	fields := strings.Fields(command)
	if len(fields) == 0 || fields[0] != "ebtables" {
		return "", fmt.Errorf("unsupported: %s", command)
	}
	fields = fields[1:]
	table := "filter"
	if len(fields) >= 2 && fields[0] == "-t" {
		table = fields[1]
		fields = fields[2:]
	}
	switch fields[0] {
	case "-L":
		return f.dump(table), nil
	case "-A":
		key := table + "/" + fields[1]
		f.chains[key] = append(f.chains[key], strings.Join(fields[2:], " "))
		return "", nil
	case "-D":
		key := table + "/" + fields[1]
		want := strings.Join(fields[2:], " ")
		for i, r := range f.chains[key] {
			if r == want {
				f.chains[key] = append(f.chains[key][:i], f.chains[key][i+1:]...)
				return "", nil
			}
		}
		return "Sorry, rule does not exist.", errors.New("exit status 255")
	}
	return "", fmt.Errorf("unsupported: %s", command)
}

func (f *fakeNode) dump(table string) string {
	chains := []string{"INPUT", "FORWARD", "OUTPUT"}
	if table == "nat" {
		chains = []string{"PREROUTING", "OUTPUT", "POSTROUTING"}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Bridge table: %s\n\n", table)
	for _, c := range chains {
		rules := f.chains[table+"/"+c]
		fmt.Fprintf(&b, "Bridge chain: %s, entries: %d, policy: ACCEPT\n", c, len(rules))
		for _, r := range rules {
			fmt.Fprintf(&b, "%s\n", r)
		}
	}
	return b.String()
}

// snapshot returns all rules as a sorted set for order-insensitive compare.
func (f *fakeNode) snapshot() []string {
	var out []string
	for key, rules := range f.chains {
		for _, r := range rules {
			out = append(out, key+" "+r)
		}
	}
	sort.Strings(out)
	return out
}

func TestApply_BlockUnblockRoundTrip(t *testing.T) {
	fake := newFakeNode(nodeA.Addr)
	// Pre-existing unrelated rule must survive the round trip.
	fake.chains["filter/FORWARD"] = []string{"-s 11:22:33:44:55:66 -j DROP"}
	before := fake.snapshot()

	orch := NewOrchestrator(fake)
	ctx := context.Background()

	res := orch.Apply(ctx, []fleet.Node{nodeA}, testMAC, ModeSilent)
	require.Len(t, res, 1)
	require.NoError(t, res[0].Err)
	assert.NotEqual(t, before, fake.snapshot(), "block must change the rule set")

	res = orch.Apply(ctx, []fleet.Node{nodeA}, testMAC, ModeUnblock)
	require.NoError(t, res[0].Err)
	assert.Equal(t, before, fake.snapshot(), "unblock must restore the pre-block rule set")
}

func TestApply_SilentInstallsDropRules(t *testing.T) {
	fake := newFakeNode(nodeA.Addr)
	orch := NewOrchestrator(fake)

	res := orch.Apply(context.Background(), []fleet.Node{nodeA}, testMAC, ModeSilent)
	require.NoError(t, res[0].Err)

	assert.Contains(t, fake.chains["filter/FORWARD"], "-s "+testMAC+" -j DROP")
	assert.Contains(t, fake.chains["filter/FORWARD"], "-d "+testMAC+" -j DROP")
	assert.Contains(t, fake.chains["filter/INPUT"], "-s "+testMAC+" -j DROP")
	assert.Contains(t, fake.chains["filter/OUTPUT"], "-d "+testMAC+" -j DROP")
	assert.Empty(t, fake.chains["nat/PREROUTING"])
}

func TestApply_ModeSwitchLeavesNoLeftovers(t *testing.T) {
	fake := newFakeNode(nodeA.Addr)
	orch := NewOrchestrator(fake)
	ctx := context.Background()

	require.NoError(t, orch.Apply(ctx, []fleet.Node{nodeA}, testMAC, ModeSilent)[0].Err)
	require.NoError(t, orch.Apply(ctx, []fleet.Node{nodeA}, testMAC, ModeReject)[0].Err)

	// No silent-mode rule of the old mode may remain anywhere.
	for key, rules := range fake.chains {
		if strings.HasPrefix(key, "filter/") {
			assert.Empty(t, rules, "leftover drop rules in %s", key)
		}
	}
	assert.Contains(t, fake.chains["nat/PREROUTING"],
		"-s "+testMAC+" -j mark --mark-set 0x1 --mark-target ACCEPT")
	assert.Contains(t, fake.chains["nat/POSTROUTING"],
		"-d "+testMAC+" -j mark --mark-set 0x1 --mark-target ACCEPT")
}

func TestApply_Idempotent(t *testing.T) {
	fake := newFakeNode(nodeA.Addr)
	orch := NewOrchestrator(fake)
	ctx := context.Background()

	require.NoError(t, orch.Apply(ctx, []fleet.Node{nodeA}, testMAC, ModeSilent)[0].Err)
	once := fake.snapshot()
	require.NoError(t, orch.Apply(ctx, []fleet.Node{nodeA}, testMAC, ModeSilent)[0].Err)
	assert.Equal(t, once, fake.snapshot(), "repeating a block must not duplicate rules")
}

func TestApply_NodeFailureDoesNotStopOthers(t *testing.T) {
	fake := newFakeNode(nodeB.Addr) // nodeA is unreachable for this runner
	orch := NewOrchestrator(fake)

	res := orch.Apply(context.Background(), []fleet.Node{nodeA, nodeB}, testMAC, ModeSilent)
	require.Len(t, res, 2)
	assert.ErrorIs(t, res[0].Err, remote.ErrUnreachable)
	assert.NoError(t, res[1].Err)
	assert.Contains(t, fake.chains["filter/FORWARD"], "-s "+testMAC+" -j DROP")
}

func TestApply_CleanupRunsBeforeInstall(t *testing.T) {
	s := remote.NewScript()
	for _, spec := range append(modeRules(ModeSilent, testMAC), modeRules(ModeReject, testMAC)...) {
		s.Fail(nodeA.Addr, spec.command("-D"), "Sorry, rule does not exist.", errors.New("exit status 255"))
	}
	for _, spec := range modeRules(ModeSilent, testMAC) {
		s.On(nodeA.Addr, spec.command("-A"), "")
	}

	res := NewOrchestrator(s).Apply(context.Background(), []fleet.Node{nodeA}, testMAC, ModeSilent)
	require.NoError(t, res[0].Err)

	var sawAdd bool
	for _, call := range s.Calls {
		if strings.Contains(call, " -A ") {
			sawAdd = true
		}
		if strings.Contains(call, " -D ") {
			assert.False(t, sawAdd, "delete issued after an add: %s", call)
		}
	}
	assert.True(t, sawAdd)
}

func TestRulesFor(t *testing.T) {
	rules := []firewall.RawRule{
		{Chain: "FORWARD", Table: firewall.TableFilter, Text: "-s AA:BB:CC:1:2:3 -j DROP"},
		{Chain: "FORWARD", Table: firewall.TableFilter, Text: "-s 11:22:33:44:55:66 -j DROP"},
		{Chain: "INPUT", Table: firewall.TableFilter, Text: "-s aa:bb:cc:01:02:03 -j DROP"},
	}
	got := RulesFor(rules, "AA:bb:CC:01:02:03")
	require.Len(t, got, 2)
	assert.Equal(t, "FORWARD", got[0].Chain)
	assert.Equal(t, "INPUT", got[1].Chain)
}
