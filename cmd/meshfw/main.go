package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"meshfw/internal/config"
	"meshfw/internal/directory"
	"meshfw/internal/firewall/ebt"
	"meshfw/internal/fleet"
	"meshfw/internal/locate"
	"meshfw/internal/remote"
	"meshfw/internal/report"
)

var (
	Version   = "dev"
	BuildTime = ""
)

// ----------------------------------------------------------------------------
// CLI entrypoint
// ----------------------------------------------------------------------------

func main() {
	if BuildTime == "" {
		BuildTime = time.Now().Format(time.RFC3339)
	}
	if os.Getenv("MESHFW_DEBUG") != "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if len(os.Args) == 1 {
		fmt.Printf("meshfw v%s (built %s)\n", Version, BuildTime)
		usage()
		return
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		usage()
	case "-v", "--version", "version":
		fmt.Printf("meshfw v%s (built %s)\n", Version, BuildTime)
	case "report":
		runReport(os.Args[2:])
	case "raw":
		runRaw(os.Args[2:])
	case "diff":
		runDiff(os.Args[2:])
	case "block":
		runBlock(os.Args[2:])
	case "unblock":
		runUnblock(os.Args[2:])
	case "resolve":
		runResolve(os.Args[2:])
	case "refresh":
		runRefresh(os.Args[2:])
	case "nodes":
		runNodes(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println(`
Usage:
  meshfw report [-n NODE]... [-chain NAME] [-unique] [-refresh] [-mask]
  meshfw raw <NODE>
  meshfw diff <NODE> <NODE>
  meshfw block <MAC|IP|NAME> [-mask]
  meshfw unblock <MAC|IP|NAME>
  meshfw resolve <MAC|IP|NAME> [-mask]
  meshfw refresh
  meshfw nodes
  meshfw version

Description:
  MAC-level firewall manager for a mesh router fleet: compares ebtables
  rules across nodes, resolves MACs to device names, and applies
  block/unblock rules to every node over SSH.`)
}

// ----------------------------------------------------------------------------
// shared setup
// ----------------------------------------------------------------------------

type app struct {
	cfg    *config.Config
	reg    *fleet.Registry
	runner remote.Runner
}

func newApp() *app {
	path, err := config.Locate()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	reg, err := fleet.New(cfg.Nodes)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if reg.Degraded {
		fmt.Fprintf(os.Stderr, "warning: no node marked primary, using %s\n", reg.Primary().Label)
	}
	runner, err := remote.NewSSH(cfg.SSH)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ssh error:", err)
		os.Exit(1)
	}
	return &app{cfg: cfg, reg: reg, runner: runner}
}

// directory loads the persisted directory, rebuilding it on refresh or when
// the cache file is absent.
func (a *app) directory(ctx context.Context, refresh bool) *directory.Directory {
	if !refresh {
		d, err := directory.Load(a.cfg.Paths.Cache)
		if err == nil {
			return d
		}
		if !errors.Is(err, directory.ErrCacheMissing) {
			fmt.Fprintln(os.Stderr, "directory error:", err)
			os.Exit(1)
		}
	}
	d := a.rebuild(ctx)
	return d
}

func (a *app) rebuild(ctx context.Context) *directory.Directory {
	b := &directory.Builder{Runner: a.runner, Fleet: a.reg, Paths: a.cfg.Paths}
	d, _, err := b.Build(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "directory build error:", err)
		os.Exit(1)
	}
	if err := directory.Save(a.cfg.Paths.Cache, d); err != nil {
		fmt.Fprintln(os.Stderr, "warn: could not persist directory:", err)
	}
	return d
}

// leases fetches the live lease file from the primary; missing file is not
// fatal, IP tokens just fall back to ARP.
func (a *app) leases(ctx context.Context) []directory.Lease {
	out, err := a.runner.Run(ctx, a.reg.Primary().Addr, "cat "+a.cfg.Paths.Leases)
	if err != nil {
		slog.Debug("lease fetch failed", "err", err)
		return nil
	}
	return directory.ParseLeases(strings.NewReader(out))
}

func (a *app) locator(ctx context.Context, refresh bool) *locate.Locator {
	return &locate.Locator{
		Dir:     a.directory(ctx, refresh),
		Leases:  a.leases(ctx),
		Runner:  a.runner,
		Primary: a.reg.Primary(),
		Choose:  consoleChooser,
	}
}

// ----------------------------------------------------------------------------
// report / raw / diff
// ----------------------------------------------------------------------------

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	var nodeSel stringList
	fs.Var(&nodeSel, "n", "node address or label (repeatable; default all)")
	chain := fs.String("chain", "", "only this chain")
	unique := fs.Bool("unique", false, "show only rules not common to all selected nodes")
	refresh := fs.Bool("refresh", false, "rebuild the MAC directory first")
	mask := fs.Bool("mask", false, "mask the trailing half of MAC addresses")
	_ = fs.Parse(args)

	a := newApp()
	ctx := context.Background()

	nodes, err := a.reg.Select(nodeSel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	uniqueOnly := *unique
	if uniqueOnly && len(nodes) < 2 {
		fmt.Println("note: -unique needs at least 2 nodes; showing full report")
		uniqueOnly = false
	}

	dir := a.directory(ctx, *refresh)
	dumps := ebt.FetchAll(ctx, a.runner, nodes)
	rep := report.Build(dumps, *chain)
	printReport(rep, dir, uniqueOnly, *mask)
}

func runRaw(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: meshfw raw <NODE>")
		os.Exit(2)
	}
	a := newApp()
	node, ok := a.reg.Find(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown node %q\n", args[0])
		os.Exit(2)
	}
	ctx := context.Background()
	for _, cmd := range []string{"ebtables -L", "ebtables -t nat -L"} {
		out, err := a.runner.Run(ctx, node.Addr, cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", node.Label, err)
			os.Exit(1)
		}
		fmt.Printf("== %s: %s ==\n%s\n", node.Label, cmd, strings.TrimRight(out, "\n"))
	}
}

func runDiff(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: meshfw diff <NODE> <NODE>")
		os.Exit(2)
	}
	a := newApp()
	ctx := context.Background()
	var dumps [2]ebt.NodeDump
	for i := 0; i < 2; i++ {
		node, ok := a.reg.Find(args[i])
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown node %q\n", args[i])
			os.Exit(2)
		}
		dumps[i] = ebt.Fetch(ctx, a.runner, node)
	}
	text, err := report.Diff(dumps[0], dumps[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "diff error:", err)
		os.Exit(1)
	}
	if text == "" {
		fmt.Println("✔ rule sets are identical after normalization")
		return
	}
	fmt.Print(text)
}

// ----------------------------------------------------------------------------
// block / unblock / resolve
// ----------------------------------------------------------------------------

func runBlock(args []string) {
	fs := flag.NewFlagSet("block", flag.ExitOnError)
	mask := fs.Bool("mask", false, "mask MAC addresses in output")
	token, rest := firstPositional(args)
	_ = fs.Parse(rest)
	if token == "" {
		fmt.Fprintln(os.Stderr, "usage: meshfw block <MAC|IP|NAME> [-mask]")
		os.Exit(2)
	}

	a := newApp()
	ctx := context.Background()
	dev := a.mustLocate(ctx, token)
	printDevice(dev, *mask)

	mode, ok := askMode()
	if !ok {
		fmt.Println("(nothing done)")
		return
	}
	a.applyMode(ctx, dev, mode, *mask)
}

func runUnblock(args []string) {
	token, _ := firstPositional(args)
	if token == "" {
		fmt.Fprintln(os.Stderr, "usage: meshfw unblock <MAC|IP|NAME>")
		os.Exit(2)
	}
	a := newApp()
	ctx := context.Background()
	dev := a.mustLocate(ctx, token)
	a.applyMode(ctx, dev, ebt.ModeUnblock, false)
}

func runResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	mask := fs.Bool("mask", false, "mask MAC addresses in output")
	token, rest := firstPositional(args)
	_ = fs.Parse(rest)
	if token == "" {
		fmt.Fprintln(os.Stderr, "usage: meshfw resolve <MAC|IP|NAME> [-mask]")
		os.Exit(2)
	}
	a := newApp()
	dev := a.mustLocate(context.Background(), token)
	printDevice(dev, *mask)
}

func (a *app) mustLocate(ctx context.Context, token string) locate.Device {
	dev, err := a.locator(ctx, false).Find(ctx, token)
	if err != nil {
		if errors.Is(err, locate.ErrCanceled) {
			fmt.Println("(canceled)")
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "lookup error:", err)
		os.Exit(1)
	}
	return dev
}

// applyMode drives the orchestrator and then re-queries each node so the
// operator sees the rules actually in place.
func (a *app) applyMode(ctx context.Context, dev locate.Device, mode ebt.Mode, mask bool) {
	nodes := a.reg.All()
	orch := ebt.NewOrchestrator(a.runner)
	failed := 0
	for _, res := range orch.Apply(ctx, nodes, dev.MAC, mode) {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✖ %s: %v\n", res.Node.Label, res.Err)
			continue
		}
		fmt.Printf("✔ %s: %s %s\n", res.Node.Label, mode, display(dev.MAC, mask))
	}
	printDeviceRules(ctx, a, dev.MAC, mask)
	if failed > 0 {
		os.Exit(1)
	}
}

// ----------------------------------------------------------------------------
// refresh / nodes
// ----------------------------------------------------------------------------

func runRefresh(args []string) {
	a := newApp()
	d := a.rebuild(context.Background())
	fmt.Printf("✔ directory rebuilt: %d entries -> %s\n", d.Len(), a.cfg.Paths.Cache)
}

func runNodes(args []string) {
	a := newApp()
	for _, n := range a.reg.All() {
		tag := ""
		if n.Primary {
			tag = " (primary)"
			if a.reg.Degraded {
				tag = " (primary, fallback)"
			}
		}
		fmt.Printf("%-16s %s%s\n", n.Addr, n.Label, tag)
	}
}

// ----------------------------------------------------------------------------
// helpers
// ----------------------------------------------------------------------------

// firstPositional splits off the leading non-flag argument so commands can
// take "block phone -mask" without flag package ordering surprises.
func firstPositional(args []string) (string, []string) {
	for i, a := range args {
		if !strings.HasPrefix(a, "-") {
			rest := make([]string, 0, len(args)-1)
			rest = append(rest, args[:i]...)
			rest = append(rest, args[i+1:]...)
			return a, rest
		}
	}
	return "", args
}
