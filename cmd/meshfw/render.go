package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/logrusorgru/aurora"

	"meshfw/internal/directory"
	"meshfw/internal/firewall"
	"meshfw/internal/firewall/ebt"
	"meshfw/internal/locate"
	"meshfw/internal/report"
)

func display(mac string, mask bool) string {
	if mask {
		return directory.MaskMAC(mac)
	}
	return mac
}

// maskLine rewrites every MAC token of a rule line to its masked form.
func maskLine(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		if _, ok := firewall.CanonicalMAC(f); ok {
			fields[i] = directory.MaskMAC(f)
		}
	}
	return strings.Join(fields, " ")
}

// colorize picks the line color from the structured classification, not from
// re-scanning the text.
func colorize(text string, info firewall.RuleInfo) aurora.Value {
	switch info.Action {
	case firewall.ActionDrop:
		return aurora.Red(text)
	case firewall.ActionMark:
		return aurora.Yellow(text)
	case firewall.ActionAccept:
		return aurora.Green(text)
	}
	return aurora.Reset(text)
}

// annotate names the device behind the first MAC of a line, when the
// directory knows it.
func annotate(dir *directory.Directory, line report.Line) string {
	for _, f := range strings.Fields(line.Rule.Text) {
		if mac, ok := firewall.CanonicalMAC(f); ok {
			if e, found := dir.Lookup(mac); found && e.Hostname != "" {
				return "  # " + e.Hostname
			}
			return ""
		}
	}
	return ""
}

func printReport(rep report.Report, dir *directory.Directory, uniqueOnly, mask bool) {
	for _, nr := range rep.Nodes {
		fmt.Printf("== %s (%s) ==\n", nr.Node.Label, nr.Node.Addr)
		if nr.Err != nil {
			fmt.Printf("  %s\n", aurora.Red("no data: "+nr.Err.Error()))
			continue
		}
		if uniqueOnly && nr.Unique == 0 && nr.Total > 0 {
			fmt.Println("  (no unique rules)")
			continue
		}

		chain := ""
		for _, line := range nr.Lines {
			if uniqueOnly && line.Common {
				continue
			}
			if c := line.Rule.Chain + "/" + string(line.Rule.Table); c != chain {
				chain = c
				fmt.Printf("  chain %s (%s):\n", line.Rule.Chain, line.Rule.Table)
			}
			marker := " "
			if !line.Common {
				marker = aurora.Red("*").String()
			}
			text := line.Rule.Text
			if mask {
				text = maskLine(text)
			}
			fmt.Printf("  %s %s%s\n", marker, colorize(text, line.Info), annotate(dir, line))
		}
		fmt.Printf("  unique=%d total=%d\n", nr.Unique, nr.Total)
	}
	fmt.Printf("common rules across %d node(s): %d\n", rep.Active, rep.CommonKeys)
}

func printDevice(dev locate.Device, mask bool) {
	name := dev.Hostname
	if name == "" {
		name = "(unknown)"
	}
	ip := dev.IP
	if ip == "" {
		ip = "-"
	}
	fmt.Printf("device: %s  mac=%s  ip=%s\n", aurora.Bold(name), display(dev.MAC, mask), ip)
}

// printDeviceRules re-fetches every node and lists the rules that mention
// the device, so a block/unblock shows its actual effect.
func printDeviceRules(ctx context.Context, a *app, mac string, mask bool) {
	for _, d := range ebt.FetchAll(ctx, a.runner, a.reg.All()) {
		if d.Err != nil {
			fmt.Printf("%s: no data\n", d.Node.Label)
			continue
		}
		rules := ebt.RulesFor(d.Rules, mac)
		if len(rules) == 0 {
			fmt.Printf("%s: no rules for %s\n", d.Node.Label, display(mac, mask))
			continue
		}
		fmt.Printf("%s:\n", d.Node.Label)
		for _, r := range rules {
			text := r.Text
			if mask {
				text = maskLine(text)
			}
			info := firewall.Classify(firewall.Normalize(r))
			fmt.Printf("  [%s/%s] %s\n", r.Table, r.Chain, colorize(text, info))
		}
	}
}
