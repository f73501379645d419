package report

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"meshfw/internal/firewall"
	"meshfw/internal/firewall/ebt"
)

// Diff renders a unified diff of two nodes' rule sets, compared in canonical
// form so it only shows real divergence, not formatting noise.
func Diff(a, b ebt.NodeDump) (string, error) {
	if a.Err != nil {
		return "", fmt.Errorf("no data for %s: %w", a.Node.Label, a.Err)
	}
	if b.Err != nil {
		return "", fmt.Errorf("no data for %s: %w", b.Node.Label, b.Err)
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        diffLines(a.Rules),
		B:        diffLines(b.Rules),
		FromFile: a.Node.Label,
		ToFile:   b.Node.Label,
		Context:  3,
	})
}

func diffLines(rules []firewall.RawRule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		norm := firewall.Normalize(r)
		out = append(out, fmt.Sprintf("[%s/%s] %s\n", r.Table, norm.Chain, norm.Text))
	}
	return out
}
