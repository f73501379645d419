package firewall

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Table is the ebtables table a rule came from.
type Table string

const (
	TableFilter Table = "filter"
	TableNAT    Table = "nat"
)

// RawRule is one rule line exactly as a node printed it, scoped to the chain
// it appeared under. Order of RawRules is the node's display order.
type RawRule struct {
	Chain string
	Table Table
	Text  string
}

// CanonicalRule is the comparison form of a rule: whitespace collapsed and
// every MAC token rewritten to lowercase two-digit groups. Two rules from
// different nodes that differ only in MAC casing/padding canonicalize equal.
type CanonicalRule struct {
	Chain string
	Text  string
}

// Key is the map key rules are counted under across nodes.
func (c CanonicalRule) Key() string { return c.Chain + "\x00" + c.Text }

var macToken = regexp.MustCompile(`^([0-9A-Fa-f]{1,2}:){5}[0-9A-Fa-f]{1,2}$`)

// CanonicalMAC reports whether s has the 6-group colon MAC shape and, if so,
// returns it as lowercase zero-padded groups.
func CanonicalMAC(s string) (string, bool) {
	if !macToken.MatchString(s) {
		return "", false
	}
	groups := strings.Split(s, ":")
	for i, g := range groups {
		v, err := strconv.ParseUint(g, 16, 8)
		if err != nil {
			return "", false
		}
		groups[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(groups, ":"), true
}

// Normalize maps one rule line to its canonical form. Pure function of the
// line and chain; idempotent.
func Normalize(r RawRule) CanonicalRule {
	fields := strings.Fields(r.Text)
	for i, f := range fields {
		if mac, ok := CanonicalMAC(f); ok {
			fields[i] = mac
		}
	}
	return CanonicalRule{Chain: r.Chain, Text: strings.Join(fields, " ")}
}

// chain section headers look like:
//   Bridge chain: FORWARD, entries: 2, policy: ACCEPT
const chainHeader = "Bridge chain: "

// ParseDump splits an ebtables -L dump into per-chain rules. Rule lines start
// with "-"; lines before the first chain header are discarded (table banners,
// counters, blank lines).
func ParseDump(table Table, dump string) []RawRule {
	var out []RawRule
	chain := ""
	for _, line := range strings.Split(dump, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, chainHeader) {
			rest := line[len(chainHeader):]
			if i := strings.IndexByte(rest, ','); i >= 0 {
				rest = rest[:i]
			}
			chain = strings.TrimSpace(rest)
			continue
		}
		if chain == "" || !strings.HasPrefix(line, "-") {
			continue
		}
		out = append(out, RawRule{Chain: chain, Table: table, Text: line})
	}
	return out
}
