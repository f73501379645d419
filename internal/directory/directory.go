// Package directory builds and queries the merged MAC-to-hostname mapping.
//
// Three sources feed it in strict priority order: static DHCP reservations
// (authoritative), dynamic leases (fill addresses the static set misses, or
// fill a blank static hostname), and fleet infrastructure addresses (only for
// addresses neither DHCP source knows). A rebuild replaces the directory
// wholesale; nothing survives from the previous build.
package directory

import (
	"strings"

	"meshfw/internal/firewall"
)

// Source tags where an entry's address was learned.
type Source int

const (
	SourceCache Source = iota // loaded from the persisted file, origin unknown
	SourceStatic
	SourceLease
	SourceInfra
)

func (s Source) String() string {
	switch s {
	case SourceStatic:
		return "static"
	case SourceLease:
		return "lease"
	case SourceInfra:
		return "infra"
	}
	return "cache"
}

// Entry is one directory record. An empty hostname is a valid state, distinct
// from the address being absent.
type Entry struct {
	MAC      string // canonical form, unique key
	Hostname string
	IP       string // reserved address when the static source carried one
	Source   Source
}

// Directory maps canonical MACs to entries.
type Directory struct {
	entries map[string]Entry
	order   []string // insertion order, for stable persistence
}

func New() *Directory {
	return &Directory{entries: map[string]Entry{}}
}

func (d *Directory) Len() int { return len(d.entries) }

// Lookup canonicalizes mac and returns its entry.
func (d *Directory) Lookup(mac string) (Entry, bool) {
	canon, ok := firewall.CanonicalMAC(mac)
	if !ok {
		return Entry{}, false
	}
	e, ok := d.entries[canon]
	return e, ok
}

// Entries returns all records in insertion order.
func (d *Directory) Entries() []Entry {
	out := make([]Entry, 0, len(d.order))
	for _, mac := range d.order {
		out = append(out, d.entries[mac])
	}
	return out
}

// Search returns the entries whose hostname contains the token,
// case-insensitively.
func (d *Directory) Search(token string) []Entry {
	token = strings.ToLower(token)
	var out []Entry
	for _, mac := range d.order {
		e := d.entries[mac]
		if e.Hostname != "" && strings.Contains(strings.ToLower(e.Hostname), token) {
			out = append(out, e)
		}
	}
	return out
}

func (d *Directory) add(e Entry) {
	if _, exists := d.entries[e.MAC]; !exists {
		d.order = append(d.order, e.MAC)
	}
	d.entries[e.MAC] = e
}

// Merge builds a directory from the three sources with "first authoritative
// source wins, later sources fill gaps only" semantics. A lease may fill a
// blank static hostname but never replaces one; infra labels apply only to
// addresses neither DHCP source mentions.
func Merge(static []Entry, leases []Lease, infra []Entry) *Directory {
	d := New()
	for _, e := range static {
		e.Source = SourceStatic
		d.add(e)
	}
	for _, l := range leases {
		if cur, ok := d.entries[l.MAC]; ok {
			if cur.Hostname == "" && l.Hostname != "" {
				cur.Hostname = l.Hostname
				d.entries[l.MAC] = cur
			}
			continue
		}
		d.add(Entry{MAC: l.MAC, Hostname: l.Hostname, Source: SourceLease})
	}
	for _, e := range infra {
		if _, ok := d.entries[e.MAC]; ok {
			continue
		}
		e.Source = SourceInfra
		d.add(e)
	}
	return d
}

// MaskMAC hides the device-specific tail of an address for display:
// aa:bb:cc:01:02:03 -> aa:bb:cc:xx:xx:xx. Non-MAC input comes back unchanged.
func MaskMAC(mac string) string {
	canon, ok := firewall.CanonicalMAC(mac)
	if !ok {
		return mac
	}
	g := strings.Split(canon, ":")
	return strings.Join([]string{g[0], g[1], g[2], "xx", "xx", "xx"}, ":")
}
