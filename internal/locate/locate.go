// Package locate resolves a user token (MAC, IPv4, or hostname fragment)
// into one concrete device record.
package locate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"meshfw/internal/directory"
	"meshfw/internal/firewall"
	"meshfw/internal/fleet"
	"meshfw/internal/remote"
)

var (
	// ErrNoMatch means the token resolved to nothing.
	ErrNoMatch = errors.New("no matching device")
	// ErrCanceled means the operator dismissed the disambiguation menu.
	ErrCanceled = errors.New("selection canceled")
)

// Device is the resolved record. IP and Hostname stay empty when no DHCP
// record supplies them.
type Device struct {
	MAC      string // canonical
	IP       string
	Hostname string
}

// Chooser asks the operator to pick one of the options, returning its index,
// or ErrCanceled. It is the only interaction point in the core and is
// injected so tests can script the answer.
type Chooser func(options []string) (int, error)

// Locator holds the lookup state for one invocation.
type Locator struct {
	Dir     *directory.Directory
	Leases  []directory.Lease
	Runner  remote.Runner
	Primary fleet.Node
	Choose  Chooser

	// PTR overrides the reverse-DNS lookup; nil means query the system
	// resolver.
	PTR func(ctx context.Context, ip string) string
}

func (l *Locator) reverseName(ctx context.Context, ip string) string {
	if l.PTR != nil {
		return l.PTR(ctx, ip)
	}
	return l.dnsPTR(ctx, ip)
}

// Find classifies the token: MAC shape first, then IPv4 literal, otherwise a
// case-insensitive hostname substring search over the directory.
func (l *Locator) Find(ctx context.Context, token string) (Device, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Device{}, ErrNoMatch
	}
	if mac, ok := firewall.CanonicalMAC(token); ok {
		return l.byMAC(mac), nil
	}
	if directory.IsIPv4(token) {
		return l.byIP(ctx, token)
	}
	return l.byName(token)
}

func (l *Locator) byMAC(mac string) Device {
	d := Device{MAC: mac}
	if e, ok := l.Dir.Lookup(mac); ok {
		d.Hostname = e.Hostname
		d.IP = e.IP
	}
	for _, lease := range l.Leases {
		if lease.MAC == mac {
			d.IP = lease.IP
			if d.Hostname == "" {
				d.Hostname = lease.Hostname
			}
			break
		}
	}
	return d
}

func (l *Locator) byIP(ctx context.Context, ip string) (Device, error) {
	for _, lease := range l.Leases {
		if lease.IP == ip {
			d := Device{MAC: lease.MAC, IP: ip, Hostname: lease.Hostname}
			if d.Hostname == "" {
				if e, ok := l.Dir.Lookup(lease.MAC); ok {
					d.Hostname = e.Hostname
				}
			}
			if d.Hostname == "" {
				d.Hostname = l.reverseName(ctx, ip)
			}
			return d, nil
		}
	}
	for _, e := range l.Dir.Entries() {
		if e.IP == ip {
			return Device{MAC: e.MAC, IP: ip, Hostname: e.Hostname}, nil
		}
	}

	// DHCP knows nothing about this IP; ask the primary's ARP table.
	mac, err := l.arpLookup(ctx, ip)
	if err != nil {
		return Device{}, fmt.Errorf("%w: %s (%v)", ErrNoMatch, ip, err)
	}
	d := Device{MAC: mac, IP: ip}
	if e, ok := l.Dir.Lookup(mac); ok {
		d.Hostname = e.Hostname
	}
	if d.Hostname == "" {
		d.Hostname = l.reverseName(ctx, ip)
	}
	return d, nil
}

// arpLookup reads /proc/net/arp on the primary node. Incomplete entries
// (all-zero MAC, flags 0x0) don't count.
func (l *Locator) arpLookup(ctx context.Context, ip string) (string, error) {
	out, err := l.Runner.Run(ctx, l.Primary.Addr, "cat /proc/net/arp")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[0] != ip || fields[2] == "0x0" {
			continue
		}
		if mac, ok := firewall.CanonicalMAC(fields[3]); ok && mac != "00:00:00:00:00:00" {
			return mac, nil
		}
	}
	return "", fmt.Errorf("no ARP entry for %s", ip)
}

func (l *Locator) byName(token string) (Device, error) {
	matches := l.Dir.Search(token)
	switch len(matches) {
	case 0:
		return Device{}, fmt.Errorf("%w: %q", ErrNoMatch, token)
	case 1:
		return l.byMAC(matches[0].MAC), nil
	}

	options := make([]string, len(matches))
	for i, m := range matches {
		options[i] = fmt.Sprintf("%s (%s)", m.Hostname, m.MAC)
	}
	if l.Choose == nil {
		return Device{}, fmt.Errorf("%q is ambiguous (%d matches) and no chooser is available", token, len(matches))
	}
	idx, err := l.Choose(options)
	if err != nil {
		return Device{}, err
	}
	if idx < 0 || idx >= len(matches) {
		return Device{}, fmt.Errorf("choice %d out of range", idx)
	}
	slog.Debug("ambiguous token resolved", "token", token, "picked", matches[idx].MAC)
	return l.byMAC(matches[idx].MAC), nil
}
