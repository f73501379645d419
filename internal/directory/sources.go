package directory

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"meshfw/internal/firewall"
)

// Lease is one dynamic DHCP lease record.
type Lease struct {
	MAC      string // canonical
	IP       string
	Hostname string // empty when the client sent none
}

const staticMarker = "dhcp-host"

// leasePlaceholder is what dnsmasq writes for clients without a hostname.
const leasePlaceholder = "*"

var ipv4Shape = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)

// IsIPv4 reports whether s looks like a dotted-quad IPv4 literal.
func IsIPv4(s string) bool { return ipv4Shape.MatchString(s) }

// ParseStatic reads dhcp-host= reservations. Each value is
// "mac,field2[,field3,...]"; whichever of the two fields after the MAC is not
// IPv4-shaped is the hostname. Malformed lines are skipped, never fatal.
func ParseStatic(r io.Reader) []Entry {
	var out []Entry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, found := strings.Cut(line, "=")
		if !found || strings.ToLower(strings.TrimSpace(k)) != staticMarker {
			continue
		}
		fields := strings.Split(v, ",")
		mac, ok := firewall.CanonicalMAC(strings.TrimSpace(fields[0]))
		if !ok {
			continue
		}
		// Only the two fields after the MAC are considered: whichever is
		// not IPv4-shaped is the hostname, the other the reserved IP.
		rest := fields[1:]
		if len(rest) > 2 {
			rest = rest[:2]
		}
		hostname, ip := "", ""
		for _, f := range rest {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if IsIPv4(f) {
				if ip == "" {
					ip = f
				}
				continue
			}
			if hostname == "" {
				hostname = f
			}
		}
		out = append(out, Entry{MAC: mac, Hostname: hostname, IP: ip, Source: SourceStatic})
	}
	return out
}

// ParseLeases reads dnsmasq lease lines: "timestamp mac ip hostname id".
// A hostname of "*" means unnamed. Bad lines are skipped.
func ParseLeases(r io.Reader) []Lease {
	var out []Lease
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		mac, ok := firewall.CanonicalMAC(fields[1])
		if !ok {
			continue
		}
		hostname := fields[3]
		if hostname == leasePlaceholder {
			hostname = ""
		}
		out = append(out, Lease{MAC: mac, IP: fields[2], Hostname: hostname})
	}
	return out
}
