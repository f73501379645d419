package directory

import (
	"fmt"
	"regexp"
	"strings"

	"meshfw/internal/firewall"
	"meshfw/internal/fleet"
)

const (
	radioCount = 3 // wl0..wl2
	vapCount   = 4 // sub-interface index 0 is the radio itself
)

const zeroMAC = "00:00:00:00:00:00"

// Mesh backhaul networks hide behind an SSID of exactly 13 hex characters;
// user-facing (fronthaul) SSIDs never look like that.
var backhaulSSID = regexp.MustCompile(`^[0-9A-Fa-f]{13}$`)

// bandName maps the radio's nband value to a display name.
func bandName(nband string) string {
	switch strings.TrimSpace(nband) {
	case "1":
		return "5G"
	case "2":
		return "2.4G"
	case "4":
		return "6G"
	}
	return "WiFi"
}

// InfraCommand is the single compound command run on each node to collect
// its base MAC plus every radio/VAP MAC, SSID and band as key=value lines.
func InfraCommand() string {
	var b strings.Builder
	emit := func(key string) {
		fmt.Fprintf(&b, "echo %s=$(nvram get %s); ", key, key)
	}
	emit("lan_hwaddr")
	for i := 0; i < radioCount; i++ {
		emit(fmt.Sprintf("wl%d_nband", i))
		emit(fmt.Sprintf("wl%d_hwaddr", i))
		emit(fmt.Sprintf("wl%d_ssid", i))
		for j := 1; j < vapCount; j++ {
			emit(fmt.Sprintf("wl%d.%d_hwaddr", i, j))
			emit(fmt.Sprintf("wl%d.%d_ssid", i, j))
		}
	}
	return strings.TrimSuffix(b.String(), "; ")
}

// ParseInfra turns one node's InfraCommand output into labeled entries.
// Labels: "<node>" for the base MAC, "<node>-<band>" per radio interface,
// with "-vapN" appended for sub-interface index >= 2 and "-BH" appended when
// the SSID matches the hidden backhaul pattern. All-zero MACs are skipped.
func ParseInfra(node fleet.Node, output string) []Entry {
	vals := map[string]string{}
	for _, line := range strings.Split(output, "\n") {
		k, v, found := strings.Cut(strings.TrimSpace(line), "=")
		if found {
			vals[k] = strings.TrimSpace(v)
		}
	}

	var out []Entry
	addIf := func(raw, label string) {
		mac, ok := firewall.CanonicalMAC(raw)
		if !ok || mac == zeroMAC {
			return
		}
		out = append(out, Entry{MAC: mac, Hostname: label, Source: SourceInfra})
	}

	addIf(vals["lan_hwaddr"], node.Label)
	for i := 0; i < radioCount; i++ {
		band := bandName(vals[fmt.Sprintf("wl%d_nband", i)])
		for j := 0; j < vapCount; j++ {
			macKey := fmt.Sprintf("wl%d_hwaddr", i)
			ssidKey := fmt.Sprintf("wl%d_ssid", i)
			if j > 0 {
				macKey = fmt.Sprintf("wl%d.%d_hwaddr", i, j)
				ssidKey = fmt.Sprintf("wl%d.%d_ssid", i, j)
			}
			label := node.Label + "-" + band
			if j >= 2 {
				label += fmt.Sprintf("-vap%d", j)
			}
			if backhaulSSID.MatchString(vals[ssidKey]) {
				label += "-BH"
			}
			addIf(vals[macKey], label)
		}
	}
	return out
}
