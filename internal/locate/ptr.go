package locate

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const ptrTimeout = 2 * time.Second

// dnsPTR is the last-resort hostname source: a PTR query against the
// system resolver (normally the primary router itself, which serves local
// DNS). Best effort; any failure just yields an empty name.
func (l *Locator) dnsPTR(ctx context.Context, ip string) string {
	rev, err := dns.ReverseAddr(ip)
	if err != nil {
		return ""
	}

	cfg, _ := dns.ClientConfigFromFile("/etc/resolv.conf")
	if cfg == nil || len(cfg.Servers) == 0 {
		cfg = &dns.ClientConfig{Servers: []string{l.Primary.Addr}, Port: "53"}
	}

	c := new(dns.Client)
	c.Timeout = ptrTimeout
	m := new(dns.Msg)
	m.SetQuestion(rev, dns.TypePTR)

	ctx, cancel := context.WithTimeout(ctx, ptrTimeout)
	defer cancel()
	r, _, err := c.ExchangeContext(ctx, m, net.JoinHostPort(cfg.Servers[0], cfg.Port))
	if err != nil || r == nil || r.Rcode != dns.RcodeSuccess {
		slog.Debug("ptr lookup failed", "ip", ip, "err", err)
		return ""
	}
	for _, a := range r.Answer {
		if ptr, ok := a.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, ".")
		}
	}
	return ""
}
