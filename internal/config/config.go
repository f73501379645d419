package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/ini.v1"
)

// Config holds everything meshfw reads at startup: the SSH client settings,
// the fleet node table, and the fixed file paths on the primary router.
type Config struct {
	SSH   SSH
	Paths Paths
	Nodes []Node
}

type SSH struct {
	User     string
	Port     int
	KeyFile  string
	Password string
	Timeout  time.Duration
}

type Paths struct {
	Static string // dnsmasq static reservations (dhcp-host= lines)
	Leases string // dnsmasq lease file
	Cache  string // persisted MAC directory (tab separated)
}

type Node struct {
	Addr    string
	Label   string
	Primary bool
}

func defaults() *Config {
	return &Config{
		SSH: SSH{
			User:    "admin",
			Port:    22,
			Timeout: 5 * time.Second,
		},
		Paths: Paths{
			Static: "/etc/dnsmasq.d/static.conf",
			Leases: "/var/lib/misc/dnsmasq.leases",
			Cache:  "/tmp/meshfw_macs.tsv",
		},
	}
}

// Load reads the INI file at path. Node sections are named "node.<label>":
//
//	[node.router]
//	addr = 192.168.50.1
//	primary = true
func Load(path string) (*Config, error) {
	c := defaults()

	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	s := f.Section("ssh")
	c.SSH.User = s.Key("user").MustString(c.SSH.User)
	c.SSH.Port = s.Key("port").MustInt(c.SSH.Port)
	c.SSH.KeyFile = s.Key("key").MustString(c.SSH.KeyFile)
	c.SSH.Password = s.Key("password").MustString(c.SSH.Password)
	c.SSH.Timeout = s.Key("timeout").MustDuration(c.SSH.Timeout)

	p := f.Section("paths")
	c.Paths.Static = p.Key("static").MustString(c.Paths.Static)
	c.Paths.Leases = p.Key("leases").MustString(c.Paths.Leases)
	c.Paths.Cache = p.Key("cache").MustString(c.Paths.Cache)

	for _, sec := range f.ChildSections("node") {
		label := sec.Name()[len("node."):]
		addr := sec.Key("addr").String()
		if addr == "" {
			return nil, fmt.Errorf("node %q: missing addr", label)
		}
		c.Nodes = append(c.Nodes, Node{
			Addr:    addr,
			Label:   label,
			Primary: sec.Key("primary").MustBool(false),
		})
	}
	if len(c.Nodes) == 0 {
		return nil, fmt.Errorf("config %s defines no [node.*] sections", path)
	}
	return c, nil
}

// Locate picks the config file: $MESHFW_CONFIG, then ./meshfw.ini,
// then /etc/meshfw.ini.
func Locate() (string, error) {
	if env := os.Getenv("MESHFW_CONFIG"); env != "" {
		return env, nil
	}
	for _, p := range []string{"meshfw.ini", "/etc/meshfw.ini"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found (set MESHFW_CONFIG or create /etc/meshfw.ini)")
}
