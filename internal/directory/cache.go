package directory

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrCacheMissing signals the persisted directory is absent; callers rebuild
// instead of failing.
var ErrCacheMissing = errors.New("directory cache missing")

// Save writes the directory as "mac<TAB>hostname" lines, replacing the file
// wholesale. Concurrent rebuilds race on this file: last writer wins, no
// locking is attempted.
func Save(path string, d *Directory) error {
	var b strings.Builder
	for _, e := range d.Entries() {
		b.WriteString(e.MAC)
		b.WriteByte('\t')
		b.WriteString(e.Hostname)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write directory cache: %w", err)
	}
	return nil
}

// Load reads a persisted directory. The source of cached entries is unknown
// by design: the two-column format keeps only address and hostname.
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMissing
		}
		return nil, fmt.Errorf("open directory cache: %w", err)
	}
	defer f.Close()

	d := New()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		mac, hostname, found := strings.Cut(sc.Text(), "\t")
		if !found || mac == "" {
			continue
		}
		d.add(Entry{MAC: mac, Hostname: hostname, Source: SourceCache})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read directory cache: %w", err)
	}
	return d, nil
}
