package config

import (
	"os"

	"github.com/bitswalk/ldfpkg/src/common/errors"
)

// Mirrors resolves the URL a suite's packages are fetched from. Entries are
// keyed by "archive/apt_suite", by archive name, by the canonical archive
// URL, by vendor name, or by the empty wildcard key.
type Mirrors struct {
	entries map[string]string
}

// NewMirrors creates a mirror table. The keys "*" and "" both denote the
// wildcard entry.
func NewMirrors(entries map[string]string) *Mirrors {
	m := &Mirrors{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		if k == "*" {
			k = ""
		}
		m.entries[k] = v
	}
	return m
}

// Lookup returns the raw entry for key
func (m *Mirrors) Lookup(key string) (string, bool) {
	v, ok := m.entries[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Entries returns a copy of the table
func (m *Mirrors) Entries() map[string]string {
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Keys returns the lookup keys for s, highest precedence first
func (m *Mirrors) Keys(s *Suite) []string {
	archive := s.Archive()
	keys := []string{archive + "/" + s.AptSuite(), archive}
	if url, ok := s.ArchiveURL(); ok {
		keys = append(keys, url)
	}
	return append(keys, s.Vendor().Name(), "")
}

// LookupSuite returns the mirror URL for s with ${archive} replaced by the
// suite's archive
func (m *Mirrors) LookupSuite(s *Suite) (string, error) {
	archive := s.Archive()
	for _, key := range m.Keys(s) {
		url, ok := m.Lookup(key)
		if !ok {
			continue
		}
		resolved := expandArchive(url, archive)
		log.Debug("Mirror resolved", "suite", s.Name(), "key", key, "url", resolved)
		return resolved, nil
	}
	return "", errors.ErrNoMirror.WithMessagef("No mirror configured for %s/%s (archive %s)",
		s.Vendor().Name(), s.Name(), archive)
}

func expandArchive(url, archive string) string {
	return os.Expand(url, func(name string) string {
		if name == "archive" {
			return archive
		}
		return "${" + name + "}"
	})
}
