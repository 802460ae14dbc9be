package config

// Suite is a release of a vendor, or a pocket derived from one
type Suite struct {
	name    string
	vendor  *Vendor
	base    *Suite
	builtin map[string]any
}

// Name returns the suite name
func (s *Suite) Name() string {
	return s.name
}

func (s *Suite) String() string {
	return s.name
}

// Vendor returns the vendor owning the suite
func (s *Suite) Vendor() *Vendor {
	return s.vendor
}

// Base returns the suite this one derives from, or nil
func (s *Suite) Base() *Suite {
	return s.base
}

// Hierarchy returns the suite followed by its bases, ending at a suite
// with no base. Bases never form a cycle, so no suite appears twice.
func (s *Suite) Hierarchy() []*Suite {
	var out []*Suite
	seen := map[*Suite]bool{}
	for cur := s; cur != nil && !seen[cur]; cur = cur.base {
		seen[cur] = true
		out = append(out, cur)
	}
	return out
}

// Root returns the last element of the hierarchy
func (s *Suite) Root() *Suite {
	h := s.Hierarchy()
	return h[len(h)-1]
}

// Get resolves an attribute for this suite. Runtime overrides do not apply.
func (s *Suite) Get(name string) (any, bool, error) {
	return s.vendor.cfg.suiteScope(s, false).resolve(name)
}

// The attributes below are not templated, so resolving them cannot fail
// once layers have been loaded.

// AptSuite returns the name of the suite in sources.list
func (s *Suite) AptSuite() string {
	return s.str("apt_suite", s.name)
}

// Archive returns the archive service the suite is fetched from, which
// defaults to the vendor name
func (s *Suite) Archive() string {
	return s.str("archive", s.vendor.name)
}

// ArchiveURL returns the canonical URL of the suite's archive, if known
func (s *Suite) ArchiveURL() (string, bool) {
	raw, ok, err := s.Get("archive_url")
	if err != nil || !ok {
		return "", false
	}
	return raw.(string), true
}

// Components returns the components enabled by default
func (s *Suite) Components() Set {
	raw, _, _ := s.Get("components")
	return asSet(raw)
}

// BuildComponents returns the components to build against in this suite.
// Unlike Components, runtime overrides apply.
func (s *Suite) BuildComponents() Set {
	raw, _, _ := s.vendor.cfg.suiteScope(s, true).resolve("components")
	return asSet(raw)
}

// ExtraComponents returns the components available but not enabled
func (s *Suite) ExtraComponents() Set {
	raw, _, _ := s.Get("extra_components")
	return asSet(raw)
}

// AllComponents returns the union of Components and ExtraComponents
func (s *Suite) AllComponents() Set {
	raw, _, _ := s.Get("all_components")
	return asSet(raw)
}

// SbuildResolver returns the dependency resolver options for the suite
func (s *Suite) SbuildResolver() []string {
	raw, _, _ := s.Get("sbuild_resolver")
	return asStrings(raw)
}

// DebootstrapScript returns the debootstrap script name for the suite
func (s *Suite) DebootstrapScript() string {
	return s.str("debootstrap_script", s.name)
}

// AptKey returns the keyring that signs the suite
func (s *Suite) AptKey() (string, bool, error) {
	raw, ok, err := s.Get("apt_key")
	if err != nil || !ok {
		return "", false, err
	}
	return raw.(string), true, nil
}

// Mirror returns the URL packages of the suite are fetched from
func (s *Suite) Mirror() (string, error) {
	m, err := s.vendor.cfg.mirrorsFor(s.vendor)
	if err != nil {
		return "", err
	}
	return m.LookupSuite(s)
}

func (s *Suite) str(name, fallback string) string {
	raw, ok, err := s.Get(name)
	if err != nil || !ok {
		return fallback
	}
	return raw.(string)
}
