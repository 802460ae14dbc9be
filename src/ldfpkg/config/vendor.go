package config

import (
	"sort"

	"github.com/bitswalk/ldfpkg/src/common/errors"
)

// Vendor is a distribution family. It owns the registry of its suites:
// looking up the same name twice yields the same *Suite.
type Vendor struct {
	name    string
	cfg     *Config
	builtin *builtinVendor
	suites  map[string]*Suite
	cycles  []error
}

func newVendor(cfg *Config, name string) *Vendor {
	return &Vendor{
		name:    name,
		cfg:     cfg,
		builtin: newBuiltinVendor(name, cfg.distroInfo(name)),
		suites:  make(map[string]*Suite),
	}
}

// Name returns the vendor name
func (v *Vendor) Name() string {
	return v.name
}

func (v *Vendor) String() string {
	return v.name
}

// Known reports whether the vendor has compiled-in knowledge
func (v *Vendor) Known() bool {
	return v.builtin != nil
}

// DistroInfo returns the release data of the vendor, or nil
func (v *Vendor) DistroInfo() *DistroInfo {
	if v.builtin == nil {
		return nil
	}
	return v.builtin.info
}

// GetSuite returns the suite called name. Aliases such as "unstable" or
// "stable-security" resolve to the underlying suite. A name that is not an
// alias, a known release or a suite defined in a layer is only registered
// when create is true; otherwise nil is returned.
func (v *Vendor) GetSuite(name string, create bool) *Suite {
	if s, ok := v.suites[name]; ok {
		return s
	}

	canonical, parent, p := v.builtin.expand(name)
	if canonical != name {
		s := v.GetSuite(canonical, true)
		v.suites[name] = s
		return s
	}

	if p == nil && !create && !v.known(name) {
		return nil
	}

	s := &Suite{
		name:    name,
		vendor:  v,
		builtin: map[string]any{},
	}
	v.suites[name] = s

	if p != nil {
		parentSuite := v.GetSuite(parent, true)
		for k, val := range p.values(parentSuite, v.builtin.info) {
			s.builtin[k] = val
		}
		s.builtin["base"] = parentSuite.Name()
	} else if v.builtin != nil {
		for k, val := range v.builtin.suites[name] {
			s.builtin[k] = val
		}
	}

	v.link(s)
	return s
}

func (v *Vendor) known(name string) bool {
	if v.builtin.known(name) {
		return true
	}
	for _, l := range v.cfg.layers {
		if l.hasSuite(v.name, name) {
			return true
		}
	}
	return false
}

// link resolves the base of s. A base that would close a cycle is refused
// and reported by Config.Validate.
func (v *Vendor) link(s *Suite) {
	raw, ok, err := v.cfg.suiteScope(s, false).resolve("base")
	if err != nil || !ok {
		return
	}
	name := raw.(string)
	if name == s.name {
		v.cycles = append(v.cycles, errors.ErrSuiteCycle.WithMessagef(
			"Suite %s/%s is its own base", v.name, s.name))
		return
	}

	base := v.GetSuite(name, true)
	for cur := base; cur != nil; cur = cur.base {
		if cur == s {
			v.cycles = append(v.cycles, errors.ErrSuiteCycle.WithMessagef(
				"Suite %s/%s cannot derive from %s: bases form a cycle", v.name, s.name, name))
			return
		}
	}
	s.base = base
}

// Suites returns the registered suites, sorted by name, without aliases
func (v *Vendor) Suites() []*Suite {
	seen := map[*Suite]bool{}
	var out []*Suite
	for _, s := range v.suites {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// DefaultSuite returns the suite used for UNRELEASED changelog entries
func (v *Vendor) DefaultSuite() (string, bool) {
	raw, ok, err := v.cfg.vendorScope(v).resolve("default_suite")
	if err != nil || !ok {
		return "", false
	}
	return raw.(string), true
}

// DefaultWorkerSuite returns the suite a worker of this vendor runs
func (v *Vendor) DefaultWorkerSuite() (string, bool) {
	raw, ok, err := v.cfg.vendorScope(v).resolve("default_worker_suite")
	if err != nil || !ok {
		return "", false
	}
	return raw.(string), true
}

// Components returns the components enabled by default
func (v *Vendor) Components() Set {
	return v.set("components")
}

// ExtraComponents returns the components available but not enabled
func (v *Vendor) ExtraComponents() Set {
	return v.set("extra_components")
}

// AllComponents returns the union of Components and ExtraComponents
func (v *Vendor) AllComponents() Set {
	return v.set("all_components")
}

// Archive returns the vendor-wide archive, if one is configured
func (v *Vendor) Archive() (string, bool) {
	raw, ok, err := v.cfg.vendorScope(v).resolve("archive")
	if err != nil || !ok {
		return "", false
	}
	return raw.(string), true
}

func (v *Vendor) set(name string) Set {
	raw, _, _ := v.cfg.vendorScope(v).resolve(name)
	return asSet(raw)
}
