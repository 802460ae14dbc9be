package config

import (
	"runtime"
	"sort"

	"github.com/bitswalk/ldfpkg/src/common/paths"
)

// Strategy is one step in the lookup of an attribute
type Strategy int

const (
	// FromOverride consults runtime overrides set with Config.Set
	FromOverride Strategy = iota
	// FromSuiteLayers consults every layer for every suite of the hierarchy
	FromSuiteLayers
	// FromSuiteOwnLayers consults every layer for the suite itself only
	FromSuiteOwnLayers
	// FromVendorLayers consults every layer at vendor scope
	FromVendorLayers
	// FromDefaultLayers consults every layer at unscoped (defaults) level
	FromDefaultLayers
	// FromSuiteBuiltin consults compiled suite values along the hierarchy
	FromSuiteBuiltin
	// FromSuiteOwnBuiltin consults compiled values of the suite itself
	FromSuiteOwnBuiltin
	// FromVendorBuiltin consults compiled vendor values
	FromVendorBuiltin
	// FromComputed derives the value from other attributes
	FromComputed
	// FromDefault uses the attribute's compiled default
	FromDefault
)

var strategyNames = map[Strategy]string{
	FromOverride:        "override",
	FromSuiteLayers:     "suite-layers",
	FromSuiteOwnLayers:  "suite-own",
	FromVendorLayers:    "vendor-layers",
	FromDefaultLayers:   "default-layers",
	FromSuiteBuiltin:    "suite-builtin",
	FromSuiteOwnBuiltin: "suite-own-builtin",
	FromVendorBuiltin:   "vendor-builtin",
	FromComputed:        "computed",
	FromDefault:         "default",
}

func (s Strategy) String() string {
	return strategyNames[s]
}

// Attribute describes one configurable value and how it is resolved
type Attribute struct {
	Name       string
	Kind       Kind
	Min        int
	Optional   bool
	Templated  bool
	Strategies []Strategy
	Default    any
	Compute    func(sc *scope) (any, bool, error)
	Help       string
}

func (a *Attribute) overridable() bool {
	for _, st := range a.Strategies {
		if st == FromOverride {
			return true
		}
	}
	return false
}

// layered is the common prefix of most strategy lists
var layered = []Strategy{FromOverride, FromSuiteLayers, FromVendorLayers, FromDefaultLayers}

func with(extra ...Strategy) []Strategy {
	return append(append([]Strategy{}, layered...), extra...)
}

var attributeTable = []*Attribute{
	{
		Name:       "vendor",
		Kind:       KindVendor,
		Strategies: []Strategy{FromOverride, FromDefaultLayers, FromDefault},
		Default:    "debian",
		Help:       "Distribution family to build for",
	},
	{
		Name:       "suite",
		Kind:       KindSuite,
		Optional:   true,
		Strategies: []Strategy{FromOverride, FromVendorLayers, FromDefaultLayers},
		Help:       "Release to build for, resolved in the active vendor",
	},
	{
		Name:       "default_suite",
		Kind:       KindString,
		Optional:   true,
		Strategies: []Strategy{FromOverride, FromVendorLayers, FromDefaultLayers, FromVendorBuiltin},
		Help:       "Suite used for UNRELEASED changelog entries",
	},
	{
		Name:       "default_worker_suite",
		Kind:       KindString,
		Optional:   true,
		Strategies: []Strategy{FromOverride, FromVendorLayers, FromDefaultLayers, FromVendorBuiltin},
		Help:       "Suite a worker of this vendor runs by default",
	},
	{
		Name:       "worker_vendor",
		Kind:       KindVendor,
		Strategies: with(FromVendorBuiltin, FromDefault),
		Default:    "debian",
		Help:       "Vendor of the worker environment",
	},
	{
		Name:       "worker_suite",
		Kind:       KindSuite,
		Optional:   true,
		Strategies: with(FromComputed),
		Compute:    computeWorkerSuite,
		Help:       "Suite of the worker environment, resolved in worker_vendor",
	},
	{
		Name:       "sbuild_worker_vendor",
		Kind:       KindVendor,
		Strategies: with(FromComputed),
		Compute:    computeSbuildWorkerVendor,
		Help:       "Vendor of the sbuild worker",
	},
	{
		Name:       "sbuild_worker_suite",
		Kind:       KindSuite,
		Optional:   true,
		Strategies: with(FromComputed),
		Compute:    computeSbuildWorkerSuite,
		Help:       "Suite of the sbuild worker, resolved in sbuild_worker_vendor",
	},
	{
		Name:       "archive",
		Kind:       KindString,
		Optional:   true,
		Strategies: with(FromSuiteBuiltin),
		Help:       "Archive service a suite is fetched from",
	},
	{
		Name:       "archive_url",
		Kind:       KindString,
		Optional:   true,
		Strategies: with(FromSuiteBuiltin, FromVendorBuiltin),
		Help:       "Canonical URL of the archive, used as a mirror lookup key",
	},
	{
		Name:       "apt_suite",
		Kind:       KindString,
		Optional:   true,
		Strategies: []Strategy{FromOverride, FromSuiteOwnLayers, FromSuiteOwnBuiltin, FromComputed},
		Compute:    computeSuiteName,
		Help:       "Name of the suite in sources.list",
	},
	{
		Name:       "apt_key",
		Kind:       KindString,
		Optional:   true,
		Templated:  true,
		Strategies: with(FromSuiteBuiltin, FromVendorBuiltin),
		Help:       "Keyring used to verify the archive",
	},
	{
		Name:       "components",
		Kind:       KindSet,
		Strategies: with(FromSuiteBuiltin, FromVendorBuiltin, FromDefault),
		Default:    NewSet("main"),
		Help:       "Components enabled by default",
	},
	{
		Name:       "extra_components",
		Kind:       KindSet,
		Strategies: with(FromSuiteBuiltin, FromVendorBuiltin, FromDefault),
		Default:    NewSet(),
		Help:       "Components available but not enabled by default",
	},
	{
		Name:       "all_components",
		Kind:       KindSet,
		Strategies: []Strategy{FromComputed},
		Compute:    computeAllComponents,
		Help:       "Union of components and extra_components",
	},
	{
		Name:       "sbuild_resolver",
		Kind:       KindList,
		Strategies: with(FromSuiteBuiltin, FromDefault),
		Default:    []string{},
		Help:       "Dependency resolver options passed to sbuild",
	},
	{
		Name:       "sbuild_together",
		Kind:       KindBool,
		Strategies: with(FromDefault),
		Default:    false,
		Help:       "Build Architecture: all packages alongside an architecture-specific build",
	},
	{
		Name:       "parallel",
		Kind:       KindInt,
		Min:        1,
		Strategies: with(FromComputed),
		Compute:    func(*scope) (any, bool, error) { return runtime.NumCPU(), true, nil },
		Help:       "Parallel jobs for the build (-J)",
	},
	{
		Name:       "sbuild_force_parallel",
		Kind:       KindInt,
		Min:        0,
		Strategies: with(FromDefault),
		Default:    0,
		Help:       "Force parallel jobs for the build (-j) when greater than one",
	},
	{
		Name:       "architecture",
		Kind:       KindString,
		Strategies: with(FromComputed),
		Compute:    func(*scope) (any, bool, error) { return HostArchitecture(), true, nil },
		Help:       "Architecture of the host",
	},
	{
		Name:       "worker_architecture",
		Kind:       KindString,
		Strategies: with(FromComputed),
		Compute:    computeWorkerArchitecture,
		Help:       "Architecture of the worker",
	},
	{
		Name:       "data_dir",
		Kind:       KindString,
		Strategies: with(FromDefault),
		Default:    "/usr/share/ldfpkg",
		Help:       "Directory holding shipped data such as archive keys",
	},
	{
		Name:       "storage",
		Kind:       KindString,
		Templated:  true,
		Strategies: with(FromComputed),
		Compute:    func(*scope) (any, bool, error) { return paths.CacheDir("ldfpkg"), true, nil },
		Help:       "Directory holding base image tarballs",
	},
	{
		Name:       "output_builds",
		Kind:       KindString,
		Templated:  true,
		Strategies: with(FromDefault),
		Default:    "..",
		Help:       "Directory build results are copied to",
	},
	{
		Name:       "debootstrap_script",
		Kind:       KindString,
		Optional:   true,
		Strategies: []Strategy{FromOverride, FromSuiteOwnLayers, FromSuiteOwnBuiltin, FromComputed},
		Compute:    computeSuiteName,
		Help:       "debootstrap script used to create base images",
	},
	{
		Name:       "mirrors",
		Kind:       KindMap,
		Strategies: []Strategy{FromOverride, FromVendorLayers, FromDefaultLayers, FromDefault},
		Default:    map[string]string{},
		Help:       "Mirror URLs keyed by archive, vendor or canonical URL",
	},
	{
		Name:       "sbuild_worker",
		Kind:       KindList,
		Templated:  true,
		Strategies: with(FromDefault),
		Default:    []string{"podman", "${sbuild_worker_image}"},
		Help:       "Worker used for sbuild",
	},
	{
		Name:       "sbuild_worker_image",
		Kind:       KindString,
		Templated:  true,
		Strategies: with(FromComputed),
		Compute:    computeSbuildWorkerImage,
		Help:       "Container image of the sbuild worker",
	},
	{
		Name:       "autopkgtest",
		Kind:       KindList,
		Strategies: with(FromVendorBuiltin, FromDefault),
		Default:    []string{"schroot", "qemu"},
		Help:       "autopkgtest virtualization backends",
	},
	{
		Name:       "dpkg_source_diff_ignore",
		Kind:       KindString,
		Optional:   true,
		Strategies: layered,
		Help:       "dpkg-source -i pattern, ... for the default",
	},
	{
		Name:       "dpkg_source_tar_ignore",
		Kind:       KindList,
		Strategies: with(FromDefault),
		Default:    []string{},
		Help:       "dpkg-source -I patterns, ... for the default",
	},
	{
		Name:       "dpkg_source_extend_diff_ignore",
		Kind:       KindList,
		Strategies: with(FromDefault),
		Default:    []string{},
		Help:       "dpkg-source --extend-diff-ignore patterns",
	},
	{
		Name:       "reprepro_dir",
		Kind:       KindString,
		Optional:   true,
		Templated:  true,
		Strategies: layered,
		Help:       "reprepro base directory to publish into",
	},
	{
		Name:       "reprepro_suite",
		Kind:       KindString,
		Optional:   true,
		Strategies: layered,
		Help:       "reprepro suite to publish into",
	},
	{
		Name:       "sbuild_buildables",
		Kind:       KindList,
		Optional:   true,
		Strategies: layered,
		Help:       "Inputs built when none are given on the command line",
	},
	{
		Name:       "base",
		Kind:       KindSuite,
		Optional:   true,
		Strategies: []Strategy{FromSuiteOwnLayers, FromSuiteOwnBuiltin},
		Help:       "Suite this suite derives from",
	},
}

var attributeIndex map[string]*Attribute

func init() {
	attributeIndex = make(map[string]*Attribute, len(attributeTable))
	for _, a := range attributeTable {
		attributeIndex[a.Name] = a
	}
}

// LookupAttribute returns the definition of the named attribute
func LookupAttribute(name string) (*Attribute, bool) {
	a, ok := attributeIndex[name]
	return a, ok
}

// AttributeNames returns every known attribute name, sorted
func AttributeNames() []string {
	names := make([]string, 0, len(attributeTable))
	for _, a := range attributeTable {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

func computeSuiteName(sc *scope) (any, bool, error) {
	if sc.suite == nil {
		return nil, false, nil
	}
	return sc.suite.Name(), true, nil
}

func computeAllComponents(sc *scope) (any, bool, error) {
	c, _, err := sc.resolve("components")
	if err != nil {
		return nil, false, err
	}
	e, _, err := sc.resolve("extra_components")
	if err != nil {
		return nil, false, err
	}
	return asSet(c).Union(asSet(e)), true, nil
}

func computeWorkerArchitecture(sc *scope) (any, bool, error) {
	return sc.resolve("architecture")
}

func computeWorkerSuite(sc *scope) (any, bool, error) {
	wv, err := sc.resolveVendor("worker_vendor")
	if err != nil {
		return nil, false, err
	}
	return sc.cfg.vendorScope(wv).resolve("default_worker_suite")
}

func computeSbuildWorkerVendor(sc *scope) (any, bool, error) {
	return sc.resolve("worker_vendor")
}

func computeSbuildWorkerSuite(sc *scope) (any, bool, error) {
	sv, err := sc.resolveVendor("sbuild_worker_vendor")
	if err != nil {
		return nil, false, err
	}
	wv, err := sc.resolveVendor("worker_vendor")
	if err != nil {
		return nil, false, err
	}
	if sv == wv {
		return sc.resolve("worker_suite")
	}
	return sc.cfg.vendorScope(sv).resolve("default_worker_suite")
}

// computeSbuildWorkerImage names a container image after the root of the
// sbuild worker suite, since pockets like -backports have no image of their own
func computeSbuildWorkerImage(sc *scope) (any, bool, error) {
	sv, err := sc.resolveVendor("sbuild_worker_vendor")
	if err != nil {
		return nil, false, err
	}
	name, ok, err := sc.resolve("sbuild_worker_suite")
	if err != nil || !ok {
		return nil, false, err
	}
	hierarchy := sv.GetSuite(name.(string), true).Hierarchy()
	root := hierarchy[len(hierarchy)-1]
	return sv.Name() + ":" + root.Name(), true, nil
}

func asSet(v any) Set {
	if s, ok := v.(Set); ok {
		return s
	}
	return nil
}

func asStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case Set:
		return []string(x)
	}
	return nil
}
