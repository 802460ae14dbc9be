package config

import (
	"runtime"
	"strconv"
	"strings"
)

// pocket describes a suite derived from a parent codename by a suffix,
// such as trixie-security or jessie-apt.buildd.debian.org
type pocket struct {
	suffix string
	values func(parent *Suite, info *DistroInfo) map[string]any
}

// builtinVendor holds compiled knowledge about a known vendor
type builtinVendor struct {
	values  map[string]any
	suites  map[string]map[string]any
	aliases map[string]string
	pockets []pocket
	info    *DistroInfo
}

func (b *builtinVendor) value(name string) (any, bool) {
	if b == nil {
		return nil, false
	}
	v, ok := b.values[name]
	return v, ok
}

// expand maps a requested suite name to its canonical name. For pocket
// suites it also returns the canonical parent and the pocket.
func (b *builtinVendor) expand(name string) (string, string, *pocket) {
	if b == nil {
		return name, "", nil
	}
	if target, ok := b.aliases[name]; ok {
		return target, "", nil
	}
	for i := range b.pockets {
		p := &b.pockets[i]
		parent, ok := strings.CutSuffix(name, "-"+p.suffix)
		if !ok || parent == "" {
			continue
		}
		if target, ok := b.aliases[parent]; ok {
			parent = target
		}
		return parent + "-" + p.suffix, parent, p
	}
	return name, "", nil
}

func (b *builtinVendor) known(name string) bool {
	if b == nil {
		return false
	}
	if _, ok := b.suites[name]; ok {
		return true
	}
	return b.info != nil && b.info.Known(name)
}

func newBuiltinVendor(name string, info *DistroInfo) *builtinVendor {
	switch name {
	case "debian":
		return debianVendor(info)
	case "ubuntu":
		return ubuntuVendor(info)
	}
	return nil
}

func debianVendor(info *DistroInfo) *builtinVendor {
	b := &builtinVendor{
		values: map[string]any{
			"components":       NewSet("main"),
			"extra_components": NewSet("contrib", "non-free"),
			"apt_key":          "/usr/share/keyrings/debian-archive-keyring.gpg",
			"archive_url":      "http://deb.debian.org/debian",
			"default_suite":    "sid",
			"worker_vendor":    "debian",
			"autopkgtest":      []string{"lxc", "qemu"},
		},
		suites: map[string]map[string]any{
			"experimental": {
				"base":            "sid",
				"sbuild_resolver": []string{"--build-dep-resolver=aspcud"},
			},
		},
		aliases: map[string]string{
			"unstable": "sid",
			"rc-buggy": "experimental",
		},
		info: info,
	}

	if info != nil {
		if s := info.Stable(); s != "" {
			b.aliases["stable"] = s
			b.values["default_worker_suite"] = s
		}
		if s := info.Testing(); s != "" {
			b.aliases["testing"] = s
		}
		if s := info.Old(); s != "" {
			b.aliases["oldstable"] = s
		}
	}

	b.pockets = []pocket{
		{suffix: "security", values: debianSecurity},
		{suffix: "backports", values: func(*Suite, *DistroInfo) map[string]any {
			return map[string]any{"sbuild_resolver": []string{"--build-dep-resolver=aptitude"}}
		}},
		{suffix: "updates", values: noValues},
		{suffix: "apt.buildd.debian.org", values: debianBuildd},
	}
	return b
}

// debianSecurity addresses security updates the way the archive does for
// the parent release: <codename>/updates up to buster, then <codename>-security
func debianSecurity(parent *Suite, info *DistroInfo) map[string]any {
	aptSuite := parent.Name() + "-security"
	if info != nil && legacySecurityLayout(info, parent.Name()) {
		aptSuite = parent.Name() + "/updates"
	}
	return map[string]any{
		"apt_suite":   aptSuite,
		"archive":     "security.debian.org",
		"archive_url": "http://security.debian.org/debian-security",
	}
}

func legacySecurityLayout(info *DistroInfo, series string) bool {
	r, ok := info.Find(series)
	if !ok || r.Version == "" {
		return false
	}
	major, err := strconv.Atoi(strings.SplitN(r.Version, ".", 2)[0])
	return err == nil && major <= 10
}

// debianBuildd uses the parent's apt_suite; debootstrap_script keeps the
// full synthetic suite name, which is not a real debootstrap script.
func debianBuildd(parent *Suite, _ *DistroInfo) map[string]any {
	return map[string]any{
		"apt_suite":   parent.AptSuite(),
		"archive":     "apt.buildd.debian.org",
		"archive_url": "https://apt.buildd.debian.org",
		"apt_key":     "${data_dir}/keys/buildd.debian.org_archive_key.gpg",
	}
}

func noValues(*Suite, *DistroInfo) map[string]any {
	return map[string]any{}
}

func ubuntuVendor(info *DistroInfo) *builtinVendor {
	b := &builtinVendor{
		values: map[string]any{
			"components":       NewSet("main", "universe"),
			"extra_components": NewSet("restricted", "multiverse"),
			"apt_key":          "/usr/share/keyrings/ubuntu-archive-keyring.gpg",
			"archive_url":      "http://archive.ubuntu.com/ubuntu",
			"worker_vendor":    "ubuntu",
			"autopkgtest":      []string{"lxc", "qemu"},
		},
		suites:  map[string]map[string]any{},
		aliases: map[string]string{},
		info:    info,
	}

	if info != nil {
		devel, ok := info.Devel()
		if !ok {
			devel = info.Stable()
		}
		if devel != "" {
			b.aliases["devel"] = devel
			b.values["default_suite"] = devel
		}
		if lts := info.LTS(); lts != "" {
			b.aliases["lts"] = lts
			b.values["default_worker_suite"] = lts + "-backports"
		}
	}

	b.pockets = []pocket{
		{suffix: "security", values: noValues},
		{suffix: "updates", values: noValues},
		{suffix: "backports", values: noValues},
		{suffix: "proposed", values: noValues},
	}
	return b
}

// HostArchitecture returns the Debian name of the architecture this
// program runs on
func HostArchitecture() string {
	return DebianArchitecture(runtime.GOARCH)
}

// DebianArchitecture converts a GOARCH value to the Debian architecture name
func DebianArchitecture(goarch string) string {
	switch goarch {
	case "386":
		return "i386"
	case "arm":
		return "armhf"
	case "ppc64le":
		return "ppc64el"
	case "mipsle":
		return "mipsel"
	case "mips64le":
		return "mips64el"
	case "loong64":
		return "loong64"
	}
	return goarch
}
