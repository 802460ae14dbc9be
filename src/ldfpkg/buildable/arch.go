package buildable

import "strings"

// tuple is the <abi>-<libc>-<os>-<cpu> quadruplet dpkg uses to compare
// architectures with wildcards
type tuple [4]string

// archTuples covers the architectures whose tuple cannot be derived from
// the name alone
var archTuples = map[string]tuple{
	"armel":              {"eabi", "gnu", "linux", "arm"},
	"armhf":              {"eabihf", "gnu", "linux", "arm"},
	"arm64ilp32":         {"ilp32", "gnu", "linux", "arm64"},
	"x32":                {"x32", "gnu", "linux", "amd64"},
	"mips64el":           {"abi64", "gnu", "linux", "mips64el"},
	"mips64":             {"abi64", "gnu", "linux", "mips64"},
	"mipsn32el":          {"abin32", "gnu", "linux", "mips64el"},
	"powerpcspe":         {"spe", "gnu", "linux", "powerpc"},
	"musl-linux-amd64":   {"base", "musl", "linux", "amd64"},
	"musl-linux-arm64":   {"base", "musl", "linux", "arm64"},
	"uclibc-linux-amd64": {"base", "uclibc", "linux", "amd64"},
	"hurd-i386":          {"base", "gnu", "hurd", "i386"},
	"hurd-amd64":         {"base", "gnu", "hurd", "amd64"},
	"kfreebsd-i386":      {"base", "gnu", "kfreebsd", "i386"},
	"kfreebsd-amd64":     {"base", "gnu", "kfreebsd", "amd64"},
	"darwin-amd64":       {"base", "none", "darwin", "amd64"},
	"darwin-arm64":       {"base", "none", "darwin", "arm64"},
}

func archTuple(arch string) tuple {
	if t, ok := archTuples[arch]; ok {
		return t
	}
	parts := strings.Split(arch, "-")
	switch len(parts) {
	case 1:
		return tuple{"base", "gnu", "linux", parts[0]}
	case 2:
		return tuple{"base", "gnu", parts[0], parts[1]}
	case 3:
		return tuple{"base", parts[0], parts[1], parts[2]}
	}
	return tuple{parts[0], parts[1], parts[2], strings.Join(parts[3:], "-")}
}

func wildcardTuple(w string) tuple {
	if w == "any" {
		return tuple{"any", "any", "any", "any"}
	}
	parts := strings.Split(w, "-")
	switch len(parts) {
	case 1:
		return tuple{"any", "any", "any", parts[0]}
	case 2:
		return tuple{"any", "any", parts[0], parts[1]}
	case 3:
		return tuple{"any", parts[0], parts[1], parts[2]}
	}
	return tuple{parts[0], parts[1], parts[2], strings.Join(parts[3:], "-")}
}

// ArchMatches reports whether the concrete architecture arch satisfies
// wildcard, following dpkg-architecture --is. "all" only matches itself.
func ArchMatches(arch, wildcard string) bool {
	if arch == wildcard {
		return true
	}
	if wildcard == "all" || arch == "all" {
		return false
	}
	if !strings.Contains(wildcard, "any") {
		return false
	}

	a := archTuple(arch)
	w := wildcardTuple(wildcard)
	for i := range a {
		if w[i] != "any" && w[i] != a[i] {
			return false
		}
	}
	return true
}

// BuildsOn reports whether any wildcard matches arch
func BuildsOn(wildcards []string, arch string) bool {
	for _, w := range wildcards {
		if ArchMatches(arch, w) {
			return true
		}
	}
	return false
}
