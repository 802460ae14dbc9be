// Package version describes the running ldfpkg build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Info identifies a build. Release builds set the fields through ldflags;
// other builds fall back to the module and VCS data the Go toolchain
// embeds, see FillFromBuildInfo.
type Info struct {
	// Version is the display version, e.g. "Trixie (2026.10) - v0.4.0-4f9f297"
	Version        string
	ReleaseName    string
	ReleaseVersion string
	BuildDate      string
	GitCommit      string
	// Modified is set when the binary was built from a dirty checkout
	Modified bool
}

const unknown = "unknown"

// Defaults for builds without ldflags
var (
	DefaultVersion        = "dev"
	DefaultReleaseName    = "Trixie"
	DefaultReleaseVersion = "0.0.0"
)

// New creates an Info holding the defaults
func New() *Info {
	return &Info{
		Version:        DefaultVersion,
		ReleaseName:    DefaultReleaseName,
		ReleaseVersion: DefaultReleaseVersion,
		BuildDate:      unknown,
		GitCommit:      unknown,
	}
}

// FillFromBuildInfo replaces fields still at their placeholder value
// with the data recorded by the toolchain, as `go install` builds carry
// no ldflags
func (i *Info) FillFromBuildInfo() {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	i.fill(bi)
}

func (i *Info) fill(bi *debug.BuildInfo) {
	if i.ReleaseVersion == DefaultReleaseVersion {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			i.ReleaseVersion = trimV(v)
		}
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.GitCommit == unknown && s.Value != "" {
				i.GitCommit = shortCommit(s.Value)
			}
		case "vcs.time":
			if i.BuildDate == unknown && s.Value != "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

func trimV(v string) string {
	if len(v) > 1 && v[0] == 'v' {
		return v[1:]
	}
	return v
}

func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// GoVersion returns the Go runtime version
func GoVersion() string {
	return runtime.Version()
}

func (i *Info) String() string {
	return i.Version
}

// Short returns the release version and commit, e.g. "v0.4.0-4f9f297"
func (i *Info) Short() string {
	s := fmt.Sprintf("v%s-%s", i.ReleaseVersion, i.GitCommit)
	if i.Modified {
		s += "-dirty"
	}
	return s
}

// Full returns a detailed multi-line version string
func (i *Info) Full() string {
	return fmt.Sprintf(`%s
  Release:    %s
  Version:    %s
  Build Date: %s
  Git Commit: %s
  Go Version: %s
  Platform:   %s/%s`,
		i.Version,
		i.ReleaseName,
		i.Short(),
		i.BuildDate,
		i.GitCommit,
		GoVersion(),
		runtime.GOOS, runtime.GOARCH,
	)
}

// Map returns version info as a map for JSON output
func (i *Info) Map() map[string]string {
	return map[string]string{
		"version":         i.Version,
		"release_name":    i.ReleaseName,
		"release_version": i.ReleaseVersion,
		"build_date":      i.BuildDate,
		"git_commit":      i.GitCommit,
		"modified":        fmt.Sprint(i.Modified),
		"go_version":      GoVersion(),
		"platform":        runtime.GOOS + "/" + runtime.GOARCH,
	}
}
