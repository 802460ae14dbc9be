package buildable

import (
	"context"
	"strings"

	"github.com/bitswalk/ldfpkg/src/ldfpkg/hostcmd"
)

// PackageQuery lists installed instances of binary packages as
// "name" or "name:arch"
type PackageQuery interface {
	Installed(ctx context.Context, packages []string) ([]string, error)
}

// DpkgQuery asks the host's dpkg database. Packages that are not installed
// are silently left out.
type DpkgQuery struct {
	Runner hostcmd.Runner
}

// Installed runs dpkg-query for packages
func (q *DpkgQuery) Installed(ctx context.Context, packages []string) ([]string, error) {
	if len(packages) == 0 {
		return nil, nil
	}
	argv := []string{"sh", "-c", `"$@" || :`, "sh",
		"dpkg-query", "-W", `--showformat=${binary:Package}\n`}
	argv = append(argv, packages...)

	out, err := hostcmd.Output(ctx, q.Runner, argv...)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// SelectOptions are the caller's wishes for architecture selection
type SelectOptions struct {
	// WorkerArch is the native architecture of the worker
	WorkerArch string
	// Archs is an explicit architecture list; with Indep it replaces the
	// heuristic entirely
	Archs    []string
	Indep    bool
	Together bool
}

// Selection is the ordered list of architectures to build
type Selection struct {
	Archs []string
	Indep bool
	// TogetherWith is the architecture whose build also produces the
	// Architecture: all packages, empty when "all" is built on its own
	TogetherWith string
}

// SelectArchs decides which architectures to build for id
func SelectArchs(ctx context.Context, id Identity, opts SelectOptions, query PackageQuery) (Selection, error) {
	native := BuildsOn(id.ArchWildcards, opts.WorkerArch)
	i386 := BuildsOn(id.ArchWildcards, "i386")
	if native {
		log.Info("Package builds natively", "arch", opts.WorkerArch)
	}
	if i386 {
		log.Info("Package builds on i386")
	}

	sel := Selection{Indep: opts.Indep}

	if len(opts.Archs) > 0 || opts.Indep {
		log.Info("Using architectures from command-line")
		sel.Archs = append([]string(nil), opts.Archs...)
	} else {
		log.Info("Choosing architectures to build")
		sel.Indep = id.HasWildcard("all")

		if native {
			sel.Archs = append(sel.Archs, opts.WorkerArch)
		}

		if query != nil {
			installed, err := query.Installed(ctx, id.Binaries)
			if err != nil {
				return Selection{}, err
			}
			for _, line := range installed {
				i := strings.LastIndex(line, ":")
				if i < 0 {
					continue
				}
				arch := line[i+1:]
				if !contains(sel.Archs, arch) {
					log.Info("Building on architecture because a binary is installed", "arch", arch, "package", line)
					sel.Archs = append(sel.Archs, arch)
				}
			}
		}

		if opts.WorkerArch == "amd64" && i386 && !native && !contains(sel.Archs, "i386") {
			sel.Archs = append(sel.Archs, "i386")
		}
	}

	if !id.HasWildcard("all") {
		sel.Indep = false
	}

	if sel.Indep {
		if opts.Together && len(sel.Archs) > 0 {
			if contains(sel.Archs, opts.WorkerArch) {
				sel.TogetherWith = opts.WorkerArch
			} else {
				sel.TogetherWith = sel.Archs[0]
			}
		} else {
			sel.Archs = append([]string{"all"}, sel.Archs...)
		}
	}

	log.Info("Selected architectures", "archs", sel.Archs)
	if sel.TogetherWith != "" {
		log.Info("Architecture-independent packages will be built alongside", "arch", sel.TogetherWith)
	}
	return sel, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
