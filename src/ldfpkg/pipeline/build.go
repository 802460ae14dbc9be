package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/buildable"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/worker"
)

// build runs sbuild for one architecture of job and copies the results
// back. arch is "source", "all" or an architecture name.
func (p *Pipeline) build(ctx context.Context, job *Job, arch string) error {
	bd := &Build{Arch: arch, UseArch: arch, State: StatePending}
	if arch == "all" || arch == "source" {
		bd.UseArch = p.workerArch
	}
	job.Builds = append(job.Builds, bd)

	bd.State = StateRunning
	if err := p.runBuild(ctx, job, bd); err != nil {
		bd.State = StateFailed
		bd.Err = err
		return err
	}
	bd.State = StateProduced
	return nil
}

func (p *Pipeline) runBuild(ctx context.Context, job *Job, bd *Build) error {
	b := job.Buildable

	if err := p.ensureOut(ctx); err != nil {
		return err
	}

	log.Info("Building architecture", "buildable", b, "arch", bd.Arch, "on", bd.UseArch)

	image, err := p.images.Ensure(ctx, p.worker, ImageName(job.Suite, bd.UseArch))
	if err != nil {
		return err
	}
	if err := p.installChroot(ctx, image); err != nil {
		return err
	}

	argv, err := p.sbuildCommand(job, bd.Arch)
	if err != nil {
		return err
	}

	log.Info("Running sbuild", "argv", argv)
	status, err := p.worker.Run(ctx, argv...)
	if err != nil {
		return err
	}
	if status != 0 {
		return errors.ErrBuildFailed.WithMessagef("sbuild failed for %s on %s with status %d", b, bd.Arch, status)
	}

	if bd.Arch == "source" && b.FromArchive() {
		if err := p.adoptArchiveSource(ctx, job); err != nil {
			return err
		}
		if !p.opts.RebuildSource {
			// Only the identity was wanted, sbuild fetches the source again
			return nil
		}
	}

	return p.collect(ctx, job, bd)
}

// sbuildCommand builds the sbuild command line for arch
func (p *Pipeline) sbuildCommand(job *Job, arch string) ([]string, error) {
	b := job.Buildable
	o := p.opts

	argv := []string{
		"env", "--chdir=" + p.worker.Scratch() + "/out",
		"runuser", "-u", "sbuild", "--",
		"sbuild",
		"-c", ChrootName,
		"-d", b.NominalSuite,
		"--no-run-lintian",
	}

	if o.VersionsSince != "" {
		argv = append(argv, "--debbuildopt=-v"+o.VersionsSince)
	}

	components := strings.Join(job.Suite.BuildComponents(), " ")
	hierarchy := job.Suite.Hierarchy()
	for _, child := range hierarchy[:len(hierarchy)-1] {
		mirror, err := child.Mirror()
		if err != nil {
			return nil, err
		}
		argv = append(argv, "--extra-repository",
			fmt.Sprintf("deb %s %s %s", mirror, child.AptSuite(), components))
		argv = append(argv, child.SbuildResolver()...)
	}

	for _, repo := range o.ExtraRepositories {
		argv = append(argv, "--extra-repository", repo)
	}

	switch {
	case o.ForceParallel > 1:
		argv = append(argv, fmt.Sprintf("--debbuildopt=-j%d", o.ForceParallel))
	case o.Parallel != 1 && !legacyParallel(b.Suite):
		if o.Parallel > 0 {
			argv = append(argv, fmt.Sprintf("--debbuildopt=-J%d", o.Parallel))
		} else {
			argv = append(argv, "--debbuildopt=-Jauto")
		}
	}

	switch o.DiffIgnore {
	case "":
	case DiffIgnoreDefault:
		argv = append(argv, "--dpkg-source-opt=-i")
	default:
		argv = append(argv, "--dpkg-source-opt=-i"+o.DiffIgnore)
	}

	for _, pattern := range o.TarIgnore {
		if pattern == DiffIgnoreDefault {
			argv = append(argv, "--dpkg-source-opt=-I")
		} else {
			argv = append(argv, "--dpkg-source-opt=-I"+pattern)
		}
	}

	for _, pattern := range o.ExtendDiffIgnore {
		argv = append(argv, "--dpkg-source-opt=--extend-diff-ignore="+pattern)
	}

	switch arch {
	case "all":
		log.Info("Architecture: all")
		argv = append(argv, "-A", "--no-arch-any")
	case job.Selection.TogetherWith:
		log.Info("Architecture: " + arch + " + all")
		argv = append(argv, "-A", "--arch", arch)
	case "source":
		log.Info("Source-only")
		argv = append(argv, "--no-arch-any", "--source")
	default:
		log.Info("Architecture: " + arch + " only")
		argv = append(argv, "--arch", arch)
	}

	switch {
	case b.Dsc != "" && job.ChangesProduced.Has("source"):
		argv = append(argv, p.out(filepath.Base(b.Dsc)))
	case b.Dsc != "":
		argv = append(argv, p.in(filepath.Base(b.Dsc)))
	case b.FromArchive():
		argv = append(argv, b.Input)
	default:
		// The source package is built as a side effect of the first build,
		// which is the source build
		argv = append(argv, "--no-clean-source", "--source", p.sourceDir(job))
	}

	return argv, nil
}

// legacyParallel reports suites whose dpkg-buildpackage lacks -J
func legacyParallel(suite string) bool {
	return strings.HasPrefix(suite, "jessie") || strings.HasPrefix(suite, "wheezy")
}

// adoptArchiveSource reads the identity of a source package sbuild fetched
// from the archive
func (p *Pipeline) adoptArchiveSource(ctx context.Context, job *Job) error {
	b := job.Buildable

	out, err := p.worker.Capture(ctx, "sh", "-c", `exec ls "$1"/*.dsc`, "sh", p.worker.Scratch()+"/out")
	if err != nil {
		return err
	}
	dscs := strings.Fields(out)
	if len(dscs) != 1 {
		return errors.ErrInvariant.WithMessagef(
			"sbuild --source produced %d .dsc files from %q, expected exactly one", len(dscs), b.Input)
	}

	local := filepath.Join(p.tmp, b.Input+".dsc")
	if err := p.copyBack(ctx, dscs[0], local); err != nil {
		return err
	}

	d, err := buildable.ParseDsc(local)
	if err != nil {
		return err
	}
	b.Identity = d.Identity
	log.Info("Source package fetched from archive", "source", b.Source,
		"version", b.Version.String(), "architectures", b.ArchWildcards)
	return nil
}

// collect copies the .changes of a finished build, its log and every file
// it lists back to the output directory
func (p *Pipeline) collect(ctx context.Context, job *Job, bd *Build) error {
	b := job.Buildable
	prefix := b.ProductPrefix()
	outputs := p.opts.OutputBuilds

	name := fmt.Sprintf("%s_%s.changes", prefix, bd.Arch)
	changesPath := filepath.Join(outputs, name)
	log.Info("Copying changes back to host", "changes", name)
	if err := p.copyBack(ctx, p.out(name), changesPath); err != nil {
		return err
	}
	job.ChangesProduced.Set(bd.Arch, changesPath)

	changes, err := buildable.ReadChanges(changesPath)
	if err != nil {
		return err
	}
	for _, f := range changes.Files {
		if strings.Contains(f, "/") || strings.HasPrefix(f, ".") {
			return errors.ErrInvariant.WithMessagef("%s lists unsafe file name %q", changesPath, f)
		}
	}

	if err := p.collectLog(ctx, job, bd, prefix); err != nil {
		return err
	}

	for _, f := range changes.Files {
		log.Info("Additionally copying back to host", "file", f)
		if err := p.copyBack(ctx, p.out(f), filepath.Join(outputs, f)); err != nil {
			return err
		}
	}

	if bd.Arch != "source" {
		return nil
	}

	var dsc string
	for _, f := range changes.Files {
		if strings.HasSuffix(f, ".dsc") {
			if dsc != "" {
				return errors.ErrInvariant.WithMessagef("%s lists more than one .dsc", changesPath)
			}
			dsc = f
		}
	}
	if dsc == "" {
		return errors.ErrInvariant.WithMessagef("%s lists no .dsc", changesPath)
	}

	b.SourcefulChanges = changesPath
	if err := b.AdoptDsc(filepath.Join(outputs, dsc)); err != nil {
		return err
	}

	return worker.Check(ctx, p.worker, "rm", "-fr", p.in(prefix+"_source")+"/")
}

// collectLog copies the build log back as <prefix>_<arch>.build. An
// Architecture: all build logs under the worker architecture, and builds
// of an unversioned archive reference log under the bare source name.
func (p *Pipeline) collectLog(ctx context.Context, job *Job, bd *Build, prefix string) error {
	b := job.Buildable
	dest := filepath.Join(p.opts.OutputBuilds, fmt.Sprintf("%s_%s.build", prefix, bd.Arch))

	var candidate string
	for _, stem := range []string{b.Source, prefix} {
		candidate = p.out(fmt.Sprintf("%s_%s.build", stem, bd.UseArch))
		resolved, err := p.worker.Capture(ctx, "readlink", "-f", candidate)
		if err != nil {
			continue
		}
		resolved = strings.TrimRight(resolved, "\n")

		status, err := p.worker.Run(ctx, "test", "-e", resolved)
		if err != nil {
			return err
		}
		if status != 0 {
			continue
		}

		log.Info("Copying build log back to host", "log", resolved, "as", filepath.Base(dest))
		if err := p.copyBack(ctx, resolved, dest); err != nil {
			return err
		}
		job.Logs.Set(bd.Arch, dest)
		return nil
	}

	log.Warn("Did not find build log", "path", candidate)
	listing, err := p.worker.Capture(ctx, "sh", "-c", `cd "$1"; ls -l *.build || :`, "sh", p.worker.Scratch()+"/out")
	if err == nil {
		log.Warn("Possible build logs", "listing", strings.TrimSpace(listing))
	}
	return nil
}
