// Package pipeline sequences package builds on a worker and assembles
// their outputs.
//
// A run processes jobs strictly one after the other on a single worker
// session. Each job builds its source package first when its identity is
// not yet authoritative, then every selected architecture, and finally
// merges the per-architecture .changes files and hands the best merge to
// lintian and, optionally, reprepro.
package pipeline

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/common/logs"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/buildable"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/config"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/db"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/hostcmd"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/storage"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/worker"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the pipeline package
func SetLogger(l *logs.Logger) {
	log = l
}

// WorkerPackages are installed on the worker before the first build
var WorkerPackages = []string{"python3", "sbuild", "schroot", "xz-utils"}

// Options control how jobs are built
type Options struct {
	// Archs and Indep override architecture selection
	Archs []string
	Indep bool
	// SourceOnly stops after the source stage
	SourceOnly bool
	// RebuildSource builds and keeps a new source package even when one
	// was supplied
	RebuildSource bool
	// Together builds Architecture: all packages with the native build
	Together bool

	// Parallel is passed as -J; 0 means auto and 1 leaves it out
	Parallel int
	// ForceParallel above 1 is passed as -j and wins over Parallel
	ForceParallel int

	VersionsSince     string
	ExtraRepositories []string

	// DiffIgnore is the dpkg-source -i regex; DiffIgnoreDefault alone
	// selects the dpkg-source default, empty leaves it out
	DiffIgnore string
	// TarIgnore patterns for dpkg-source -I; DiffIgnoreDefault selects the
	// dpkg-source default
	TarIgnore        []string
	ExtendDiffIgnore []string

	// OutputBuilds is the host directory results are copied to
	OutputBuilds string

	// RepreproDir, when set, is the reprepro base directory results are
	// included into
	RepreproDir string
	// RepreproSuite defaults to the job's nominal suite
	RepreproSuite string

	// Lintian runs lintian on the selected merge
	Lintian bool
	// Continue keeps building after a failed architecture or job
	Continue bool
	// UploadResults stores the selected merge and its files in the
	// results backend
	UploadResults bool

	// Output receives the output of lintian and reprepro; nil means
	// standard output
	Output io.Writer
}

// DiffIgnoreDefault asks dpkg-source for its built-in ignore patterns
const DiffIgnoreDefault = "..."

// DefaultOptions returns the options matching an unconfigured run
func DefaultOptions() Options {
	return Options{
		Parallel:     1,
		OutputBuilds: "..",
		Lintian:      true,
	}
}

// Recorder stores the history of processed jobs
type Recorder interface {
	Create(rec *db.BuildRecord) error
}

// Pipeline drives one worker session
type Pipeline struct {
	worker     worker.Worker
	workerName string
	host       hostcmd.Runner
	query      buildable.PackageQuery
	images     *ImageCache
	results    storage.Backend
	recorder   Recorder
	opts       Options

	workerArch string
	prepared   bool
	tmp        string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithPackageQuery sets how installed binary packages are discovered
func WithPackageQuery(q buildable.PackageQuery) Option {
	return func(p *Pipeline) {
		p.query = q
	}
}

// WithResults sets the backend merged results are uploaded to
func WithResults(b storage.Backend) Option {
	return func(p *Pipeline) {
		p.results = b
	}
}

// WithRecorder records every processed job
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithWorkerName sets the worker description stored in the history
func WithWorkerName(name string) Option {
	return func(p *Pipeline) {
		p.workerName = name
	}
}

// New creates a pipeline building on w. Host commands such as
// mergechanges and lintian run through host; base images come from images.
func New(w worker.Worker, host hostcmd.Runner, images *ImageCache, opts Options, options ...Option) *Pipeline {
	p := &Pipeline{
		worker: w,
		host:   host,
		images: images,
		opts:   opts,
		query:  &buildable.DpkgQuery{Runner: host},
	}
	if p.opts.OutputBuilds == "" {
		p.opts.OutputBuilds = ".."
	}
	if p.opts.Output == nil {
		p.opts.Output = os.Stdout
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// WorkerArch is the native architecture of the worker, known after Prepare
func (p *Pipeline) WorkerArch() string {
	return p.workerArch
}

// Plan canonicalizes inputs into jobs. Every input error and every suite
// without a mirror is reported here, before any worker is needed.
func Plan(cfg *config.Config, inputs []string, suite string) ([]*Job, error) {
	vendor, err := cfg.ActiveVendor()
	if err != nil {
		return nil, err
	}

	var jobs []*Job
	var errs []error
	for _, input := range inputs {
		job, err := planOne(cfg, vendor, input, suite)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		jobs = append(jobs, job)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return jobs, nil
}

func planOne(cfg *config.Config, vendor *config.Vendor, input, suite string) (*Job, error) {
	b, err := buildable.Parse(input)
	if err != nil {
		return nil, err
	}
	if err := b.SelectSuite(suite); err != nil {
		return nil, err
	}

	name := b.Suite
	if name == buildable.Unreleased {
		def, ok := vendor.DefaultSuite()
		if !ok {
			return nil, errors.ErrSuiteRequired.WithMessagef(
				"%s targets %s and vendor %s has no default suite", input, buildable.Unreleased, vendor)
		}
		name = def
	}

	s := vendor.GetSuite(name, true)
	if err := cfg.ValidateMirrors(s); err != nil {
		return nil, err
	}
	b.Suite = s.Name()

	log.Info("Planned build", "input", input, "kind", b.Kind, "source", b.Source,
		"suite", b.Suite, "nominal_suite", b.NominalSuite)
	return NewJob(b, s), nil
}

// Prepare queries the worker architecture and installs the build tools.
// Run calls it once per session.
func (p *Pipeline) Prepare(ctx context.Context) error {
	if p.prepared {
		return nil
	}

	out, err := p.worker.Capture(ctx, "dpkg", "--print-architecture")
	if err != nil {
		return err
	}
	p.workerArch = strings.TrimSpace(out)
	log.Info("Worker architecture", "arch", p.workerArch)

	log.Info("Installing sbuild")
	if err := worker.Check(ctx, p.worker, "apt-get", "-y", "update"); err != nil {
		return err
	}
	install := append([]string{"apt-get", "-y", "--no-install-recommends", "install"}, WorkerPackages...)
	if err := worker.Check(ctx, p.worker, install...); err != nil {
		return err
	}

	if err := worker.Check(ctx, p.worker, "mkdir", "-p", "-m755", p.in("")); err != nil {
		return err
	}
	p.prepared = true
	return nil
}

// Run processes jobs in order. Without the continue policy the first
// failed job stops the run; otherwise every failure is returned joined.
func (p *Pipeline) Run(ctx context.Context, jobs []*Job) error {
	tmp, err := os.MkdirTemp("", "ldfpkg-")
	if err != nil {
		return errors.ErrInternal.WithMessage("Cannot create temporary directory").WithCause(err)
	}
	defer os.RemoveAll(tmp)
	p.tmp = tmp

	if err := os.MkdirAll(p.opts.OutputBuilds, 0755); err != nil {
		return errors.ErrInternal.WithMessagef("Cannot create %s", p.opts.OutputBuilds).WithCause(err)
	}

	if err := p.Prepare(ctx); err != nil {
		return err
	}

	var errs []error
	for _, job := range jobs {
		err := p.Process(ctx, job)
		p.record(job)
		if err != nil {
			errs = append(errs, err)
			if !p.opts.Continue || ctx.Err() != nil {
				break
			}
		}
	}

	p.Report(jobs)
	return errors.Join(errs...)
}

// Process builds one job: the source stage when needed, every selected
// architecture, the merges, then lint and publish
func (p *Pipeline) Process(ctx context.Context, job *Job) error {
	b := job.Buildable
	log.Info("Processing", "buildable", b)

	job.State = StateRunning
	job.StartedAt = time.Now()

	err := p.process(ctx, job)

	job.CompletedAt = time.Now()
	job.Err = err
	if err != nil {
		job.State = StateFailed
		log.Error("Build failed", "buildable", b, "error", err)
		return err
	}
	job.State = StateProduced
	return nil
}

func (p *Pipeline) process(ctx context.Context, job *Job) error {
	b := job.Buildable

	if err := p.copySource(ctx, job); err != nil {
		return err
	}

	if b.FromArchive() || p.opts.RebuildSource || b.Dsc == "" {
		if err := p.build(ctx, job, "source"); err != nil {
			return err
		}
	}

	var errs []error
	if !p.opts.SourceOnly {
		sel, err := buildable.SelectArchs(ctx, b.Identity, buildable.SelectOptions{
			WorkerArch: p.workerArch,
			Archs:      p.opts.Archs,
			Indep:      p.opts.Indep,
			Together:   p.opts.Together,
		}, p.query)
		if err != nil {
			return err
		}
		job.Selection = sel

		for _, arch := range sel.Archs {
			if err := p.build(ctx, job, arch); err != nil {
				errs = append(errs, err)
				if !p.opts.Continue || ctx.Err() != nil {
					break
				}
			}
		}
	}

	if err := p.merge(ctx, job); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	p.publish(ctx, job)
	if err := p.upload(ctx, job); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) record(job *Job) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Create(job.Record(p.workerName)); err != nil {
		log.Warn("Could not record build history", "buildable", job, "error", err)
	}
}

// Report logs what every job produced. Merged outputs come last so they
// end up on the final screen.
func (p *Pipeline) Report(jobs []*Job) {
	for _, job := range jobs {
		log.Info("Built changes files", "buildable", job, "changes", sortedPaths(&job.ChangesProduced))
		log.Info("Build logs", "buildable", job, "logs", sortedPaths(&job.Logs))
	}
	for _, job := range jobs {
		log.Info("Merged changes files", "buildable", job, "state", job.State, "merged", job.Merged.Paths())
	}
}

// in returns the path of name inside the worker's input directory
func (p *Pipeline) in(name string) string {
	return p.worker.Scratch() + "/in/" + name
}

// out returns the path of name inside the worker's output directory
func (p *Pipeline) out(name string) string {
	return p.worker.Scratch() + "/out/" + name
}
