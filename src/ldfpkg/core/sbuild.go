package core

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bitswalk/ldfpkg/src/common/cli"
	"github.com/bitswalk/ldfpkg/src/common/paths"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/config"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/db"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/hostcmd"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/pipeline"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/storage"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/worker"
	"github.com/spf13/cobra"
)

type sbuildFlags struct {
	layerFlags

	archs            []string
	indep            bool
	sourceOnly       bool
	rebuildSource    bool
	together         bool
	parallel         int
	forceParallel    int
	versionsSince    string
	extraRepos       []string
	diffIgnore       string
	tarIgnore        []string
	extendDiffIgnore []string
	outputBuilds     string
	repreproDir      string
	repreproSuite    string
	worker           string
	lintian          bool
	cont             bool
	uploadResults    bool
}

var sbuildOpts sbuildFlags

var sbuildCmd = &cobra.Command{
	Use:   "sbuild [BUILDABLE...]",
	Short: "Build source and binary packages with sbuild",
	Long: `Build each BUILDABLE on a disposable worker.

A BUILDABLE is an unpacked source tree, a .dsc file, a sourceful .changes
file or a source package name (optionally NAME_VERSION) to fetch from the
archive. Without arguments the sbuild_buildables attribute is used, else
the current directory.`,
	RunE: runSbuild,
}

func init() {
	sbuildOpts.registerSbuild(sbuildCmd)

	// Storage and SSH settings usually live in the config file
	flags := sbuildCmd.Flags()
	flags.String("storage-type", "", "Storage backend for images and results: local or s3")
	flags.String("ssh-identity", "", "Private key for ssh workers")
	_ = cli.BindFlag(settings, sbuildCmd, "storage-type", "storage.type")
	_ = cli.BindFlag(settings, sbuildCmd, "ssh-identity", "worker.ssh.identity")
}

func (f *sbuildFlags) registerSbuild(cmd *cobra.Command) {
	f.register(cmd)

	flags := cmd.Flags()
	flags.StringArrayVar(&f.archs, "arch", nil, "Architecture to build for (repeatable); disables automatic selection")
	flags.BoolVar(&f.indep, "indep", false, "Build Architecture: all packages")
	flags.BoolVar(&f.sourceOnly, "source-only", false, "Only build the source package")
	flags.BoolVar(&f.rebuildSource, "rebuild-source", false, "Build a new source package even when one was given")
	flags.BoolVar(&f.together, "together", false, "Build Architecture: all packages together with the native build")
	flags.IntVar(&f.parallel, "parallel", 0, "Parallel jobs for dpkg-buildpackage -J (default: number of CPUs, 1 disables -J)")
	flags.IntVar(&f.forceParallel, "force-parallel", 0, "Parallel jobs for dpkg-buildpackage -j")
	flags.StringVar(&f.versionsSince, "versions-since", "", "Include changelog entries since this version")
	flags.StringArrayVar(&f.extraRepos, "extra-repository", nil, "Additional apt source line (repeatable)")
	flags.StringVar(&f.diffIgnore, "dpkg-source-diff-ignore", "", "Regular expression passed to dpkg-source -i ('...' for the default)")
	flags.StringArrayVar(&f.tarIgnore, "dpkg-source-tar-ignore", nil, "Pattern passed to dpkg-source -I ('...' for the default)")
	flags.StringArrayVar(&f.extendDiffIgnore, "dpkg-source-extend-diff-ignore", nil, "Regular expression passed to dpkg-source --extend-diff-ignore")
	flags.StringVar(&f.outputBuilds, "output-builds", "", "Directory results are copied to (default from configuration, else ..)")
	flags.StringVar(&f.repreproDir, "reprepro-dir", "", "Include results into this reprepro repository")
	flags.StringVar(&f.repreproSuite, "reprepro-suite", "", "Suite to include results into (default: the package's suite)")
	flags.StringVar(&f.worker, "worker", "", "Worker to build on, e.g. 'podman debian:sid', 'ssh builder' or 'local'")
	flags.BoolVar(&f.lintian, "lintian", true, "Run lintian on the merged results")
	flags.BoolVar(&f.cont, "continue", false, "Keep going after a failed architecture or buildable")
	flags.BoolVar(&f.uploadResults, "upload-results", false, "Store the merged results in the storage backend")
}

// attributeFlags maps sbuild flags onto the attributes they override
var attributeFlags = []struct {
	flag string
	attr string
}{
	{"together", "sbuild_together"},
	{"parallel", "parallel"},
	{"force-parallel", "sbuild_force_parallel"},
	{"output-builds", "output_builds"},
	{"dpkg-source-diff-ignore", "dpkg_source_diff_ignore"},
	{"dpkg-source-tar-ignore", "dpkg_source_tar_ignore"},
	{"dpkg-source-extend-diff-ignore", "dpkg_source_extend_diff_ignore"},
	{"reprepro-dir", "reprepro_dir"},
	{"reprepro-suite", "reprepro_suite"},
	{"worker", "sbuild_worker"},
}

func (f *sbuildFlags) value(flag string) any {
	switch flag {
	case "together":
		return f.together
	case "parallel":
		return f.parallel
	case "force-parallel":
		return f.forceParallel
	case "output-builds":
		return f.outputBuilds
	case "dpkg-source-diff-ignore":
		return f.diffIgnore
	case "dpkg-source-tar-ignore":
		return f.tarIgnore
	case "dpkg-source-extend-diff-ignore":
		return f.extendDiffIgnore
	case "reprepro-dir":
		return f.repreproDir
	case "reprepro-suite":
		return f.repreproSuite
	case "worker":
		return f.worker
	}
	return nil
}

// applyOverrides records every flag given on the command line as an
// attribute override
func (f *sbuildFlags) applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	for _, m := range attributeFlags {
		if !cmd.Flags().Changed(m.flag) {
			continue
		}
		v := f.value(m.flag)
		if v == nil {
			continue
		}
		if err := cfg.Set(m.attr, v); err != nil {
			return err
		}
	}
	return nil
}

// pipelineOptions reads the build options from the resolved attributes
// and the flags that have no attribute
func (f *sbuildFlags) pipelineOptions(cfg *config.Config) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	opts.Archs = f.archs
	opts.Indep = f.indep
	opts.SourceOnly = f.sourceOnly
	opts.RebuildSource = f.rebuildSource
	opts.VersionsSince = f.versionsSince
	opts.ExtraRepositories = f.extraRepos
	opts.Lintian = f.lintian
	opts.Continue = f.cont
	opts.UploadResults = f.uploadResults

	var err error
	if opts.Together, err = cfg.Bool("sbuild_together"); err != nil {
		return opts, err
	}
	if opts.Parallel, err = cfg.Int("parallel"); err != nil {
		return opts, err
	}
	if opts.ForceParallel, err = cfg.Int("sbuild_force_parallel"); err != nil {
		return opts, err
	}
	if opts.DiffIgnore, err = cfg.String("dpkg_source_diff_ignore"); err != nil {
		return opts, err
	}
	if opts.TarIgnore, err = cfg.Strings("dpkg_source_tar_ignore"); err != nil {
		return opts, err
	}
	if opts.ExtendDiffIgnore, err = cfg.Strings("dpkg_source_extend_diff_ignore"); err != nil {
		return opts, err
	}

	out, err := cfg.String("output_builds")
	if err != nil {
		return opts, err
	}
	if out != "" {
		opts.OutputBuilds = paths.Expand(out)
	}

	dir, ok, err := cfg.OptionalString("reprepro_dir")
	if err != nil {
		return opts, err
	}
	if ok && dir != "" {
		opts.RepreproDir = paths.Expand(dir)
	}
	if opts.RepreproSuite, err = cfg.String("reprepro_suite"); err != nil {
		return opts, err
	}
	return opts, nil
}

// inputs returns the buildables named on the command line, else the
// configured defaults, else the current directory
func inputs(cfg *config.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	configured, err := cfg.Strings("sbuild_buildables")
	if err != nil {
		return nil, err
	}
	if len(configured) > 0 {
		return configured, nil
	}
	return []string{"."}, nil
}

// storageConfig selects the backend holding base images and results. The
// local backend defaults to the directory of the storage attribute, which
// also caches objects fetched from S3.
func storageConfig(cfg *config.Config) (storage.Config, string, error) {
	dir, err := cfg.String("storage")
	if err != nil {
		return storage.Config{}, "", err
	}
	dir = paths.Expand(dir)

	sc := storage.Config{
		Type: settings.GetString("storage.type"),
		Local: storage.LocalConfig{
			BasePath: cli.GetExpandedString(settings, "storage.local.path"),
		},
		S3: storage.S3Config{
			Endpoint:        settings.GetString("storage.s3.endpoint"),
			Region:          settings.GetString("storage.s3.region"),
			Bucket:          settings.GetString("storage.s3.bucket"),
			Prefix:          settings.GetString("storage.s3.prefix"),
			AccessKeyID:     settings.GetString("storage.s3.access_key"),
			SecretAccessKey: settings.GetString("storage.s3.secret_key"),
			UsePathStyle:    settings.GetBool("storage.s3.path_style"),
		},
	}
	if sc.Local.BasePath == "" {
		sc.Local.BasePath = dir
	}
	return sc, dir, nil
}

func workerOptions() worker.Options {
	opts := worker.DefaultOptions()
	opts.SSH = worker.SSHOptions{
		User:       settings.GetString("worker.ssh.user"),
		Identity:   cli.GetExpandedString(settings, "worker.ssh.identity"),
		KnownHosts: cli.GetExpandedString(settings, "worker.ssh.known_hosts"),
		Timeout:    settings.GetDuration("worker.ssh.timeout"),
	}
	return opts
}

// openHistory opens the build history, or returns nil when disabled
func openHistory() (*db.Database, error) {
	if !settings.GetBool("history.enabled") {
		return nil, nil
	}
	return db.New(db.Config{Path: cli.GetExpandedString(settings, "history.path")})
}

func runSbuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := &sbuildOpts
	cfg, err := f.loadConfig()
	if err != nil {
		return err
	}
	if err := f.applyOverrides(cmd, cfg); err != nil {
		return err
	}

	names, err := inputs(cfg, args)
	if err != nil {
		return err
	}
	jobs, err := pipeline.Plan(cfg, names, f.suite)
	if err != nil {
		return err
	}
	opts, err := f.pipelineOptions(cfg)
	if err != nil {
		return err
	}

	sc, cacheDir, err := storageConfig(cfg)
	if err != nil {
		return err
	}
	backend, err := storage.New(sc)
	if err != nil {
		return err
	}
	log.Debug("Using storage", "type", backend.Type(), "location", backend.Location())

	argv, err := cfg.Strings("sbuild_worker")
	if err != nil {
		return err
	}

	options := []pipeline.Option{
		pipeline.WithResults(backend),
		pipeline.WithWorkerName(strings.Join(argv, " ")),
	}
	history, err := openHistory()
	if err != nil {
		log.Warn("Build history unavailable", "error", err)
	} else if history != nil {
		defer history.Close()
		options = append(options, pipeline.WithRecorder(db.NewBuildRepository(history)))
	}

	w, err := worker.Open(ctx, argv, workerOptions())
	if err != nil {
		return err
	}
	defer w.Close()

	p := pipeline.New(w, hostcmd.NewExec(), pipeline.NewImageCache(backend, cacheDir), opts, options...)
	return p.Run(ctx, jobs)
}
