package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/buildable"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/config"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/db"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/storage"
)

func newTestPipeline(t *testing.T, w *fakeWorker, host *fakeHost, opts Options, images ...string) *Pipeline {
	t.Helper()
	if len(images) == 0 {
		images = []string{"sbuild-debian-sid-amd64.tar.gz"}
	}
	if opts.OutputBuilds == "" || opts.OutputBuilds == ".." {
		opts.OutputBuilds = t.TempDir()
	}
	return New(w, host, newTestImages(t, images...), opts, WithPackageQuery(nil))
}

func modes(w *fakeWorker) []string {
	var out []string
	for _, argv := range w.sbuildRuns() {
		out = append(out, sbuildMode(argv))
	}
	return out
}

func last(argv []string) string {
	return argv[len(argv)-1]
}

func TestPlan(t *testing.T) {
	tree := writeTree(t)

	unreleased := writeTree(t)
	writeFile(t, filepath.Join(unreleased, "debian", "changelog"),
		strings.Replace(treeChangelog, "experimental", "UNRELEASED", 1))

	tests := []struct {
		name        string
		input       string
		suite       string
		wantSuite   string
		wantNominal string
	}{
		{"tree keeps its suite", tree, "", "experimental", "experimental"},
		{"explicit suite wins", tree, "sid", "sid", "experimental"},
		{"unreleased builds for the default suite", unreleased, "", "sid", "UNRELEASED"},
		{"alias is resolved", "hello", "unstable", "sid", "unstable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := Plan(newTestConfig(t), []string{tt.input}, tt.suite)
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			b := jobs[0].Buildable
			if b.Suite != tt.wantSuite || b.NominalSuite != tt.wantNominal {
				t.Errorf("suite = %q nominal = %q, want %q and %q", b.Suite, b.NominalSuite, tt.wantSuite, tt.wantNominal)
			}
			if jobs[0].Suite.Name() != tt.wantSuite {
				t.Errorf("job suite = %s, want %s", jobs[0].Suite, tt.wantSuite)
			}
			if jobs[0].State != StatePending || jobs[0].ID == "" {
				t.Errorf("job = %+v", jobs[0])
			}
		})
	}
}

func TestPlan_Errors(t *testing.T) {
	noMirrors := config.New(config.WithClock(fixedClock), config.WithDistroInfoDir(""))

	bad := filepath.Join(t.TempDir(), "hello.tar.gz")
	writeFile(t, bad, "")

	tests := []struct {
		name   string
		cfg    *config.Config
		inputs []string
		suite  string
		want   []error
	}{
		{"no mirror", noMirrors, []string{"hello"}, "sid", []error{errors.ErrNoMirror}},
		{"no suite", newTestConfig(t), []string{"hello"}, "", []error{errors.ErrSuiteRequired}},
		{"unsupported input", newTestConfig(t), []string{bad}, "sid", []error{errors.ErrUnsupportedInput}},
		{"every input is reported", newTestConfig(t), []string{bad, "hello"}, "",
			[]error{errors.ErrUnsupportedInput, errors.ErrSuiteRequired}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := Plan(tt.cfg, tt.inputs, tt.suite)
			if err == nil {
				t.Fatalf("Plan() = %v, want error", jobs)
			}
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("Plan() error = %v, want %v", err, want)
				}
			}
		})
	}
}

func TestRun_TreeBuildsSourceFirst(t *testing.T) {
	ctx := context.Background()
	jobs, err := Plan(newTestConfig(t), []string{writeTree(t)}, "")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	job := jobs[0]

	w := newFakeWorker(t)
	// The built .dsc disagrees with debian/control on purpose
	w.sbuild = simulateSbuild("armhf all")
	host := &fakeHost{}
	rec := &memoryRecorder{}

	opts := DefaultOptions()
	opts.OutputBuilds = t.TempDir()
	p := New(w, host, newTestImages(t, "sbuild-debian-sid-amd64.tar.gz"), opts,
		WithPackageQuery(nil), WithRecorder(rec), WithWorkerName("fake"))

	if err := p.Run(ctx, jobs); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got, want := modes(w), []string{"source", "all"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("sbuild modes = %v, want %v", got, want)
	}
	runs := w.sbuildRuns()
	if got := last(runs[0]); got != w.scratch+"/in/hello_2.10-3_source" {
		t.Errorf("source build of %q, want the unpacked tree", got)
	}
	if got := last(runs[1]); got != w.scratch+"/out/hello_2.10-3.dsc" {
		t.Errorf("binary build of %q, want the built .dsc", got)
	}

	b := job.Buildable
	if !reflect.DeepEqual(b.ArchWildcards, []string{"all", "armhf"}) {
		t.Errorf("ArchWildcards = %v, want those of the built .dsc", b.ArchWildcards)
	}
	if !reflect.DeepEqual(job.Selection.Archs, []string{"all"}) {
		t.Errorf("Selection = %+v", job.Selection)
	}
	if b.Dsc != filepath.Join(opts.OutputBuilds, "hello_2.10-3.dsc") {
		t.Errorf("Dsc = %q", b.Dsc)
	}

	if got, want := job.ChangesProduced.Keys(), []string{"source", "all"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ChangesProduced = %v, want %v", got, want)
	}
	if got, want := job.Merged.Keys(), []string{MergeSource, MergeSourceAll}; !reflect.DeepEqual(got, want) {
		t.Errorf("Merged = %v, want %v", got, want)
	}

	logPath, _ := job.Logs.Get("all")
	data, err := os.ReadFile(logPath)
	if err != nil || string(data) != "log of all" {
		t.Errorf("log of all = %q, %v", data, err)
	}
	if filepath.Base(logPath) != "hello_2.10-3_all.build" {
		t.Errorf("log copied as %s", logPath)
	}

	for _, f := range []string{"hello_2.10.orig.tar.gz", "hello_2.10-3.debian.tar.xz", "hello-doc_2.10-3_all.deb"} {
		if _, err := os.Stat(filepath.Join(opts.OutputBuilds, f)); err != nil {
			t.Errorf("%s not copied back: %v", f, err)
		}
	}

	if n := w.countUploads("sbuild-debian-sid-amd64.tar.gz"); n != 1 {
		t.Errorf("image uploaded %d times, want 1", n)
	}
	if conf := w.files[SchrootConfPath]; !strings.Contains(conf, "file="+w.scratch+"/in/sbuild-debian-sid-amd64.tar.gz") {
		t.Errorf("schroot configuration = %q", conf)
	}

	lintian := host.commands("lintian")
	sourceAll, _ := job.Merged.Get(MergeSourceAll)
	if len(lintian) != 1 || last(lintian[0]) != sourceAll {
		t.Errorf("lintian runs = %v, want one on %s", lintian, sourceAll)
	}

	if job.State != StateProduced {
		t.Errorf("State = %s", job.State)
	}
	if len(rec.records) != 1 || rec.records[0].Status != db.BuildStatusProduced || rec.records[0].Worker != "fake" {
		t.Errorf("records = %+v", rec.records)
	}
	if got := len(rec.records[0].Archs); got != 2 {
		t.Errorf("recorded %d architectures, want 2", got)
	}
}

func TestRun_ArchiveReference(t *testing.T) {
	tests := []struct {
		name        string
		rebuild     bool
		wantChanges []string
		wantMerged  []string
		wantLast    string
	}{
		{
			name:        "source is only inspected",
			wantChanges: []string{"all", "amd64"},
			wantMerged:  []string{MergeBinary},
			wantLast:    "hello",
		},
		{
			name:        "source is rebuilt",
			rebuild:     true,
			wantChanges: []string{"source", "all", "amd64"},
			wantMerged:  []string{MergeSource, MergeSourceAll, MergeBinary, MergeSourceBinary},
			wantLast:    "/out/hello_2.10-3.dsc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := Plan(newTestConfig(t), []string{"hello"}, "sid")
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}

			w := newFakeWorker(t)
			host := &fakeHost{}
			opts := DefaultOptions()
			opts.RebuildSource = tt.rebuild
			p := newTestPipeline(t, w, host, opts)

			if err := p.Run(context.Background(), jobs); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			job := jobs[0]

			if got, want := modes(w), []string{"source", "all", "amd64"}; !reflect.DeepEqual(got, want) {
				t.Errorf("sbuild modes = %v, want %v", got, want)
			}
			if got := last(w.sbuildRuns()[0]); got != "hello" {
				t.Errorf("source build of %q, want the archive reference", got)
			}
			if got := last(w.sbuildRuns()[2]); !strings.HasSuffix(got, tt.wantLast) {
				t.Errorf("amd64 build of %q, want suffix %q", got, tt.wantLast)
			}
			if got := job.ChangesProduced.Keys(); !reflect.DeepEqual(got, tt.wantChanges) {
				t.Errorf("ChangesProduced = %v, want %v", got, tt.wantChanges)
			}
			if got := job.Merged.Keys(); !reflect.DeepEqual(got, tt.wantMerged) {
				t.Errorf("Merged = %v, want %v", got, tt.wantMerged)
			}
			if job.Buildable.ProductPrefix() != "hello_2.10-3" {
				t.Errorf("ProductPrefix() = %q", job.Buildable.ProductPrefix())
			}
		})
	}
}

func TestRun_ArchiveReferenceWithTwoDscs(t *testing.T) {
	jobs, _ := Plan(newTestConfig(t), []string{"hello"}, "sid")
	w := newFakeWorker(t)
	w.sbuild = func(w *fakeWorker, argv []string) int {
		for _, name := range []string{"a_1.dsc", "b_1.dsc"} {
			os.WriteFile(filepath.Join(w.scratch, "out", name), []byte("Source: x\nVersion: 1\n"), 0644)
		}
		return 0
	}
	p := newTestPipeline(t, w, &fakeHost{}, DefaultOptions())

	err := p.Run(context.Background(), jobs)
	if !errors.Is(err, errors.ErrInvariant) {
		t.Fatalf("Run() error = %v, want invariant violation", err)
	}
	if errors.GetExitCode(err) != errors.ExitInvariant {
		t.Errorf("exit code = %d", errors.GetExitCode(err))
	}
}

func writeDscInput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello_2.10-3.dsc"),
		"Format: 3.0 (quilt)\nSource: hello\nBinary: hello\nArchitecture: any\nVersion: 2.10-3\nFiles:\n"+
			" d41d8cd98f00b204e9800998ecf8427e 1024 hello_2.10.orig.tar.gz\n")
	writeFile(t, filepath.Join(dir, "hello_2.10.orig.tar.gz"), "upstream")
	return filepath.Join(dir, "hello_2.10-3.dsc")
}

func TestRun_FailurePolicy(t *testing.T) {
	tests := []struct {
		name      string
		cont      bool
		wantModes []string
		wantKeys  []string
	}{
		{"stop at first failure", false, []string{"amd64"}, nil},
		{"continue with other architectures", true, []string{"amd64", "i386"}, []string{MergeBinary}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := Plan(newTestConfig(t), []string{writeDscInput(t)}, "sid")
			if err != nil {
				t.Fatal(err)
			}
			w := newFakeWorker(t)
			w.sbuild = simulateSbuild("", "amd64")
			host := &fakeHost{}
			opts := DefaultOptions()
			opts.Archs = []string{"amd64", "i386"}
			opts.Continue = tt.cont
			p := newTestPipeline(t, w, host, opts,
				"sbuild-debian-sid-amd64.tar.gz", "sbuild-debian-sid-i386.tar.gz")

			err = p.Run(context.Background(), jobs)
			if !errors.Is(err, errors.ErrBuildFailed) {
				t.Fatalf("Run() error = %v, want build failure", err)
			}
			if got := modes(w); !reflect.DeepEqual(got, tt.wantModes) {
				t.Errorf("sbuild modes = %v, want %v", got, tt.wantModes)
			}
			if got := jobs[0].Merged.Keys(); !reflect.DeepEqual(got, tt.wantKeys) {
				t.Errorf("Merged = %v, want %v", got, tt.wantKeys)
			}
			if jobs[0].State != StateFailed {
				t.Errorf("State = %s", jobs[0].State)
			}
			if len(host.commands("lintian")) != 0 {
				t.Error("lintian ran on a failed job")
			}
			if jobs[0].Builds[0].State != StateFailed {
				t.Errorf("amd64 build state = %s", jobs[0].Builds[0].State)
			}
		})
	}
}

func TestRun_SourceFailureAbortsJob(t *testing.T) {
	jobs, _ := Plan(newTestConfig(t), []string{writeTree(t), "hello"}, "sid")
	w := newFakeWorker(t)
	w.sbuild = simulateSbuild("", "source")
	opts := DefaultOptions()
	opts.Continue = true
	p := newTestPipeline(t, w, &fakeHost{}, opts)

	err := p.Run(context.Background(), jobs)
	if !errors.Is(err, errors.ErrBuildFailed) {
		t.Fatalf("Run() error = %v", err)
	}
	// Both jobs are attempted, neither goes past its source stage
	if got, want := modes(w), []string{"source", "source"}; !reflect.DeepEqual(got, want) {
		t.Errorf("sbuild modes = %v, want %v", got, want)
	}
	for _, job := range jobs {
		if job.State != StateFailed {
			t.Errorf("%s state = %s", job, job.State)
		}
	}
}

func TestRun_MissingImage(t *testing.T) {
	jobs, _ := Plan(newTestConfig(t), []string{writeDscInput(t)}, "sid")
	w := newFakeWorker(t)
	p := newTestPipeline(t, w, &fakeHost{}, DefaultOptions(), "sbuild-debian-bookworm-amd64.tar.gz")

	err := p.Run(context.Background(), jobs)
	if !errors.Is(err, errors.ErrStorageNotFound) {
		t.Fatalf("Run() error = %v, want missing image", err)
	}
	if len(w.sbuildRuns()) != 0 {
		t.Error("sbuild ran without an image")
	}
}

func TestRun_MissingBuildLog(t *testing.T) {
	jobs, _ := Plan(newTestConfig(t), []string{writeDscInput(t)}, "sid")
	w := newFakeWorker(t)
	simulate := simulateSbuild("")
	w.sbuild = func(w *fakeWorker, argv []string) int {
		status := simulate(w, argv)
		buildLogs, _ := filepath.Glob(filepath.Join(w.scratch, "out", "*.build"))
		for _, l := range buildLogs {
			os.Remove(l)
		}
		return status
	}
	p := newTestPipeline(t, w, &fakeHost{}, DefaultOptions())

	if err := p.Run(context.Background(), jobs); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	job := jobs[0]
	if job.State != StateProduced {
		t.Errorf("job state = %s", job.State)
	}
	if !job.ChangesProduced.Has("amd64") {
		t.Error("amd64 changes were not collected")
	}
	if job.Logs.Has("amd64") {
		t.Error("amd64 log recorded although sbuild left none")
	}

	listed := false
	for _, argv := range w.runs {
		if argv[0] == "sh" && strings.Contains(argv[2], "ls -l *.build") {
			listed = true
		}
	}
	if !listed {
		t.Error("candidate build logs were not listed")
	}
}

func TestRun_Publish(t *testing.T) {
	jobs, _ := Plan(newTestConfig(t), []string{writeDscInput(t)}, "sid")
	w := newFakeWorker(t)
	host := &fakeHost{}
	opts := DefaultOptions()
	opts.RepreproDir = "/srv/repo"
	var out bytes.Buffer
	opts.Output = &out
	p := newTestPipeline(t, w, host, opts)

	if err := p.Run(context.Background(), jobs); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, argv := range host.runs {
		if argv[0] != "lintian" && argv[0] != "reprepro" {
			continue
		}
		if host.stdouts[i] != &out {
			t.Errorf("%s output = %v, want the configured writer", argv[0], host.stdouts[i])
		}
	}
	if got := len(host.commands("lintian")); got != 1 {
		t.Errorf("lintian ran %d times, want 1", got)
	}

	binary, _ := jobs[0].Merged.Get(MergeBinary)
	want := [][]string{
		{"reprepro", "-b", "/srv/repo", "removesrc", "sid", "hello"},
		{"reprepro", "--ignore=wrongdistribution", "--ignore=missingfile", "-b", "/srv/repo", "include", "sid", binary},
	}
	if got := host.commands("reprepro"); !reflect.DeepEqual(got, want) {
		t.Errorf("reprepro runs = %v, want %v", got, want)
	}
}

func TestPrepare(t *testing.T) {
	w := newFakeWorker(t)
	w.arch = "arm64"
	p := newTestPipeline(t, w, &fakeHost{}, DefaultOptions())

	if err := p.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := p.Prepare(context.Background()); err != nil {
		t.Fatalf("second Prepare() error = %v", err)
	}
	if p.WorkerArch() != "arm64" {
		t.Errorf("WorkerArch() = %q", p.WorkerArch())
	}

	var installs int
	for _, argv := range w.runs {
		if argv[0] == "apt-get" && argv[len(argv)-1] == WorkerPackages[len(WorkerPackages)-1] {
			installs++
		}
	}
	if installs != 1 {
		t.Errorf("tools installed %d times, want 1", installs)
	}
}

func TestJob_Record(t *testing.T) {
	b := buildable.ParseArchiveRef("hello_2.10-3")
	b.Suite = "sid"
	job := NewJob(b, newTestConfig(t).Vendor("debian").GetSuite("sid", true))
	job.State = StateFailed
	job.Err = errors.ErrBuildFailed.WithMessage("sbuild failed")
	job.Builds = []*Build{{Arch: "amd64", State: StateFailed}}
	job.Logs.Set("amd64", "/out/hello_2.10-3_amd64.build")

	rec := job.Record("local")
	if rec.ID != job.ID || rec.Version != "2.10-3" || rec.Vendor != "debian" || rec.Suite != "sid" {
		t.Errorf("Record() = %+v", rec)
	}
	if rec.Status != db.BuildStatusFailed || !strings.Contains(rec.ErrorMessage, "sbuild failed") {
		t.Errorf("Record() status = %s error = %q", rec.Status, rec.ErrorMessage)
	}
	if len(rec.Archs) != 1 || rec.Archs[0].Log != "/out/hello_2.10-3_amd64.build" || rec.Archs[0].Changes != "" {
		t.Errorf("Record() archs = %+v", rec.Archs)
	}
	if rec.StartedAt != nil {
		t.Errorf("StartedAt = %v, want nil", rec.StartedAt)
	}
}

func TestRun_UploadResults(t *testing.T) {
	jobs, _ := Plan(newTestConfig(t), []string{writeDscInput(t)}, "sid")
	results, err := storage.NewLocal(storage.LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	w := newFakeWorker(t)
	opts := DefaultOptions()
	opts.OutputBuilds = t.TempDir()
	opts.UploadResults = true
	p := New(w, &fakeHost{}, newTestImages(t, "sbuild-debian-sid-amd64.tar.gz"), opts,
		WithPackageQuery(nil), WithResults(results))

	if err := p.Run(context.Background(), jobs); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	prefix := "results/hello/2.10-3/" + jobs[0].ID + "/"
	objects, err := results.List(context.Background(), prefix)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, o := range objects {
		keys = append(keys, strings.TrimPrefix(o.Key, prefix))
	}
	want := []string{"hello_2.10-3_amd64.deb", "hello_2.10-3_binary.changes"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("uploaded %v, want %v", keys, want)
	}
}
