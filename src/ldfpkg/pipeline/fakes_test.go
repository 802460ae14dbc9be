package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bitswalk/ldfpkg/src/ldfpkg/config"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/db"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/storage"
)

func fixedClock() time.Time {
	return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	l, err := config.NewLayer("test", map[string]any{
		"mirrors": map[any]any{nil: "http://mirror/${archive}"},
	}, nil)
	if err != nil {
		t.Fatalf("NewLayer failed: %v", err)
	}
	return config.New(config.WithLayers(l), config.WithClock(fixedClock), config.WithDistroInfoDir(""))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func changesContent(arch string, files ...string) string {
	s := "Format: 1.8\nSource: hello\nArchitecture: " + arch + "\nVersion: 2.10-3\nDistribution: experimental\nFiles:\n"
	for _, f := range files {
		s += " d41d8cd98f00b204e9800998ecf8427e 1024 devel optional " + f + "\n"
	}
	return s
}

const treeChangelog = `hello (2.10-3) experimental; urgency=medium

  * New upstream release.

 -- Jane Doe <jane@example.org>  Mon, 12 Oct 2026 10:00:00 +0000
`

const treeControl = `Source: hello
Maintainer: Jane Doe <jane@example.org>

Package: hello
Architecture: any
Description: example package

Package: hello-doc
Architecture: all
Description: example documentation
`

// writeTree creates an unpacked source tree next to its upstream tarball
func writeTree(t *testing.T) string {
	t.Helper()
	parent := t.TempDir()
	dir := filepath.Join(parent, "hello")
	writeFile(t, filepath.Join(dir, "debian", "changelog"), treeChangelog)
	writeFile(t, filepath.Join(dir, "debian", "control"), treeControl)
	writeFile(t, filepath.Join(dir, "hello.c"), "int main(void) { return 0; }\n")
	writeFile(t, filepath.Join(parent, "hello_2.10.orig.tar.gz"), "upstream")
	return dir
}

// fakeWorker keeps its scratch directory on the host and simulates the
// commands the pipeline runs
type fakeWorker struct {
	scratch string
	arch    string
	runs    [][]string
	uploads []string
	// files holds uploads outside the scratch directory
	files  map[string]string
	sbuild func(w *fakeWorker, argv []string) int
	closed bool
}

func newFakeWorker(t *testing.T) *fakeWorker {
	return &fakeWorker{
		scratch: t.TempDir(),
		arch:    "amd64",
		files:   map[string]string{},
		sbuild:  simulateSbuild(""),
	}
}

func (w *fakeWorker) Run(ctx context.Context, argv ...string) (int, error) {
	w.runs = append(w.runs, argv)
	switch argv[0] {
	case "env":
		return w.sbuild(w, argv), nil
	case "test":
		if _, err := os.Stat(argv[len(argv)-1]); err != nil {
			return 1, nil
		}
	case "mkdir", "install":
		if err := os.MkdirAll(argv[len(argv)-1], 0755); err != nil {
			return 1, nil
		}
	case "ln":
		if err := os.Symlink(argv[2], argv[3]); err != nil {
			return 1, nil
		}
	}
	return 0, nil
}

func (w *fakeWorker) Capture(ctx context.Context, argv ...string) (string, error) {
	w.runs = append(w.runs, argv)
	switch argv[0] {
	case "dpkg":
		return w.arch + "\n", nil
	case "readlink":
		return argv[2] + "\n", nil
	case "sh":
		if strings.HasPrefix(argv[2], "exec ls") {
			matches, _ := filepath.Glob(argv[4] + "/*.dsc")
			return strings.Join(matches, "\n") + "\n", nil
		}
	}
	return "", nil
}

func (w *fakeWorker) Upload(ctx context.Context, local, remote string) error {
	w.uploads = append(w.uploads, remote)
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(remote, w.scratch) {
		w.files[remote] = string(data)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(remote), 0755); err != nil {
		return err
	}
	return os.WriteFile(remote, data, 0644)
}

func (w *fakeWorker) Download(ctx context.Context, remote, local string) error {
	data, err := os.ReadFile(remote)
	if err != nil {
		return err
	}
	return os.WriteFile(local, data, 0644)
}

func (w *fakeWorker) Scratch() string {
	return w.scratch
}

func (w *fakeWorker) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWorker) sbuildRuns() [][]string {
	var out [][]string
	for _, argv := range w.runs {
		if argv[0] == "env" {
			out = append(out, argv)
		}
	}
	return out
}

func (w *fakeWorker) countUploads(suffix string) int {
	n := 0
	for _, u := range w.uploads {
		if strings.HasSuffix(u, suffix) {
			n++
		}
	}
	return n
}

func sbuildMode(argv []string) string {
	has := func(s string) bool {
		for _, a := range argv {
			if a == s {
				return true
			}
		}
		return false
	}
	switch {
	case has("--no-arch-any") && has("--source"):
		return "source"
	case has("--no-arch-any"):
		return "all"
	}
	for i, a := range argv {
		if a == "--arch" {
			return argv[i+1]
		}
	}
	return ""
}

// simulateSbuild writes what sbuild would leave in out/ for hello 2.10-3.
// Source builds emit a .dsc declaring dscArchs ("any all" when empty).
// Architectures listed in fail exit non-zero.
func simulateSbuild(dscArchs string, fail ...string) func(w *fakeWorker, argv []string) int {
	if dscArchs == "" {
		dscArchs = "any all"
	}
	return func(w *fakeWorker, argv []string) int {
		mode := sbuildMode(argv)
		for _, f := range fail {
			if f == mode {
				return 1
			}
		}

		out := filepath.Join(w.scratch, "out")
		var files []string
		switch mode {
		case "source":
			dsc := "Format: 3.0 (quilt)\nSource: hello\nBinary: hello, hello-doc\nArchitecture: " + dscArchs +
				"\nVersion: 2.10-3\nFiles:\n d41d8cd98f00b204e9800998ecf8427e 1024 hello_2.10.orig.tar.gz\n" +
				" d41d8cd98f00b204e9800998ecf8427e 512 hello_2.10-3.debian.tar.xz\n"
			os.WriteFile(filepath.Join(out, "hello_2.10-3.dsc"), []byte(dsc), 0644)
			files = []string{"hello_2.10-3.dsc", "hello_2.10.orig.tar.gz", "hello_2.10-3.debian.tar.xz"}
		case "all":
			files = []string{"hello-doc_2.10-3_all.deb"}
		default:
			files = []string{fmt.Sprintf("hello_2.10-3_%s.deb", mode)}
		}
		for _, f := range files {
			if _, err := os.Stat(filepath.Join(out, f)); err != nil {
				os.WriteFile(filepath.Join(out, f), []byte(f), 0644)
			}
		}
		os.WriteFile(filepath.Join(out, "hello_2.10-3_"+mode+".changes"), []byte(changesContent(mode, files...)), 0644)

		useArch := mode
		if mode == "source" || mode == "all" {
			useArch = w.arch
		}
		os.WriteFile(filepath.Join(out, "hello_2.10-3_"+useArch+".build"), []byte("log of "+mode), 0644)
		return 0
	}
}

// fakeHost records host commands; mergechanges echoes its first input
type fakeHost struct {
	runs    [][]string
	stdouts []io.Writer
}

func (h *fakeHost) Run(ctx context.Context, stdout io.Writer, argv ...string) error {
	h.runs = append(h.runs, argv)
	h.stdouts = append(h.stdouts, stdout)
	if argv[0] != "mergechanges" || stdout == nil {
		return nil
	}
	for _, a := range argv[1:] {
		if strings.HasPrefix(a, "-") {
			continue
		}
		data, err := os.ReadFile(a)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	}
	return nil
}

func (h *fakeHost) commands(name string) [][]string {
	var out [][]string
	for _, argv := range h.runs {
		if argv[0] == name {
			out = append(out, argv)
		}
	}
	return out
}

// newTestImages creates a local image store holding the given images
func newTestImages(t *testing.T, names ...string) *ImageCache {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		writeFile(t, filepath.Join(dir, n), "image "+n)
	}
	backend, err := storage.NewLocal(storage.LocalConfig{BasePath: dir})
	if err != nil {
		t.Fatal(err)
	}
	return NewImageCache(backend, t.TempDir())
}

type memoryRecorder struct {
	records []*db.BuildRecord
}

func (m *memoryRecorder) Create(rec *db.BuildRecord) error {
	m.records = append(m.records, rec)
	return nil
}
