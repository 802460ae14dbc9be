package worker

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/hostcmd"
)

type fakeRuntime struct {
	calls  [][]string
	fail   map[string]int
	output map[string]string
}

func (f *fakeRuntime) Run(ctx context.Context, stdout io.Writer, argv ...string) error {
	f.calls = append(f.calls, argv)
	line := strings.Join(argv, " ")
	for key, status := range f.fail {
		if strings.Contains(line, key) {
			return &hostcmd.ExitError{Argv: argv, Status: status}
		}
	}
	for key, out := range f.output {
		if strings.Contains(line, key) && stdout != nil {
			io.WriteString(stdout, out)
		}
	}
	return nil
}

func (f *fakeRuntime) last() string {
	return strings.Join(f.calls[len(f.calls)-1], " ")
}

func TestContainer_Lifecycle(t *testing.T) {
	rt := &fakeRuntime{output: map[string]string{"mktemp": "/tmp/ldfpkg.abcdefgh\n"}}
	c, err := startContainer(context.Background(), TypePodman, "debian:trixie", Options{Privileged: true}, rt)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	start := strings.Join(rt.calls[0], " ")
	want := "podman run -d --rm --name " + c.Name() + " --privileged --entrypoint sleep debian:trixie infinity"
	if start != want {
		t.Errorf("got %q, want %q", start, want)
	}
	if !strings.HasPrefix(c.Name(), "ldfpkg-") {
		t.Errorf("unexpected container name %q", c.Name())
	}
	if c.Scratch() != "/tmp/ldfpkg.abcdefgh" {
		t.Errorf("got scratch %q", c.Scratch())
	}

	status, err := c.Run(context.Background(), "apt-get", "-y", "update")
	if err != nil || status != 0 {
		t.Fatalf("Run: %d %v", status, err)
	}
	if rt.last() != "podman exec "+c.Name()+" apt-get -y update" {
		t.Errorf("unexpected exec: %s", rt.last())
	}

	if err := c.Upload(context.Background(), "/host/sbuild.conf", "/etc/schroot/chroot.d/ldfpkg"); err != nil {
		t.Fatal(err)
	}
	if rt.last() != "podman cp /host/sbuild.conf "+c.Name()+":/etc/schroot/chroot.d/ldfpkg" {
		t.Errorf("unexpected upload: %s", rt.last())
	}

	if err := c.Download(context.Background(), "/tmp/x/out/a.changes", "/host/a.changes"); err != nil {
		t.Fatal(err)
	}
	if rt.last() != "podman cp "+c.Name()+":/tmp/x/out/a.changes /host/a.changes" {
		t.Errorf("unexpected download: %s", rt.last())
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if rt.last() != "podman rm -f "+c.Name() {
		t.Errorf("unexpected teardown: %s", rt.last())
	}
}

func TestContainer_ExitStatus(t *testing.T) {
	rt := &fakeRuntime{
		output: map[string]string{"mktemp": "/tmp/s\n"},
		fail:   map[string]int{"test -e": 1},
	}
	c, err := startContainer(context.Background(), TypeDocker, "ubuntu:noble", Options{}, rt)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(strings.Join(rt.calls[0], " "), "--privileged") {
		t.Error("privileged was not requested")
	}

	status, err := c.Run(context.Background(), "test", "-e", "/nope")
	if err != nil || status != 1 {
		t.Errorf("got %d, %v; want status 1", status, err)
	}
	if _, err := c.Capture(context.Background(), "test", "-e", "/nope"); !errors.Is(err, errors.ErrWorkerCommand) {
		t.Errorf("expected worker command error, got %v", err)
	}
}

func TestContainer_StartFailure(t *testing.T) {
	rt := &fakeRuntime{fail: map[string]int{"run -d": 125}}
	_, err := startContainer(context.Background(), TypeNerdctl, "missing:image", Options{}, rt)
	if !errors.Is(err, errors.ErrWorkerStart) {
		t.Fatalf("expected worker start error, got %v", err)
	}
}
