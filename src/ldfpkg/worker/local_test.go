package worker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocal(t *testing.T) {
	var out bytes.Buffer
	w, err := NewLocal(Options{Output: &out})
	if err != nil {
		t.Fatal(err)
	}
	scratch := w.Scratch()
	if info, err := os.Stat(scratch); err != nil || !info.IsDir() {
		t.Fatalf("scratch %s not created", scratch)
	}

	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := w.Upload(ctx, src, filepath.Join(scratch, "in", "in.txt")); err != nil {
		t.Fatal(err)
	}

	got, err := w.Capture(ctx, "cat", filepath.Join(scratch, "in", "in.txt"))
	if err != nil || got != "payload" {
		t.Errorf("got %q, %v", got, err)
	}

	status, err := w.Run(ctx, "sh", "-c", "echo visible; exit 4")
	if err != nil || status != 4 {
		t.Errorf("got %d, %v; want status 4", status, err)
	}
	if !strings.Contains(out.String(), "visible") {
		t.Error("command output should reach the output writer")
	}

	dst := filepath.Join(t.TempDir(), "back.txt")
	if err := w.Download(ctx, filepath.Join(scratch, "in", "in.txt"), dst); err != nil {
		t.Fatal(err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "payload" {
		t.Errorf("downloaded %q", b)
	}
	if err := w.Download(ctx, filepath.Join(scratch, "missing"), dst); err == nil {
		t.Error("expected an error for a missing file")
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Error("scratch should be removed on close")
	}
}

func TestOpen_Local(t *testing.T) {
	w, err := Open(context.Background(), []string{"local"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if _, ok := w.(*Local); !ok {
		t.Errorf("got %T, want *Local", w)
	}
}
