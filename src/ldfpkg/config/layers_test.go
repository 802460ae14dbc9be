package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitswalk/ldfpkg/src/common/errors"
)

const sampleLayer = `
defaults:
  mirrors:
    ~: http://proxy:3142/${archive}
    "http://archive.ubuntu.com/ubuntu": http://mirror/ubuntu
  parallel: 2
vendors:
  debian:
    sbuild_together: yes
    suites:
      sid:
        apt_suite: unstable
      bookworm-proposed:
        base: bookworm
`

func TestParseLayer(t *testing.T) {
	l, err := ParseLayer("sample", []byte(sampleLayer))
	if err != nil {
		t.Fatalf("ParseLayer failed: %v", err)
	}

	c := New(WithLayers(l), WithClock(fixedClock), WithDistroInfoDir(""))
	mustSet(t, c, "suite", "sid")

	if n, _ := c.Int("parallel"); n != 2 {
		t.Errorf("got parallel %d, want 2", n)
	}
	if b, _ := c.Bool("sbuild_together"); !b {
		t.Error("expected sbuild_together from the vendor section")
	}

	debian := c.Vendor("debian")
	sid := debian.GetSuite("sid", false)
	if sid.AptSuite() != "unstable" {
		t.Errorf("got apt suite %q, want unstable", sid.AptSuite())
	}
	assertMirror(t, sid, "http://proxy:3142/debian")

	proposed := debian.GetSuite("bookworm-proposed", false)
	if proposed == nil {
		t.Fatal("suite from layer should be known")
	}
	assertHierarchy(t, proposed, proposed, debian.GetSuite("bookworm", false))

	ubuntu := c.Vendor("ubuntu")
	assertMirror(t, ubuntu.GetSuite("noble", true), "http://mirror/ubuntu")
}

func TestParseLayer_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"syntax", "defaults: [", errors.ErrLayerLoad},
		{"unknown attribute", "defaults:\n  colour: blue\n", errors.ErrUnknownAttribute},
		{"bad integer", "defaults:\n  parallel: lots\n", errors.ErrInvalidValue},
		{"bad suites", "vendors:\n  debian:\n    suites: [a, b]\n", errors.ErrLayerLoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLayer(tt.name, []byte(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseLayer_WildcardSpellings(t *testing.T) {
	for _, key := range []string{`""`, `"*"`, `~`} {
		t.Run(key, func(t *testing.T) {
			doc := "defaults:\n  mirrors:\n    " + key + ": http://any/${archive}\n"
			l, err := ParseLayer("wildcard", []byte(doc))
			if err != nil {
				t.Fatal(err)
			}
			c := New(WithLayers(l), WithClock(fixedClock), WithDistroInfoDir(""))
			assertMirror(t, c.Vendor("steamos").GetSuite("brewmaster", true), "http://any/steamos")
		})
	}
}

func TestLoadLayerDirs(t *testing.T) {
	system := t.TempDir()
	user := t.TempDir()
	missing := filepath.Join(t.TempDir(), "nothing")

	write := func(dir, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, LayerFileName), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write(system, "defaults:\n  output_builds: /srv/system\n  data_dir: /opt/ldfpkg\n")
	write(user, "defaults:\n  output_builds: /srv/user\n")

	layers, err := LoadLayerDirs([]string{system, missing, user})
	if err != nil {
		t.Fatalf("LoadLayerDirs failed: %v", err)
	}
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}

	c := New(WithClock(fixedClock), WithDistroInfoDir(""))
	for _, l := range layers {
		c.AddLayer(l)
	}
	if got := mustString(t, c, "output_builds"); got != "/srv/user" {
		t.Errorf("got %q, want the user layer to win", got)
	}
	if got := mustString(t, c, "data_dir"); got != "/opt/ldfpkg" {
		t.Errorf("got %q, want the system value", got)
	}
}

func TestLoadLayerFile_Missing(t *testing.T) {
	_, err := LoadLayerFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, errors.ErrLayerLoad) {
		t.Fatalf("expected layer load error, got %v", err)
	}
}
