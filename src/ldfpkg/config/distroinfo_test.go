package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const debianCSV = `version,codename,series,created,release,eol,eol-lts,eol-elts
11,Bullseye,bullseye,2019-07-06,2021-08-14,2024-08-14,2026-08-31,2031-06-30
12,Bookworm,bookworm,2021-08-14,2023-06-10,2026-06-10,2028-06-30
13,Trixie,trixie,2023-06-10,2025-08-09
14,Forky,forky,2025-08-09
,Sid,sid,1993-08-16
,Experimental,experimental,1993-08-16
`

func TestParseDistroInfoCSV(t *testing.T) {
	releases, err := ParseDistroInfoCSV(strings.NewReader(debianCSV))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(releases) != 6 {
		t.Fatalf("expected 6 releases, got %d", len(releases))
	}
	if releases[1].Series != "bookworm" || releases[1].Released.Format("2006-01-02") != "2023-06-10" {
		t.Errorf("unexpected row: %+v", releases[1])
	}
	if !releases[2].EOL.IsZero() {
		t.Errorf("trixie has no EOL yet, got %v", releases[2].EOL)
	}
}

func TestParseDistroInfoCSV_MissingColumn(t *testing.T) {
	if _, err := ParseDistroInfoCSV(strings.NewReader("version,codename\n1,x\n")); err == nil {
		t.Fatal("expected an error for a table without series")
	}
}

func TestDistroInfo_Debian(t *testing.T) {
	tests := []struct {
		date    string
		stable  string
		testing string
		old     string
	}{
		{"2026-10-14", "trixie", "forky", "bookworm"},
		{"2025-01-01", "bookworm", "trixie", "bullseye"},
		{"2019-08-01", "buster", "bullseye", "stretch"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			now, _ := time.Parse("2006-01-02", tt.date)
			d := NewDistroInfo("debian", debianReleases, func() time.Time { return now })
			if got := d.Stable(); got != tt.stable {
				t.Errorf("stable: got %q, want %q", got, tt.stable)
			}
			if got := d.Testing(); got != tt.testing {
				t.Errorf("testing: got %q, want %q", got, tt.testing)
			}
			if got := d.Old(); got != tt.old {
				t.Errorf("old: got %q, want %q", got, tt.old)
			}
			if got, ok := d.Devel(); !ok || got != "sid" {
				t.Errorf("devel: got %q", got)
			}
		})
	}
}

func TestDistroInfo_Ubuntu(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	d := NewDistroInfo("ubuntu", ubuntuReleases, now)

	if got := d.Stable(); got != "oracular" {
		t.Errorf("stable: got %q", got)
	}
	if got, ok := d.Devel(); !ok || got != "plucky" {
		t.Errorf("devel: got %q, %v", got, ok)
	}
	if got := d.LTS(); got != "noble" {
		t.Errorf("lts: got %q", got)
	}
	if !d.Before("jammy", "noble") || d.Before("noble", "jammy") {
		t.Error("release order is wrong")
	}
}

func TestLoadDistroInfo_FromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "debian.csv"), []byte(debianCSV), 0644); err != nil {
		t.Fatal(err)
	}

	d := LoadDistroInfo(dir, "debian", fixedClock)
	if len(d.Releases()) != 6 {
		t.Fatalf("expected the file to be used, got %d releases", len(d.Releases()))
	}
	if d.Known("stretch") {
		t.Error("stretch is not in the file")
	}

	fallback := LoadDistroInfo(dir, "ubuntu", fixedClock)
	if fallback == nil || !fallback.Known("noble") {
		t.Error("expected compiled ubuntu data when no file exists")
	}
	if LoadDistroInfo(dir, "steamos", fixedClock) != nil {
		t.Error("unknown vendors have no release data")
	}
}

func TestDebianArchitecture(t *testing.T) {
	tests := map[string]string{
		"amd64":    "amd64",
		"386":      "i386",
		"arm":      "armhf",
		"arm64":    "arm64",
		"ppc64le":  "ppc64el",
		"mips64le": "mips64el",
		"riscv64":  "riscv64",
		"s390x":    "s390x",
	}
	for goarch, want := range tests {
		if got := DebianArchitecture(goarch); got != want {
			t.Errorf("DebianArchitecture(%q) = %q, want %q", goarch, got, want)
		}
	}
}
