package buildable

import "testing"

func TestArchMatches(t *testing.T) {
	tests := []struct {
		arch     string
		wildcard string
		want     bool
	}{
		{"amd64", "amd64", true},
		{"amd64", "any", true},
		{"amd64", "linux-any", true},
		{"amd64", "any-amd64", true},
		{"amd64", "i386", false},
		{"amd64", "all", false},
		{"all", "all", true},
		{"all", "any", false},
		{"i386", "any-i386", true},
		{"hurd-i386", "any-i386", true},
		{"hurd-i386", "linux-any", false},
		{"armhf", "any-arm", true},
		{"armel", "any-arm", true},
		{"arm64", "any-arm", false},
		{"kfreebsd-amd64", "kfreebsd-any", true},
		{"x32", "any-amd64", true},
		{"amd64", "gnu-any-any", true},
		{"musl-linux-amd64", "gnu-linux-any", false},
		{"mips64el", "any-mips64el", true},
	}
	for _, tt := range tests {
		if got := ArchMatches(tt.arch, tt.wildcard); got != tt.want {
			t.Errorf("ArchMatches(%q, %q) = %v, want %v", tt.arch, tt.wildcard, got, tt.want)
		}
	}
}

func TestBuildsOn(t *testing.T) {
	if !BuildsOn([]string{"all", "linux-any"}, "arm64") {
		t.Error("linux-any should build on arm64")
	}
	if BuildsOn([]string{"all"}, "amd64") {
		t.Error("all does not build on amd64")
	}
	if BuildsOn(nil, "amd64") {
		t.Error("no wildcards builds nowhere")
	}
}
