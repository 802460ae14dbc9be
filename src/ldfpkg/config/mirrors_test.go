package config

import (
	"testing"

	"github.com/bitswalk/ldfpkg/src/common/errors"
)

func TestMirrors_LookupSuite_Precedence(t *testing.T) {
	c := New(WithClock(fixedClock), WithDistroInfoDir(""))
	debian := c.Vendor("debian")
	ubuntu := c.Vendor("ubuntu")

	m := NewMirrors(map[string]string{
		"":       "http://X/${archive}",
		"ubuntu": "http://Y",
	})

	got, err := m.LookupSuite(debian.GetSuite("sid", true))
	if err != nil || got != "http://X/debian" {
		t.Errorf("got %q (%v), want http://X/debian", got, err)
	}
	got, err = m.LookupSuite(ubuntu.GetSuite("noble", true))
	if err != nil || got != "http://Y" {
		t.Errorf("got %q (%v), want http://Y", got, err)
	}
}

func TestMirrors_LookupSuite_Keys(t *testing.T) {
	c := New(WithClock(fixedClock), WithDistroInfoDir(""))
	debian := c.Vendor("debian")
	security := debian.GetSuite("trixie-security", true)

	tests := []struct {
		name    string
		entries map[string]string
		want    string
	}{
		{
			name: "archive and apt suite",
			entries: map[string]string{
				"security.debian.org/trixie-security": "http://a",
				"security.debian.org":                 "http://b",
				"debian":                              "http://c",
			},
			want: "http://a",
		},
		{
			name: "archive",
			entries: map[string]string{
				"security.debian.org": "http://b",
				"debian":              "http://c",
			},
			want: "http://b",
		},
		{
			name: "canonical archive url",
			entries: map[string]string{
				"http://security.debian.org/debian-security": "http://d",
				"debian": "http://c",
			},
			want: "http://d",
		},
		{
			name:    "vendor",
			entries: map[string]string{"debian": "http://c", "*": "http://w"},
			want:    "http://c",
		},
		{
			name:    "wildcard",
			entries: map[string]string{"*": "http://w/${archive}"},
			want:    "http://w/security.debian.org",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMirrors(tt.entries).LookupSuite(security)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMirrors_LookupSuite_NoMatch(t *testing.T) {
	c := New(WithClock(fixedClock), WithDistroInfoDir(""))
	m := NewMirrors(map[string]string{"ubuntu": "http://Y"})

	_, err := m.LookupSuite(c.Vendor("debian").GetSuite("sid", true))
	if !errors.Is(err, errors.ErrNoMirror) {
		t.Fatalf("expected no mirror error, got %v", err)
	}
}

func TestMirrors_EmptyValueIsNoEntry(t *testing.T) {
	m := NewMirrors(map[string]string{"debian": ""})
	if _, ok := m.Lookup("debian"); ok {
		t.Error("an empty URL must not count as a mirror")
	}
}

func TestMirrors_MergedAcrossLayers(t *testing.T) {
	system, _ := NewLayer("system", map[string]any{
		"mirrors": map[string]any{"*": "http://system/${archive}", "ubuntu": "http://system-ubuntu"},
	}, nil)
	user, _ := NewLayer("user", map[string]any{
		"mirrors": map[string]any{"*": "http://user/${archive}"},
	}, nil)
	c := New(WithLayers(user, system), WithClock(fixedClock), WithDistroInfoDir(""))

	m, err := c.Mirrors()
	if err != nil {
		t.Fatal(err)
	}
	entries := m.Entries()
	if entries[""] != "http://user/${archive}" {
		t.Errorf("higher layer should replace the wildcard, got %q", entries[""])
	}
	if entries["ubuntu"] != "http://system-ubuntu" {
		t.Errorf("lower layer keys should survive, got %q", entries["ubuntu"])
	}
}
