package buildable

import (
	"context"
	"io"
	"reflect"
	"strings"
	"testing"
)

type fakeQuery struct {
	installed []string
	asked     []string
}

func (q *fakeQuery) Installed(ctx context.Context, packages []string) ([]string, error) {
	q.asked = packages
	return q.installed, nil
}

func TestSelectArchs(t *testing.T) {
	tests := []struct {
		name      string
		wildcards []string
		installed []string
		opts      SelectOptions
		want      Selection
	}{
		{
			name:      "native only",
			wildcards: []string{"any"},
			opts:      SelectOptions{WorkerArch: "amd64"},
			want:      Selection{Archs: []string{"amd64"}},
		},
		{
			name:      "native wins over i386 special case",
			wildcards: []string{"i386", "amd64"},
			opts:      SelectOptions{WorkerArch: "amd64"},
			want:      Selection{Archs: []string{"amd64"}},
		},
		{
			name:      "i386 on amd64 worker",
			wildcards: []string{"i386"},
			opts:      SelectOptions{WorkerArch: "amd64"},
			want:      Selection{Archs: []string{"i386"}},
		},
		{
			name:      "i386 special case only on amd64",
			wildcards: []string{"i386"},
			opts:      SelectOptions{WorkerArch: "arm64"},
			want:      Selection{},
		},
		{
			name:      "all only",
			wildcards: []string{"all"},
			opts:      SelectOptions{WorkerArch: "amd64"},
			want:      Selection{Archs: []string{"all"}, Indep: true},
		},
		{
			name:      "all only together",
			wildcards: []string{"all"},
			opts:      SelectOptions{WorkerArch: "amd64", Together: true},
			want:      Selection{Archs: []string{"all"}, Indep: true},
		},
		{
			name:      "any and all",
			wildcards: []string{"any", "all"},
			opts:      SelectOptions{WorkerArch: "amd64"},
			want:      Selection{Archs: []string{"all", "amd64"}, Indep: true},
		},
		{
			name:      "any and all together",
			wildcards: []string{"any", "all"},
			opts:      SelectOptions{WorkerArch: "amd64", Together: true},
			want:      Selection{Archs: []string{"amd64"}, Indep: true, TogetherWith: "amd64"},
		},
		{
			name:      "installed multiarch packages",
			wildcards: []string{"linux-any"},
			installed: []string{"libhello1:amd64", "libhello1:i386", "hello-doc", "libhello1:armhf"},
			opts:      SelectOptions{WorkerArch: "amd64"},
			want:      Selection{Archs: []string{"amd64", "i386", "armhf"}},
		},
		{
			name:      "together with first when not native",
			wildcards: []string{"all", "armhf"},
			installed: []string{"libhello1:armhf"},
			opts:      SelectOptions{WorkerArch: "amd64", Together: true},
			want:      Selection{Archs: []string{"armhf"}, Indep: true, TogetherWith: "armhf"},
		},
		{
			name:      "explicit list wins",
			wildcards: []string{"any", "all"},
			installed: []string{"libhello1:i386"},
			opts:      SelectOptions{WorkerArch: "amd64", Archs: []string{"s390x"}},
			want:      Selection{Archs: []string{"s390x"}},
		},
		{
			name:      "explicit indep",
			wildcards: []string{"any", "all"},
			opts:      SelectOptions{WorkerArch: "amd64", Indep: true},
			want:      Selection{Archs: []string{"all"}, Indep: true},
		},
		{
			name:      "indep ignored without all",
			wildcards: []string{"any"},
			opts:      SelectOptions{WorkerArch: "amd64", Indep: true, Archs: []string{"amd64"}},
			want:      Selection{Archs: []string{"amd64"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuery{installed: tt.installed}
			id := Identity{Source: "hello", ArchWildcards: tt.wildcards, Binaries: []string{"libhello1", "hello-doc"}}
			got, err := SelectArchs(context.Background(), id, tt.opts, q)
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Archs) == 0 {
				got.Archs = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSelectArchs_ExplicitSkipsQuery(t *testing.T) {
	q := &fakeQuery{installed: []string{"hello:i386"}}
	id := Identity{Source: "hello", ArchWildcards: []string{"any"}, Binaries: []string{"hello"}}
	if _, err := SelectArchs(context.Background(), id, SelectOptions{WorkerArch: "amd64", Archs: []string{"amd64"}}, q); err != nil {
		t.Fatal(err)
	}
	if q.asked != nil {
		t.Error("the installed-package query must not run for an explicit list")
	}
}

type recordingRunner struct {
	argv   []string
	output string
}

func (r *recordingRunner) Run(ctx context.Context, stdout io.Writer, argv ...string) error {
	r.argv = argv
	if stdout != nil {
		io.WriteString(stdout, r.output)
	}
	return nil
}

func TestDpkgQuery(t *testing.T) {
	r := &recordingRunner{output: "libhello1:amd64\n\nhello-doc\n"}
	q := &DpkgQuery{Runner: r}

	got, err := q.Installed(context.Background(), []string{"libhello1", "hello-doc"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"libhello1:amd64", "hello-doc"}) {
		t.Errorf("got %v", got)
	}
	cmd := strings.Join(r.argv, " ")
	if !strings.Contains(cmd, `dpkg-query -W --showformat=${binary:Package}\n libhello1 hello-doc`) {
		t.Errorf("unexpected command: %s", cmd)
	}

	r.argv = nil
	if got, _ := q.Installed(context.Background(), nil); got != nil || r.argv != nil {
		t.Error("no packages means no query")
	}
}
