package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/bitswalk/ldfpkg/src/ldfpkg/buildable"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/config"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/db"
)

// State is the progress of a build
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateProduced State = "produced"
	StateFailed   State = "failed"
)

// Merge kinds
const (
	MergeSource       = "source"
	MergeSourceAll    = "source+all"
	MergeBinary       = "binary"
	MergeSourceBinary = "source+binary"
)

// Artifacts maps architectures or merge kinds to host paths and remembers
// insertion order
type Artifacts struct {
	keys  []string
	paths map[string]string
}

// Set records path for key. Replacing a key keeps its position.
func (a *Artifacts) Set(key, path string) {
	if a.paths == nil {
		a.paths = map[string]string{}
	}
	if _, ok := a.paths[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.paths[key] = path
}

// Get returns the path recorded for key
func (a *Artifacts) Get(key string) (string, bool) {
	p, ok := a.paths[key]
	return p, ok
}

// Has reports whether key is recorded
func (a *Artifacts) Has(key string) bool {
	_, ok := a.paths[key]
	return ok
}

// Keys returns the keys in insertion order
func (a *Artifacts) Keys() []string {
	return append([]string(nil), a.keys...)
}

// Paths returns the paths in insertion order
func (a *Artifacts) Paths() []string {
	out := make([]string, 0, len(a.keys))
	for _, k := range a.keys {
		out = append(out, a.paths[k])
	}
	return out
}

// Len returns the number of keys
func (a *Artifacts) Len() int {
	return len(a.keys)
}

// Map returns a copy of the recorded paths
func (a *Artifacts) Map() map[string]string {
	out := make(map[string]string, len(a.paths))
	for k, v := range a.paths {
		out[k] = v
	}
	return out
}

// Build is the build of one architecture of a job
type Build struct {
	Arch string
	// UseArch is the architecture of the chroot the build runs in
	UseArch string
	State   State
	Err     error
}

// Job is one buildable being processed, with the artifacts it produced
type Job struct {
	ID        string
	Buildable *buildable.Buildable
	// Suite is the suite built for, after alias resolution
	Suite *config.Suite

	State     State
	Selection buildable.Selection
	Builds    []*Build

	ChangesProduced Artifacts
	Logs            Artifacts
	Merged          Artifacts

	StartedAt   time.Time
	CompletedAt time.Time
	Err         error
}

// NewJob creates a pending job for b built in suite
func NewJob(b *buildable.Buildable, suite *config.Suite) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Buildable: b,
		Suite:     suite,
		State:     StatePending,
	}
}

func (j *Job) String() string {
	return j.Buildable.String()
}

// Record converts the job into a history record
func (j *Job) Record(workerName string) *db.BuildRecord {
	b := j.Buildable
	rec := &db.BuildRecord{
		ID:     j.ID,
		Input:  b.Input,
		Kind:   b.Kind.String(),
		Source: b.Source,
		Worker: workerName,
		Status: db.BuildStatus(j.State),
		Merged: j.Merged.Map(),
	}
	if b.Versioned {
		rec.Version = b.Version.String()
	}
	if j.Suite != nil {
		rec.Vendor = j.Suite.Vendor().Name()
		rec.Suite = j.Suite.Name()
	}
	if j.Err != nil {
		rec.ErrorMessage = j.Err.Error()
	}
	if !j.StartedAt.IsZero() {
		started := j.StartedAt
		rec.StartedAt = &started
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		rec.CompletedAt = &completed
	}
	for _, bd := range j.Builds {
		a := db.ArchRecord{Arch: bd.Arch, Status: db.BuildStatus(bd.State)}
		a.Changes, _ = j.ChangesProduced.Get(bd.Arch)
		a.Log, _ = j.Logs.Get(bd.Arch)
		rec.Archs = append(rec.Archs, a)
	}
	return rec
}
