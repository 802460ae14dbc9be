package db

import "time"

// BuildStatus represents the outcome of a build
type BuildStatus string

const (
	BuildStatusPending  BuildStatus = "pending"
	BuildStatusRunning  BuildStatus = "running"
	BuildStatusProduced BuildStatus = "produced"
	BuildStatusFailed   BuildStatus = "failed"
)

// BuildRecord is one processed buildable
type BuildRecord struct {
	ID      string      `json:"id"`
	Input   string      `json:"input"`
	Kind    string      `json:"kind"`
	Source  string      `json:"source"`
	Version string      `json:"version"`
	Vendor  string      `json:"vendor"`
	Suite   string      `json:"suite"`
	Worker  string      `json:"worker"`
	Status  BuildStatus `json:"status"`
	// Merged maps merge kinds to the merged .changes files
	Merged       map[string]string `json:"merged,omitempty"`
	Archs        []ArchRecord      `json:"archs,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// ArchRecord is the build of one architecture of a buildable
type ArchRecord struct {
	Arch    string      `json:"arch"`
	Status  BuildStatus `json:"status"`
	Changes string      `json:"changes,omitempty"`
	Log     string      `json:"log,omitempty"`
}
