// Package worker provides the disposable machines builds run on.
//
// A Worker executes commands and exchanges files with the host; every
// implementation owns a scratch directory for the lifetime of the session
// and tears the environment down in Close.
package worker

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the worker package
func SetLogger(l *logs.Logger) {
	log = l
}

// Worker is an ephemeral build environment
type Worker interface {
	// Run executes argv and returns its exit status. The error is set only
	// when the command could not be run at all.
	Run(ctx context.Context, argv ...string) (int, error)

	// Capture executes argv and returns its standard output. A non-zero
	// exit status is an error.
	Capture(ctx context.Context, argv ...string) (string, error)

	// Upload copies a host file into the worker
	Upload(ctx context.Context, localPath, remotePath string) error

	// Download copies a worker file to the host
	Download(ctx context.Context, remotePath, localPath string) error

	// Scratch is a directory inside the worker private to this session
	Scratch() string

	// Close destroys the environment
	Close() error
}

// Type names a worker implementation
type Type string

const (
	TypePodman  Type = "podman"
	TypeDocker  Type = "docker"
	TypeNerdctl Type = "nerdctl"
	TypeSSH     Type = "ssh"
	TypeLocal   Type = "local"
)

// ValidTypes returns all worker types
func ValidTypes() []Type {
	return []Type{TypePodman, TypeDocker, TypeNerdctl, TypeSSH, TypeLocal}
}

// IsContainer reports whether the type is an OCI container runtime
func (t Type) IsContainer() bool {
	return t == TypePodman || t == TypeDocker || t == TypeNerdctl
}

// Options tune how workers are created
type Options struct {
	// Output receives the standard output and error of worker commands
	// that are not captured. Defaults to os.Stderr.
	Output io.Writer
	// Privileged runs containers with extended privileges, which schroot
	// needs to unpack and enter chroots
	Privileged bool
	SSH        SSHOptions
}

// DefaultOptions returns the options used by the CLI
func DefaultOptions() Options {
	return Options{Output: os.Stderr, Privileged: true}
}

// Open creates the worker described by argv: "podman IMAGE",
// "docker IMAGE", "nerdctl IMAGE", "ssh [USER@]HOST[:PORT]" or "local".
// The caller must Close it.
func Open(ctx context.Context, argv []string, opts Options) (Worker, error) {
	if len(argv) == 0 {
		return nil, errors.ErrNoWorker.WithMessage("No worker configured")
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	t := Type(argv[0])
	log.Info("Starting worker", "worker", strings.Join(argv, " "))

	switch {
	case t.IsContainer():
		if len(argv) != 2 {
			return nil, errors.ErrNoWorker.WithMessagef("%s worker needs exactly one image, got %q", t, argv[1:])
		}
		return StartContainer(ctx, t, argv[1], opts)
	case t == TypeSSH:
		if len(argv) != 2 {
			return nil, errors.ErrNoWorker.WithMessagef("ssh worker needs exactly one destination, got %q", argv[1:])
		}
		return DialSSH(ctx, argv[1], opts)
	case t == TypeLocal:
		if len(argv) != 1 {
			return nil, errors.ErrNoWorker.WithMessagef("local worker takes no arguments, got %q", argv[1:])
		}
		return NewLocal(opts)
	}
	return nil, errors.ErrNoWorker.WithMessagef("Unsupported worker %q", argv[0])
}

// Check runs argv and turns a non-zero exit status into an error
func Check(ctx context.Context, w Worker, argv ...string) error {
	status, err := w.Run(ctx, argv...)
	if err != nil {
		return err
	}
	if status != 0 {
		return commandFailed(argv, status)
	}
	return nil
}

func commandFailed(argv []string, status int) error {
	return errors.ErrWorkerCommand.WithMessagef("%s exited with status %d", ShellJoin(argv), status)
}

// ShellQuote quotes s for a POSIX shell
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("@%+=:,./-_", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellJoin quotes and joins argv into one shell command line
func ShellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = ShellQuote(a)
	}
	return strings.Join(quoted, " ")
}
