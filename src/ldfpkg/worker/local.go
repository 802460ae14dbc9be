package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/hostcmd"
)

// Local runs commands directly on the host, for use inside a machine that
// is itself disposable
type Local struct {
	scratch string
	runner  hostcmd.Runner
	output  io.Writer
}

// NewLocal creates a scratch directory on the host
func NewLocal(opts Options) (*Local, error) {
	scratch, err := os.MkdirTemp("", "ldfpkg.")
	if err != nil {
		return nil, errors.ErrWorkerStart.WithMessage("Cannot create scratch directory").WithCause(err)
	}
	if err := os.Chmod(scratch, 0755); err != nil {
		os.RemoveAll(scratch)
		return nil, errors.ErrWorkerStart.WithCause(err)
	}
	return &Local{
		scratch: scratch,
		runner:  &hostcmd.Exec{Stderr: opts.Output},
		output:  opts.Output,
	}, nil
}

// Run executes argv on the host
func (l *Local) Run(ctx context.Context, argv ...string) (int, error) {
	err := l.runner.Run(ctx, l.output, argv...)
	if status := hostcmd.ExitStatus(err); status > 0 {
		return status, nil
	}
	if err != nil {
		return -1, errors.ErrWorkerCommand.WithMessagef("Cannot run %s", ShellJoin(argv)).WithCause(err)
	}
	return 0, nil
}

// Capture executes argv on the host and returns its output
func (l *Local) Capture(ctx context.Context, argv ...string) (string, error) {
	out, err := hostcmd.Output(ctx, l.runner, argv...)
	if status := hostcmd.ExitStatus(err); status > 0 {
		return "", commandFailed(argv, status)
	}
	if err != nil {
		return "", errors.ErrWorkerCommand.WithMessagef("Cannot run %s", ShellJoin(argv)).WithCause(err)
	}
	return out, nil
}

// Upload copies a file into place
func (l *Local) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := copyFile(localPath, remotePath); err != nil {
		return errors.ErrWorkerTransfer.WithMessagef("Cannot copy %s to %s", localPath, remotePath).WithCause(err)
	}
	return nil
}

// Download copies a file into place
func (l *Local) Download(ctx context.Context, remotePath, localPath string) error {
	if err := copyFile(remotePath, localPath); err != nil {
		return errors.ErrWorkerTransfer.WithMessagef("Cannot copy %s back to %s", remotePath, localPath).WithCause(err)
	}
	return nil
}

// Scratch returns the session directory
func (l *Local) Scratch() string {
	return l.scratch
}

// Close removes the scratch directory
func (l *Local) Close() error {
	if !strings.HasPrefix(l.scratch, os.TempDir()) {
		return fmt.Errorf("refusing to remove %s", l.scratch)
	}
	return os.RemoveAll(l.scratch)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
