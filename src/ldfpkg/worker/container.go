package worker

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/hostcmd"
)

// Container is a long-lived OCI container driven by podman, docker or
// nerdctl. Commands run through "exec", files move through "cp".
type Container struct {
	runtime Type
	image   string
	name    string
	scratch string
	runner  hostcmd.Runner
	output  io.Writer
}

// StartContainer starts a detached container from image
func StartContainer(ctx context.Context, runtime Type, image string, opts Options) (*Container, error) {
	return startContainer(ctx, runtime, image, opts, &hostcmd.Exec{Stderr: opts.Output})
}

func startContainer(ctx context.Context, runtime Type, image string, opts Options, runner hostcmd.Runner) (*Container, error) {
	c := &Container{
		runtime: runtime,
		image:   image,
		name:    "ldfpkg-" + uuid.New().String(),
		runner:  runner,
		output:  opts.Output,
	}

	args := []string{string(runtime), "run", "-d", "--rm", "--name", c.name}
	if opts.Privileged {
		args = append(args, "--privileged")
	}
	args = append(args, "--entrypoint", "sleep", image, "infinity")

	if err := runner.Run(ctx, nil, args...); err != nil {
		return nil, errors.ErrWorkerStart.WithMessagef("Cannot start %s container from %s", runtime, image).WithCause(err)
	}

	scratch, err := c.Capture(ctx, "mktemp", "-d", "/tmp/ldfpkg.XXXXXXXX")
	if err != nil {
		c.Close()
		return nil, errors.ErrWorkerStart.WithMessage("Cannot create scratch directory").WithCause(err)
	}
	c.scratch = strings.TrimSpace(scratch)

	log.Debug("Container started", "name", c.name, "image", image, "scratch", c.scratch)
	return c, nil
}

func (c *Container) exec(argv []string) []string {
	return append([]string{string(c.runtime), "exec", c.name}, argv...)
}

// Run executes argv inside the container
func (c *Container) Run(ctx context.Context, argv ...string) (int, error) {
	err := c.runner.Run(ctx, c.output, c.exec(argv)...)
	if status := hostcmd.ExitStatus(err); status > 0 {
		return status, nil
	}
	if err != nil {
		return -1, errors.ErrWorkerCommand.WithMessagef("Cannot run %s", ShellJoin(argv)).WithCause(err)
	}
	return 0, nil
}

// Capture executes argv inside the container and returns its output
func (c *Container) Capture(ctx context.Context, argv ...string) (string, error) {
	out, err := hostcmd.Output(ctx, c.runner, c.exec(argv)...)
	if status := hostcmd.ExitStatus(err); status > 0 {
		return "", commandFailed(argv, status)
	}
	if err != nil {
		return "", errors.ErrWorkerCommand.WithMessagef("Cannot run %s", ShellJoin(argv)).WithCause(err)
	}
	return out, nil
}

// Upload copies a host file into the container
func (c *Container) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := c.runner.Run(ctx, nil, string(c.runtime), "cp", localPath, c.name+":"+remotePath); err != nil {
		return errors.ErrWorkerTransfer.WithMessagef("Cannot copy %s to %s", localPath, remotePath).WithCause(err)
	}
	return nil
}

// Download copies a container file to the host
func (c *Container) Download(ctx context.Context, remotePath, localPath string) error {
	if err := c.runner.Run(ctx, nil, string(c.runtime), "cp", c.name+":"+remotePath, localPath); err != nil {
		return errors.ErrWorkerTransfer.WithMessagef("Cannot copy %s back to %s", remotePath, localPath).WithCause(err)
	}
	return nil
}

// Scratch returns the session directory inside the container
func (c *Container) Scratch() string {
	return c.scratch
}

// Name returns the container name
func (c *Container) Name() string {
	return c.name
}

// Close removes the container. A fresh context is used so that the
// container goes away even after the run was interrupted.
func (c *Container) Close() error {
	log.Debug("Removing container", "name", c.name)
	if err := c.runner.Run(context.Background(), nil, string(c.runtime), "rm", "-f", c.name); err != nil {
		log.Warn("Failed to remove container", "name", c.name, "error", err)
		return err
	}
	return nil
}
