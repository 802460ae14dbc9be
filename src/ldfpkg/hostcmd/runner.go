// Package hostcmd runs commands on the machine ldfpkg itself runs on.
package hostcmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/bitswalk/ldfpkg/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the hostcmd package
func SetLogger(l *logs.Logger) {
	log = l
}

// Runner executes a command to completion. A non-zero exit status is an
// error; stdout may be nil to discard the output.
type Runner interface {
	Run(ctx context.Context, stdout io.Writer, argv ...string) error
}

// ExitError reports a command that ran but exited non-zero
type ExitError struct {
	Argv   []string
	Status int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Argv[0], e.Status)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// ExitStatus returns the exit status carried by err, or -1 when err did not
// come from a finished command
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := err.(*ExitError); ok {
		return e.Status
	}
	return -1
}

// Exec runs commands with os/exec
type Exec struct {
	// Dir is the working directory; empty means the current one
	Dir string
	// Stderr receives the command's standard error in addition to the
	// copy kept for error messages
	Stderr io.Writer
}

// NewExec creates a runner that forwards stderr to the process stderr
func NewExec() *Exec {
	return &Exec{Stderr: os.Stderr}
}

// Run executes argv
func (e *Exec) Run(ctx context.Context, stdout io.Writer, argv ...string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no command specified")
	}

	log.Debug("Running host command", "argv", argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.Dir
	cmd.Stdout = stdout

	var stderr bytes.Buffer
	if e.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, e.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &ExitError{
				Argv:   argv,
				Status: exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return fmt.Errorf("failed to run %s: %w", argv[0], err)
	}
	return nil
}

// Output runs argv and returns its standard output
func Output(ctx context.Context, r Runner, argv ...string) (string, error) {
	var out bytes.Buffer
	if err := r.Run(ctx, &out, argv...); err != nil {
		return "", err
	}
	return out.String(), nil
}
