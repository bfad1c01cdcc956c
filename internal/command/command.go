// Package command dispatches typed command descriptors through an injectable
// executor so callers can be tested without running real system tools.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command describes a program invocation. Args are passed verbatim, never
// through a shell.
type Command struct {
	Name string
	Args []string
}

// New returns a Command for name with args.
func New(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Executor runs commands.
type Executor interface {
	// Run executes cmd and waits for it to complete.
	Run(ctx context.Context, cmd Command) error

	// Output executes cmd and returns its standard output.
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// RealExecutor uses exec.CommandContext.
type RealExecutor struct{}

func (*RealExecutor) Run(ctx context.Context, cmd Command) error {
	var stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		return wrapExitError(cmd, err, stderr.Bytes())
	}
	return nil
}

func (*RealExecutor) Output(ctx context.Context, cmd Command) ([]byte, error) {
	out, err := exec.CommandContext(ctx, cmd.Name, cmd.Args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, wrapExitError(cmd, err, exitErr.Stderr)
		}
		return out, wrapExitError(cmd, err, nil)
	}
	return out, nil
}

func wrapExitError(cmd Command, err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return fmt.Errorf("%s: %w: %s", cmd, err, msg)
}
