package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandCompleter runs a local CLI (by default `claude -p <prompt>`) and
// returns its stdout. The prompt is appended as the last argument.
type CommandCompleter struct {
	name string
	args []string
}

var _ Completer = (*CommandCompleter)(nil)

// NewCommandCompleter splits argv into program and leading arguments.
func NewCommandCompleter(argv []string) *CommandCompleter {
	if len(argv) == 0 {
		argv = []string{"claude", "-p"}
	}
	return &CommandCompleter{name: argv[0], args: append([]string(nil), argv[1:]...)}
}

// Complete runs the command; the process is killed when ctx expires.
func (c *CommandCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := append(append([]string(nil), c.args...), prompt)
	cmd := exec.CommandContext(ctx, c.name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", c.name, ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%s not installed: %w", c.name, err)
		}
		return "", fmt.Errorf("%s failed: %w: %s", c.name, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}
