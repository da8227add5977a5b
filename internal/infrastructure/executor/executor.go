// Package executor runs interpreted shell commands on the host.
package executor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/ports"
)

// LocalExecutor runs commands through the host shell.
type LocalExecutor struct {
	shell string
}

// NewLocalExecutor builds a new executor, shell defaults to /bin/sh.
func NewLocalExecutor(shell string) *LocalExecutor {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return &LocalExecutor{shell: shell}
}

// Execute implements ports.CommandExecutor. Stdout and stderr are captured
// interleaved because the client renders a single output stream.
func (e *LocalExecutor) Execute(ctx context.Context, command string) domain.ExecutionResult {
	c := exec.CommandContext(ctx, e.shell, "-c", command)
	var combined bytes.Buffer
	c.Stdout = &combined
	c.Stderr = &combined

	start := time.Now()
	err := c.Run()
	duration := time.Since(start).Milliseconds()

	result := domain.ExecutionResult{
		Ran:        true,
		Output:     combined.String(),
		DurationMS: duration,
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result
	}
	if err != nil {
		result.Ran = false
		result.ExitCode = -1
		result.Err = err
		return result
	}
	return result
}

var _ ports.CommandExecutor = (*LocalExecutor)(nil)
