package service

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

type ProcessResult struct {
	ExitCode int
	Output   []byte
}

// Process runs an external tool with args. A non-zero exit is reported as an error
// alongside a populated result.
type Process interface {
	Run(ctx context.Context, args []string) (ProcessResult, error)
}

type ExecProcess struct {
	Binary string
}

func NewExecProcess(binary string) *ExecProcess {
	return &ExecProcess{Binary: binary}
}

func (p *ExecProcess) Run(ctx context.Context, args []string) (ProcessResult, error) {
	cmd := exec.CommandContext(ctx, p.Binary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	result := ProcessResult{Output: out.Bytes()}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && result.ExitCode == 0 {
			result.ExitCode = -1
		}
		return result, err
	}
	return result, nil
}

func (p *ExecProcess) String() string {
	return p.Binary
}

// tail keeps the last n lines of tool output for error messages.
func tail(output []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(output), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
