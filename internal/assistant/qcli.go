package assistant

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
)

// Runner executes an external command and captures its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs commands with os/exec, killing them when ctx ends.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	var out, errb bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.String(), errb.String(), err
}

// QCLI drives the Amazon Q command line client in non-interactive mode.
type QCLI struct {
	binary string
	runner Runner
}

// NewQCLI returns a provider for binary; an empty binary means "q".
func NewQCLI(binary string, runner Runner) *QCLI {
	if binary == "" {
		binary = config.DefaultQCLIBinary
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &QCLI{binary: binary, runner: runner}
}

func (q *QCLI) Name() string { return ProviderQCLI }

// Binary is the executable the provider invokes.
func (q *QCLI) Binary() string { return q.binary }

func (q *QCLI) Generate(ctx context.Context, req Request) (*Response, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}
	stdout, stderr, err := q.runner.Run(ctx, q.binary, "chat", "--no-interactive", "--trust-all-tools", prompt)
	if err != nil {
		return nil, mapCLIError(ctx, err, stderr)
	}
	text := CleanOutput(stdout)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{Text: text, Model: q.binary}, nil
}

// mapCLIError turns a failed invocation into one of the package errors.
func mapCLIError(ctx context.Context, err error, stderr string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if isNotFound(err) {
		return ErrCLINotFound
	}
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "not logged in"):
		return ErrAuthRequired
	case strings.Contains(lower, "quota") || strings.Contains(lower, "limit"):
		return ErrUsageLimit
	}
	return &CLIError{Stderr: CleanOutput(stderr), Err: err}
}
