// Package tools holds the two reference Invocation implementations the
// demo CLI registers: a shell command runner and a file editor. Both
// implement toolcall.Tool / toolcall.Invocation instead of calling
// straight through to an in-process agent loop, so they can be driven by
// the scheduler's confirmation and cancellation machinery.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/mark3labs/toolsched/internal/allowlist"
	"github.com/mark3labs/toolsched/internal/config"
	"github.com/mark3labs/toolsched/internal/response"
	"github.com/mark3labs/toolsched/internal/toolcall"
)

type bashArgs struct {
	Command string  `json:"command"`
	Timeout float64 `json:"timeout,omitempty"`
}

// bashTool is the Exec-kind reference tool: it runs a command through the
// configured shell and streams combined stdout/stderr as it arrives.
type bashTool struct {
	cfg *config.Config
}

// NewBashTool builds the reference shell-command tool, named "bash" to
// match the sample allowlist tables and tests throughout this module.
func NewBashTool(cfg *config.Config) toolcall.Tool {
	return &bashTool{cfg: cfg}
}

func (t *bashTool) Name() string        { return "bash" }
func (t *bashTool) Kind() toolcall.Kind { return toolcall.KindExec }

func (t *bashTool) Build(ctx context.Context, args json.RawMessage) (toolcall.Invocation, error) {
	var a bashArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("decode bash arguments: %w", err)
	}
	if strings.TrimSpace(a.Command) == "" {
		return nil, errors.New("command parameter is required")
	}
	return &bashInvocation{cfg: t.cfg, command: a.Command, timeout: a.Timeout}, nil
}

type bashInvocation struct {
	cfg     *config.Config
	command string
	timeout float64
}

// Command implements toolcall.CommandProvider so the allowlist matcher
// can inspect and split this invocation's command line.
func (b *bashInvocation) Command() string { return b.command }

func (b *bashInvocation) ShouldConfirmExecute(ctx context.Context) (*toolcall.ConfirmationDetails, error) {
	sc := b.cfg.ShellExec()
	trimmed := strings.TrimSpace(b.command)
	for _, banned := range sc.BannedPrefixes {
		if trimmed == banned || strings.HasPrefix(trimmed, banned+" ") {
			return nil, fmt.Errorf("command %q is not allowed", b.command)
		}
	}

	root := allowlist.GetCommandPrefix(b.command, sc.StemmableCommands)
	return &toolcall.ConfirmationDetails{
		Title: "Run shell command",
		Variant: toolcall.ExecConfirmation{
			Command:     b.command,
			RootCommand: root,
		},
	}, nil
}

func (b *bashInvocation) Execute(ctx context.Context, out io.Writer) (toolcall.Result, error) {
	sc := b.cfg.ShellExec()

	trimmed := strings.TrimSpace(b.command)
	for _, banned := range sc.BannedPrefixes {
		if trimmed == banned || strings.HasPrefix(trimmed, banned+" ") {
			return toolcall.Result{}, fmt.Errorf("command %q is not allowed", b.command)
		}
	}

	timeout := sc.DefaultTimeout
	if b.timeout > 0 {
		timeout = time.Duration(b.timeout * float64(time.Second))
		if timeout > sc.MaxTimeout {
			timeout = sc.MaxTimeout
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, sc.Shell, "-c", b.command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, out)
	cmd.Stderr = io.MultiWriter(&stderr, out)

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case cmdCtx.Err() == context.DeadlineExceeded:
			return toolcall.Result{}, fmt.Errorf("command timed out after %s", timeout)
		case ctx.Err() != nil:
			return toolcall.Result{}, ctx.Err()
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return toolcall.Result{}, runErr
		}
	}

	var result strings.Builder
	if stdout.Len() > 0 {
		result.WriteString(stdout.String())
	}
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString("STDERR:\n")
		result.WriteString(stderr.String())
	}
	if exitCode != 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		fmt.Fprintf(&result, "Exit code: %d", exitCode)
	}

	text := result.String()
	if text == "" {
		text = "(no output)"
	}

	return toolcall.Result{
		Content:       response.StringContent(text),
		IsError:       exitCode != 0,
		ResultDisplay: toolcall.TextResultDisplay{Text: text},
	}, nil
}
