// Package toolcall holds the data model shared by the scheduler and its
// tool implementations: the request/response shapes, the tagged status
// variants a call moves through, and the interfaces a tool registry must
// satisfy to be schedulable.
package toolcall

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/mark3labs/toolsched/internal/response"
)

// ToolRequest is what a caller hands to the scheduler: a name to resolve
// against the registry, opaque JSON arguments, and the ID the caller uses
// to correlate the eventual result.
type ToolRequest struct {
	CallID string
	Name   string
	Args   json.RawMessage
}

// Kind classifies a tool for allowlist and approval-mode purposes. It does
// not affect how a tool is executed, only how confirmation is short-circuited.
type Kind string

const (
	KindExec  Kind = "exec"
	KindEdit  Kind = "edit"
	KindMCP   Kind = "mcp"
	KindOther Kind = "other"
)

// Result is what an Invocation hands back to the scheduler on success. A
// non-nil error from Execute means the invocation itself could not run
// (timeout, cancellation, an unexpected OS error); a tool that ran fine
// but wants to report a domain-level failure (e.g. a non-zero exit code)
// still returns a Result, with IsError set, not an error.
type Result struct {
	Content       response.Content
	IsError       bool
	ResultDisplay ResultDisplay
}

// CommandProvider is implemented by invocations that wrap a shell command
// line, so the allowlist matcher can inspect and split it without the
// scheduler needing to know about shells at all.
type CommandProvider interface {
	Command() string
}

// PendingDiffProvider is implemented by edit-like invocations so a
// cancellation mid-execution can still surface the diff that would have
// been applied.
type PendingDiffProvider interface {
	PendingDiff() (fileName, fileDiff string, ok bool)
}

// Invocation is a fully-validated, ready-to-run tool call. A Tool produces
// one from raw arguments; the scheduler drives it through confirmation and
// execution.
type Invocation interface {
	// ShouldConfirmExecute reports whether the invocation needs user
	// confirmation before running. A nil result means no confirmation is
	// required. Returning a non-nil error aborts the call.
	ShouldConfirmExecute(ctx context.Context) (*ConfirmationDetails, error)

	// Execute runs the invocation. Partial output may be streamed to out
	// as it becomes available; the returned Result carries the final
	// content once Execute returns.
	Execute(ctx context.Context, out io.Writer) (Result, error)
}

// Tool is a named, schedulable capability. Build validates raw arguments
// and produces an Invocation, or reports why the arguments are invalid.
type Tool interface {
	Name() string
	Kind() Kind
	Build(ctx context.Context, args json.RawMessage) (Invocation, error)
}

// Registry resolves tool names to Tools.
type Registry interface {
	GetTool(name string) (Tool, bool)
	GetAllToolNames() []string
}

// Payload carries the fields specific to a ToolCall's current Status. Only
// one concrete type is ever attached at a time, and only the fields that
// make sense for that status exist on it - there is no shared struct with
// unused fields for other states.
type Payload interface {
	isPayload()
}

// AwaitingApprovalPayload is attached while Status is StatusAwaitingApproval.
type AwaitingApprovalPayload struct {
	Details *ConfirmationDetails
}

func (AwaitingApprovalPayload) isPayload() {}

// ExecutingPayload is attached while Status is StatusExecuting.
type ExecutingPayload struct {
	Cancel context.CancelFunc
	Output io.Writer
}

func (ExecutingPayload) isPayload() {}

// TerminalPayload is attached once a call reaches Success, Error, or
// Cancelled.
type TerminalPayload struct {
	Response      []response.Part
	ResultDisplay ResultDisplay
}

func (TerminalPayload) isPayload() {}

// ResultDisplay is the human-facing rendering of a terminal call, kept
// separate from the machine-facing Response parts.
type ResultDisplay interface {
	isResultDisplay()
}

// TextResultDisplay renders as plain text, e.g. an error message or a
// command's captured output.
type TextResultDisplay struct {
	Text string
}

func (TextResultDisplay) isResultDisplay() {}

// DiffResultDisplay renders as a unified diff, used by edit-like tools
// whether they ran to completion or were cancelled before the write.
type DiffResultDisplay struct {
	FileName string
	FilePath string
	FileDiff string
}

func (DiffResultDisplay) isResultDisplay() {}

// ToolCall is a single request moving through the scheduler's state
// machine. Status and Payload always agree: Payload is nil for
// Validating and Scheduled, and one of the typed payloads above
// otherwise.
type ToolCall struct {
	Request    ToolRequest
	Tool       Tool
	Invocation Invocation

	Status  Status
	Payload Payload

	StartedAt time.Time
	EndedAt   time.Time
}
