package toolcall

import "context"

// ConfirmationOutcome is the decision a caller makes about a pending
// confirmation.
type ConfirmationOutcome string

const (
	OutcomeProceedOnce         ConfirmationOutcome = "proceed_once"
	OutcomeProceedAlways       ConfirmationOutcome = "proceed_always"
	OutcomeProceedAlwaysServer ConfirmationOutcome = "proceed_always_server"
	OutcomeProceedAlwaysTool   ConfirmationOutcome = "proceed_always_tool"
	OutcomeModifyWithEditor    ConfirmationOutcome = "modify_with_editor"
	OutcomeCancel              ConfirmationOutcome = "cancel"
)

// ConfirmPayload carries outcome-specific data back into the scheduler.
// NewArgs is only meaningful for OutcomeProceedOnce against an invocation
// whose arguments were edited before approval.
type ConfirmPayload struct {
	NewArgs []byte
}

// OnConfirmFunc resolves a pending confirmation. It is safe to call from
// any goroutine, exactly once; later calls are no-ops.
type OnConfirmFunc func(ctx context.Context, outcome ConfirmationOutcome, payload *ConfirmPayload) error

// ConfirmationType tags which variant of confirmation payload is present.
type ConfirmationType string

const (
	ConfirmEdit ConfirmationType = "edit"
	ConfirmExec ConfirmationType = "exec"
	ConfirmMCP  ConfirmationType = "mcp"
	ConfirmInfo ConfirmationType = "info"
)

// ConfirmationVariant is the tagged-union payload of a ConfirmationDetails,
// mirroring the marker-interface idiom used for ResultDisplay and Payload:
// only the fields that variant needs exist on its concrete type.
type ConfirmationVariant interface {
	isConfirmationVariant()
}

// EditConfirmation describes a pending file write.
type EditConfirmation struct {
	FileName        string
	FilePath        string
	FileDiff        string
	OriginalContent string
	NewContent      string
	IsModifying     bool
}

func (EditConfirmation) isConfirmationVariant() {}

// ExecConfirmation describes a pending shell command.
type ExecConfirmation struct {
	Command     string
	RootCommand string
}

func (ExecConfirmation) isConfirmationVariant() {}

// MCPConfirmation describes a pending call into an external MCP server.
// The scheduler never dials the server itself; this variant exists so the
// state machine and allowlist can be exercised structurally.
type MCPConfirmation struct {
	ServerName      string
	ToolName        string
	ToolDisplayName string
}

func (MCPConfirmation) isConfirmationVariant() {}

// InfoConfirmation is a generic confirmation carrying free-form context,
// used by tools that need user acknowledgement without an edit or exec
// shape (e.g. a tool that will fetch one of a set of URLs).
type InfoConfirmation struct {
	Prompt string
	URLs   []string
}

func (InfoConfirmation) isConfirmationVariant() {}

// ConfirmationDetails is what an Invocation hands the scheduler when it
// wants the user's permission before running.
type ConfirmationDetails struct {
	Title     string
	Variant   ConfirmationVariant
	OnConfirm OnConfirmFunc
}

// Type reports which ConfirmationVariant is attached.
func (d *ConfirmationDetails) Type() ConfirmationType {
	switch d.Variant.(type) {
	case EditConfirmation:
		return ConfirmEdit
	case ExecConfirmation:
		return ConfirmExec
	case MCPConfirmation:
		return ConfirmMCP
	case InfoConfirmation:
		return ConfirmInfo
	default:
		return ""
	}
}
