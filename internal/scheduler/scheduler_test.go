package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/mark3labs/toolsched/internal/config"
	"github.com/mark3labs/toolsched/internal/response"
	"github.com/mark3labs/toolsched/internal/toolcall"
)

type fakeInvocation struct {
	command string
	confirm func(ctx context.Context) (*toolcall.ConfirmationDetails, error)
	execute func(ctx context.Context, out io.Writer) (toolcall.Result, error)
}

func (f *fakeInvocation) ShouldConfirmExecute(ctx context.Context) (*toolcall.ConfirmationDetails, error) {
	if f.confirm == nil {
		return nil, nil
	}
	return f.confirm(ctx)
}

func (f *fakeInvocation) Execute(ctx context.Context, out io.Writer) (toolcall.Result, error) {
	return f.execute(ctx, out)
}

func (f *fakeInvocation) Command() string { return f.command }

type fakeTool struct {
	name  string
	kind  toolcall.Kind
	build func(ctx context.Context, args json.RawMessage) (toolcall.Invocation, error)
}

func (t *fakeTool) Name() string         { return t.name }
func (t *fakeTool) Kind() toolcall.Kind  { return t.kind }
func (t *fakeTool) Build(ctx context.Context, args json.RawMessage) (toolcall.Invocation, error) {
	return t.build(ctx, args)
}

type fakeRegistry struct {
	mu    sync.Mutex
	tools map[string]toolcall.Tool
}

func newFakeRegistry(tools ...toolcall.Tool) *fakeRegistry {
	r := &fakeRegistry{tools: map[string]toolcall.Tool{}}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

func (r *fakeRegistry) GetTool(name string) (toolcall.Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *fakeRegistry) GetAllToolNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

func TestSchedule_ToolNotFoundSuggestsNearestName(t *testing.T) {
	reg := newFakeRegistry(&fakeTool{name: "bash", kind: toolcall.KindExec})
	var final []*toolcall.ToolCall
	s := New(Options{Registry: reg, Config: config.New(t.TempDir()), OnComplete: func(calls []*toolcall.ToolCall) { final = calls }})

	err := s.Schedule(context.Background(), []toolcall.ToolRequest{{CallID: "1", Name: "basg"}})
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if len(final) != 1 || final[0].Status != toolcall.StatusError {
		t.Fatalf("expected single errored call, got %+v", final)
	}
	display := final[0].Payload.(toolcall.TerminalPayload).ResultDisplay.(toolcall.TextResultDisplay)
	if !containsAll(display.Text, `"bash"`) {
		t.Fatalf("expected suggestion to name bash, got %q", display.Text)
	}
}

func TestSchedule_SuccessPath(t *testing.T) {
	reg := newFakeRegistry(&fakeTool{
		name: "bash",
		kind: toolcall.KindExec,
		build: func(ctx context.Context, args json.RawMessage) (toolcall.Invocation, error) {
			return &fakeInvocation{
				execute: func(ctx context.Context, out io.Writer) (toolcall.Result, error) {
					return toolcall.Result{Content: response.StringContent("done")}, nil
				},
			}, nil
		},
	})
	cfg := config.New(t.TempDir())
	cfg.SetApprovalMode(config.ApprovalYolo)

	var final []*toolcall.ToolCall
	s := New(Options{Registry: reg, Config: cfg, OnComplete: func(calls []*toolcall.ToolCall) { final = calls }})

	if err := s.Schedule(context.Background(), []toolcall.ToolRequest{{CallID: "1", Name: "bash"}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(final) != 1 || final[0].Status != toolcall.StatusSuccess {
		t.Fatalf("expected success, got %+v", final)
	}
}

func TestSchedule_ConfirmationProceedOnce(t *testing.T) {
	reg := newFakeRegistry(&fakeTool{
		name: "edit",
		kind: toolcall.KindEdit,
		build: func(ctx context.Context, args json.RawMessage) (toolcall.Invocation, error) {
			return &fakeInvocation{
				confirm: func(ctx context.Context) (*toolcall.ConfirmationDetails, error) {
					return &toolcall.ConfirmationDetails{
						Title:   "apply edit",
						Variant: toolcall.EditConfirmation{FileName: "a.go", FileDiff: "diff"},
					}, nil
				},
				execute: func(ctx context.Context, out io.Writer) (toolcall.Result, error) {
					return toolcall.Result{Content: response.StringContent("edited")}, nil
				},
			}, nil
		},
	})
	cfg := config.New(t.TempDir())

	var seenAwaiting bool
	s := New(Options{
		Registry: reg,
		Config:   cfg,
		OnUpdate: func(calls []*toolcall.ToolCall) {
			for _, c := range calls {
				if c.Status == toolcall.StatusAwaitingApproval {
					seenAwaiting = true
					details := c.Payload.(toolcall.AwaitingApprovalPayload).Details
					go details.OnConfirm(context.Background(), toolcall.OutcomeProceedOnce, nil)
				}
			}
		},
	})

	var final []*toolcall.ToolCall
	s.onComplete = func(calls []*toolcall.ToolCall) { final = calls }

	if err := s.Schedule(context.Background(), []toolcall.ToolRequest{{CallID: "1", Name: "edit"}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !seenAwaiting {
		t.Fatalf("expected the call to pass through awaiting_approval")
	}
	if len(final) != 1 || final[0].Status != toolcall.StatusSuccess {
		t.Fatalf("expected success after proceed-once, got %+v", final)
	}
}

func TestSchedule_ProceedAlwaysAutoApprovesLaterCallInSameBatch(t *testing.T) {
	confirmCount := 0
	build := func(ctx context.Context, args json.RawMessage) (toolcall.Invocation, error) {
		return &fakeInvocation{
			command: "echo foo",
			confirm: func(ctx context.Context) (*toolcall.ConfirmationDetails, error) {
				confirmCount++
				return &toolcall.ConfirmationDetails{
					Variant: toolcall.ExecConfirmation{Command: "echo foo", RootCommand: "echo foo"},
				}, nil
			},
			execute: func(ctx context.Context, out io.Writer) (toolcall.Result, error) {
				return toolcall.Result{Content: response.StringContent("foo")}, nil
			},
		}, nil
	}
	reg := newFakeRegistry(&fakeTool{name: "run_shell_command", kind: toolcall.KindExec, build: build})
	cfg := config.New(t.TempDir())

	s := New(Options{
		Registry:         reg,
		Config:           cfg,
		ShellToolAliases: []string{"run_shell_command"},
		OnUpdate: func(calls []*toolcall.ToolCall) {
			for _, c := range calls {
				if c.Status == toolcall.StatusAwaitingApproval {
					details := c.Payload.(toolcall.AwaitingApprovalPayload).Details
					go details.OnConfirm(context.Background(), toolcall.OutcomeProceedAlways, nil)
				}
			}
		},
	})

	var final []*toolcall.ToolCall
	s.onComplete = func(calls []*toolcall.ToolCall) { final = calls }

	err := s.Schedule(context.Background(), []toolcall.ToolRequest{
		{CallID: "1", Name: "run_shell_command"},
		{CallID: "2", Name: "run_shell_command"},
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(final) != 2 || final[0].Status != toolcall.StatusSuccess || final[1].Status != toolcall.StatusSuccess {
		t.Fatalf("expected both calls to succeed, got %+v", final)
	}
	if confirmCount != 1 {
		t.Fatalf("expected only the first call to require confirmation, confirmCount=%d", confirmCount)
	}
}

func TestSchedule_CancelOutcomePreservesDiff(t *testing.T) {
	reg := newFakeRegistry(&fakeTool{
		name: "edit",
		kind: toolcall.KindEdit,
		build: func(ctx context.Context, args json.RawMessage) (toolcall.Invocation, error) {
			return &fakeInvocation{
				confirm: func(ctx context.Context) (*toolcall.ConfirmationDetails, error) {
					return &toolcall.ConfirmationDetails{
						Variant: toolcall.EditConfirmation{FileName: "a.go", FileDiff: "-old\n+new"},
					}, nil
				},
				execute: func(ctx context.Context, out io.Writer) (toolcall.Result, error) {
					t.Fatalf("execute should not be called after cancel")
					return toolcall.Result{}, nil
				},
			}, nil
		},
	})
	cfg := config.New(t.TempDir())

	s := New(Options{
		Registry: reg,
		Config:   cfg,
		OnUpdate: func(calls []*toolcall.ToolCall) {
			for _, c := range calls {
				if c.Status == toolcall.StatusAwaitingApproval {
					details := c.Payload.(toolcall.AwaitingApprovalPayload).Details
					go details.OnConfirm(context.Background(), toolcall.OutcomeCancel, nil)
				}
			}
		},
	})

	var final []*toolcall.ToolCall
	s.onComplete = func(calls []*toolcall.ToolCall) { final = calls }

	if err := s.Schedule(context.Background(), []toolcall.ToolRequest{{CallID: "1", Name: "edit"}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(final) != 1 || final[0].Status != toolcall.StatusCancelled {
		t.Fatalf("expected cancelled, got %+v", final)
	}
	display := final[0].Payload.(toolcall.TerminalPayload).ResultDisplay.(toolcall.DiffResultDisplay)
	if display.FileDiff != "-old\n+new" {
		t.Fatalf("expected diff to be preserved on cancel, got %+v", display)
	}
}

func TestSchedule_ContextCancelledBeforeStartCancelsWholeBatch(t *testing.T) {
	reg := newFakeRegistry(&fakeTool{name: "bash", kind: toolcall.KindExec, build: func(ctx context.Context, args json.RawMessage) (toolcall.Invocation, error) {
		t.Fatalf("tool should never be resolved once the context is already cancelled")
		return nil, errors.New("unreachable")
	}})
	cfg := config.New(t.TempDir())
	var final []*toolcall.ToolCall
	s := New(Options{Registry: reg, Config: cfg, OnComplete: func(calls []*toolcall.ToolCall) { final = calls }})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Schedule(ctx, []toolcall.ToolRequest{{CallID: "1", Name: "bash"}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(final) != 1 || final[0].Status != toolcall.StatusCancelled {
		t.Fatalf("expected cancelled without ever resolving the tool, got %+v", final)
	}
}

func TestSchedule_ModifyWithEditorWithoutCallbackTerminatesCancelledNotError(t *testing.T) {
	reg := newFakeRegistry(&fakeTool{
		name: "edit",
		kind: toolcall.KindEdit,
		build: func(ctx context.Context, args json.RawMessage) (toolcall.Invocation, error) {
			return &fakeInvocation{
				confirm: func(ctx context.Context) (*toolcall.ConfirmationDetails, error) {
					return &toolcall.ConfirmationDetails{
						Variant: toolcall.EditConfirmation{FileName: "a.go", FileDiff: "diff"},
					}, nil
				},
				execute: func(ctx context.Context, out io.Writer) (toolcall.Result, error) {
					t.Fatalf("execute should not be called")
					return toolcall.Result{}, nil
				},
			}, nil
		},
	})
	cfg := config.New(t.TempDir())

	// No OnEditorClose is configured, so requesting OutcomeModifyWithEditor
	// fails while the call is still awaiting_approval. There is no
	// awaiting_approval -> error edge in the state machine, so this must
	// land on cancelled rather than panic on an illegal transition.
	s := New(Options{
		Registry: reg,
		Config:   cfg,
		OnUpdate: func(calls []*toolcall.ToolCall) {
			for _, c := range calls {
				if c.Status == toolcall.StatusAwaitingApproval {
					details := c.Payload.(toolcall.AwaitingApprovalPayload).Details
					go details.OnConfirm(context.Background(), toolcall.OutcomeModifyWithEditor, nil)
				}
			}
		},
	})

	var final []*toolcall.ToolCall
	s.onComplete = func(calls []*toolcall.ToolCall) { final = calls }

	if err := s.Schedule(context.Background(), []toolcall.ToolRequest{{CallID: "1", Name: "edit"}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(final) != 1 || final[0].Status != toolcall.StatusCancelled {
		t.Fatalf("expected cancelled, got %+v", final)
	}
}

func containsAll(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
