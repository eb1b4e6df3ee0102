// Package scheduler drives ToolRequests through validation, confirmation,
// and execution. It admits work in FIFO batches (one caller's slice of
// requests at a time), runs the calls within a batch concurrently once
// they are all past confirmation, and reports progress through plain
// callbacks rather than an event bus - there is exactly one kind of
// consumer here, rather than a much larger app-wide event bus.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/toolsched/internal/allowlist"
	"github.com/mark3labs/toolsched/internal/config"
	"github.com/mark3labs/toolsched/internal/output"
	"github.com/mark3labs/toolsched/internal/response"
	"github.com/mark3labs/toolsched/internal/suggest"
	"github.com/mark3labs/toolsched/internal/toolcall"
)

// ErrToolNotFound is wrapped into a call's terminal error when its
// request names a tool the registry doesn't have.
var ErrToolNotFound = errors.New("tool not found")

// OnEditorClose is invoked for an OutcomeModifyWithEditor confirmation. It
// receives the content that would be written and returns the content the
// user edited it into.
type OnEditorClose func(ctx context.Context, oldContent string) (newContent string, err error)

// Scheduler is the core tool-invocation control plane: one FIFO queue of
// batches, each batch a slice of ToolCalls admitted together.
type Scheduler struct {
	mu         sync.Mutex
	queue      []*batch
	processing bool

	registry toolcall.Registry
	cfg      *config.Config
	logger   *log.Logger

	onUpdate   func([]*toolcall.ToolCall)
	onComplete func([]*toolcall.ToolCall)
	onEditor   OnEditorClose

	beforeExecute *hookRegistry[BeforeExecuteHook, BeforeExecuteResult]
	afterExecute  *hookRegistry[AfterExecuteHook, AfterExecuteResult]

	// shellToolAliases lists the additional candidate names a shell-like
	// tool answers to for allowlist purposes, beyond its own registered
	// Name(). Populated by New's Options.
	shellToolAliases []string
}

type batch struct {
	ctx   context.Context
	calls []*toolcall.ToolCall
	done  chan struct{}
	err   error
}

// Options configures a new Scheduler. Registry and Config are required;
// the callbacks are optional.
type Options struct {
	Registry         toolcall.Registry
	Config           *config.Config
	Logger           *log.Logger
	OnUpdate         func([]*toolcall.ToolCall)
	OnComplete       func([]*toolcall.ToolCall)
	OnEditorClose    OnEditorClose
	ShellToolAliases []string
}

// New builds a Scheduler. Panics if Registry or Config is nil, since
// neither has a sensible zero value to fall back to.
func New(opts Options) *Scheduler {
	if opts.Registry == nil {
		panic("scheduler: Options.Registry is required")
	}
	if opts.Config == nil {
		panic("scheduler: Options.Config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		registry:         opts.Registry,
		cfg:              opts.Config,
		logger:           logger,
		onUpdate:         opts.OnUpdate,
		onComplete:       opts.OnComplete,
		onEditor:         opts.OnEditorClose,
		shellToolAliases: opts.ShellToolAliases,
		beforeExecute:    newHookRegistry[BeforeExecuteHook, BeforeExecuteResult](),
		afterExecute:     newHookRegistry[AfterExecuteHook, AfterExecuteResult](),
	}
}

// OnBeforeExecute registers a hook run just before each call executes.
// Returns an unregister function.
func (s *Scheduler) OnBeforeExecute(priority HookPriority, handler func(BeforeExecuteHook) *BeforeExecuteResult) func() {
	return s.beforeExecute.register(priority, handler)
}

// OnAfterExecute registers a hook run just after each call executes
// successfully, able to rewrite the output before it's converted to a
// function response.
func (s *Scheduler) OnAfterExecute(priority HookPriority, handler func(AfterExecuteHook) *AfterExecuteResult) func() {
	return s.afterExecute.register(priority, handler)
}

// Schedule admits requests as one FIFO batch and blocks until every call
// in it reaches a terminal status. Concurrent calls to Schedule from
// different goroutines are admitted in the order they acquire the
// internal queue lock and processed one batch at a time; a batch already
// enqueued always finishes before the next one starts.
func (s *Scheduler) Schedule(ctx context.Context, requests []toolcall.ToolRequest) error {
	calls := make([]*toolcall.ToolCall, len(requests))
	for i, r := range requests {
		calls[i] = &toolcall.ToolCall{Request: r, Status: toolcall.StatusValidating}
	}
	b := &batch{ctx: ctx, calls: calls, done: make(chan struct{})}

	s.mu.Lock()
	s.queue = append(s.queue, b)
	shouldStart := !s.processing
	if shouldStart {
		s.processing = true
	}
	s.mu.Unlock()

	if shouldStart {
		go s.drainQueue()
	}

	<-b.done
	return b.err
}

func (s *Scheduler) drainQueue() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.processing = false
			s.mu.Unlock()
			return
		}
		b := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.runBatch(b)
		close(b.done)
	}
}

func (s *Scheduler) runBatch(b *batch) {
	if b.ctx.Err() != nil {
		for _, c := range b.calls {
			s.transitionTerminal(c, toolcall.StatusCancelled, nil, toolcall.TextResultDisplay{Text: "cancelled before start"})
		}
		s.emitUpdate(b)
		s.emitComplete(b)
		return
	}

	// Confirmation is resolved one call at a time, in request order: a
	// real caller only ever shows one prompt at a time, and processing
	// sequentially here makes a ProceedAlways outcome on an earlier call
	// visible to every later confirmation check in the same batch, which
	// is what auto-approval within a batch is supposed to mean. The
	// invariant only promises calls are independent, not that they are
	// interleaved.
	for _, c := range b.calls {
		s.prepare(b, c)
	}

	s.executeScheduled(b)
	s.emitComplete(b)
}

func (s *Scheduler) prepare(b *batch, c *toolcall.ToolCall) {
	s.emitUpdate(b)

	tool, ok := s.registry.GetTool(c.Request.Name)
	if !ok {
		hint := suggest.Suggest(c.Request.Name, s.registry.GetAllToolNames(), 3)
		s.fail(b, c, fmt.Errorf("%w: %q.%s", ErrToolNotFound, c.Request.Name, hint))
		return
	}
	c.Tool = tool

	invocation, err := tool.Build(b.ctx, c.Request.Args)
	if err != nil {
		s.fail(b, c, fmt.Errorf("invalid parameters for %q: %w", c.Request.Name, err))
		return
	}
	c.Invocation = invocation

	for {
		if b.ctx.Err() != nil {
			s.transitionTerminal(c, toolcall.StatusCancelled, nil, toolcall.TextResultDisplay{Text: "cancelled before execution"})
			s.emitUpdate(b)
			return
		}

		if s.shouldAutoApprove(tool, invocation) {
			s.transition(c, toolcall.StatusScheduled, nil)
			s.emitUpdate(b)
			return
		}

		details, err := invocation.ShouldConfirmExecute(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				s.transitionTerminal(c, toolcall.StatusCancelled, nil, toolcall.TextResultDisplay{Text: "cancelled during confirmation check"})
			} else {
				s.fail(b, c, fmt.Errorf("confirmation check failed: %w", err))
			}
			s.emitUpdate(b)
			return
		}
		if details == nil {
			s.transition(c, toolcall.StatusScheduled, nil)
			s.emitUpdate(b)
			return
		}

		outcome, payload, cancelled := s.awaitConfirmation(b, c, details)
		if cancelled {
			s.transitionTerminal(c, toolcall.StatusCancelled, nil, cancelledEditDisplay(details))
			s.emitUpdate(b)
			return
		}

		switch outcome {
		case toolcall.OutcomeCancel:
			s.transitionTerminal(c, toolcall.StatusCancelled, nil, cancelledEditDisplay(details))
			s.emitUpdate(b)
			return

		case toolcall.OutcomeProceedOnce:
			if payload != nil && len(payload.NewArgs) > 0 {
				rebuilt, err := tool.Build(b.ctx, payload.NewArgs)
				if err != nil {
					s.fail(b, c, fmt.Errorf("invalid modified parameters for %q: %w", c.Request.Name, err))
					return
				}
				c.Invocation = rebuilt
				invocation = rebuilt
			}
			s.transition(c, toolcall.StatusScheduled, nil)
			s.emitUpdate(b)
			return

		case toolcall.OutcomeProceedAlways:
			s.recordAllowlist(tool, details)
			s.transition(c, toolcall.StatusScheduled, nil)
			s.emitUpdate(b)
			return

		case toolcall.OutcomeProceedAlwaysServer, toolcall.OutcomeProceedAlwaysTool:
			s.recordAllowlist(tool, details)
			s.transition(c, toolcall.StatusScheduled, nil)
			s.emitUpdate(b)
			return

		case toolcall.OutcomeModifyWithEditor:
			if s.onEditor == nil {
				s.fail(b, c, errors.New("modify-with-editor requested but no editor callback is configured"))
				return
			}
			edit, ok := details.Variant.(toolcall.EditConfirmation)
			if !ok {
				s.fail(b, c, errors.New("modify-with-editor is only supported for edit confirmations"))
				return
			}
			newContent, err := s.onEditor(b.ctx, edit.NewContent)
			if err != nil {
				if b.ctx.Err() != nil {
					s.transitionTerminal(c, toolcall.StatusCancelled, nil, toolcall.TextResultDisplay{Text: "cancelled in editor"})
					s.emitUpdate(b)
					return
				}
				s.fail(b, c, fmt.Errorf("editor session failed: %w", err))
				return
			}
			_ = newContent
			// Loop back: re-derive confirmation details against the
			// edited content on the next iteration.
			continue
		}

		s.fail(b, c, fmt.Errorf("unrecognized confirmation outcome %q", outcome))
		return
	}
}

func cancelledEditDisplay(details *toolcall.ConfirmationDetails) toolcall.ResultDisplay {
	if edit, ok := details.Variant.(toolcall.EditConfirmation); ok {
		return toolcall.DiffResultDisplay{FileName: edit.FileName, FilePath: edit.FilePath, FileDiff: edit.FileDiff}
	}
	return toolcall.TextResultDisplay{Text: "cancelled"}
}

func (s *Scheduler) recordAllowlist(tool toolcall.Tool, details *toolcall.ConfirmationDetails) {
	switch v := details.Variant.(type) {
	case toolcall.ExecConfirmation:
		root := v.RootCommand
		if root == "" {
			root = v.Command
		}
		s.cfg.AddAllowedTool(fmt.Sprintf("%s(%s)", tool.Name(), root))
	case toolcall.MCPConfirmation:
		s.cfg.AddAllowedTool(fmt.Sprintf("%s(%s)", tool.Name(), v.ServerName))
	case toolcall.EditConfirmation:
		s.cfg.SetApprovalMode(config.ApprovalAutoEdit)
	default:
		s.cfg.AddAllowedTool(tool.Name())
	}
}

func (s *Scheduler) shouldAutoApprove(tool toolcall.Tool, inv toolcall.Invocation) bool {
	mode := s.cfg.ApprovalMode()
	if mode == config.ApprovalYolo {
		return true
	}
	if mode == config.ApprovalAutoEdit && tool.Kind() == toolcall.KindEdit {
		return true
	}

	isShell := tool.Kind() == toolcall.KindExec
	command, hasCommand := "", false
	if cp, ok := inv.(toolcall.CommandProvider); ok {
		command, hasCommand = cp.Command(), true
	}

	names := []string{tool.Name()}
	if isShell {
		names = append(names, s.shellToolAliases...)
	}
	return allowlist.Matches(names, isShell, command, hasCommand, s.cfg.AllowedTools())
}

func (s *Scheduler) executeScheduled(b *batch) {
	var g errgroup.Group
	for _, c := range b.calls {
		if c.Status != toolcall.StatusScheduled {
			continue
		}
		c := c
		g.Go(func() error {
			s.executeOne(b, c)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) executeOne(b *batch, c *toolcall.ToolCall) {
	if b.ctx.Err() != nil {
		s.transitionTerminal(c, toolcall.StatusCancelled, nil, toolcall.TextResultDisplay{Text: "cancelled before execution"})
		s.emitUpdate(b)
		return
	}

	if s.beforeExecute.hasHooks() {
		if res := s.beforeExecute.run(BeforeExecuteHook{CallID: c.Request.CallID, ToolName: c.Request.Name, Args: c.Request.Args}); res != nil && res.Block {
			s.fail(b, c, fmt.Errorf("blocked by hook: %s", res.Reason))
			return
		}
	}

	execCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()

	writer := &liveOutput{}
	s.transition(c, toolcall.StatusExecuting, toolcall.ExecutingPayload{Cancel: cancel, Output: writer})
	s.emitUpdate(b)

	result, err := c.Invocation.Execute(execCtx, writer)
	if err != nil {
		if execCtx.Err() != nil || b.ctx.Err() != nil {
			s.transitionTerminal(c, toolcall.StatusCancelled, nil, cancelledExecutionDisplay(c.Invocation, writer))
		} else {
			s.transitionTerminal(c, toolcall.StatusError, nil, toolcall.TextResultDisplay{Text: err.Error()})
			s.logger.Warn("tool execution failed", "tool", c.Request.Name, "call_id", c.Request.CallID, "err", err)
		}
		s.emitUpdate(b)
		return
	}

	parts := response.ConvertToFunctionResponse(c.Request.Name, c.Request.CallID, result.Content)
	parts = s.runAfterExecuteHook(c, parts, result.IsError)
	parts = s.postProcess(c.Request.CallID, parts)

	if result.IsError {
		s.logger.Debug("tool reported a domain-level error", "tool", c.Request.Name, "call_id", c.Request.CallID)
	}

	s.transitionTerminal(c, toolcall.StatusSuccess, parts, result.ResultDisplay)
	s.emitUpdate(b)
}

func (s *Scheduler) runAfterExecuteHook(c *toolcall.ToolCall, parts []response.Part, isError bool) []response.Part {
	if !s.afterExecute.hasHooks() || len(parts) == 0 {
		return parts
	}
	envelope, ok := parts[0].(response.FunctionResponsePart)
	if !ok {
		return parts
	}
	res := s.afterExecute.run(AfterExecuteHook{
		CallID:    c.Request.CallID,
		ToolName:  c.Request.Name,
		RawOutput: envelope.Output,
		IsError:   isError,
	})
	if res == nil {
		return parts
	}
	if res.Output != nil {
		envelope.Output = *res.Output
		parts[0] = envelope
	}
	return parts
}

func (s *Scheduler) postProcess(callID string, parts []response.Part) []response.Part {
	if len(parts) == 0 {
		return parts
	}
	envelope, ok := parts[0].(response.FunctionResponsePart)
	if !ok {
		return parts
	}
	th := s.cfg.Thresholds()
	opts := output.Options{
		ByteThreshold: th.OutputByteThreshold,
		TruncateLines: th.TruncateLines,
		WrapWidth:     th.WrapWidth,
		Separator:     "\n... [CONTENT TRUNCATED] ...\n",
		TempDir:       s.cfg.TempDir(),
	}
	res := output.TruncateAndSaveToFile(callID, envelope.Output, opts)
	envelope.Output = res.Content
	parts[0] = envelope
	return parts
}

func cancelledExecutionDisplay(inv toolcall.Invocation, out *liveOutput) toolcall.ResultDisplay {
	if pd, ok := inv.(toolcall.PendingDiffProvider); ok {
		if fileName, diff, ok := pd.PendingDiff(); ok {
			return toolcall.DiffResultDisplay{FileName: fileName, FileDiff: diff}
		}
	}
	return toolcall.TextResultDisplay{Text: out.String()}
}

// fail terminates c with the given error. Error is only a legal successor
// of validating and executing; a call that fails anywhere else (awaiting
// approval, scheduled but not yet running) has no error edge to reach, so
// it terminates as cancelled instead, per the transition table below.
func (s *Scheduler) fail(b *batch, c *toolcall.ToolCall, err error) {
	next := toolcall.StatusError
	if !c.Status.CanTransitionTo(next) {
		next = toolcall.StatusCancelled
	}
	s.transitionTerminal(c, next, nil, toolcall.TextResultDisplay{Text: err.Error()})
	s.emitUpdate(b)
}

// transition moves c to next, panicking if next isn't a legal successor
// of c's current status. Every caller in this package is expected to
// have already picked a status the transition table allows - reaching
// this panic means the scheduler's own logic proposed an illegal edge,
// not that a caller supplied bad input.
func (s *Scheduler) transition(c *toolcall.ToolCall, next toolcall.Status, payload toolcall.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.Status.CanTransitionTo(next) {
		panic(fmt.Sprintf("scheduler: illegal transition %s -> %s for call %s", c.Status, next, c.Request.CallID))
	}
	c.Status = next
	c.Payload = payload
}

func (s *Scheduler) transitionTerminal(c *toolcall.ToolCall, next toolcall.Status, parts []response.Part, display toolcall.ResultDisplay) {
	s.transition(c, next, toolcall.TerminalPayload{Response: parts, ResultDisplay: display})
}

func (s *Scheduler) emitUpdate(b *batch) {
	if s.onUpdate == nil {
		return
	}
	s.onUpdate(s.snapshot(b.calls))
}

func (s *Scheduler) emitComplete(b *batch) {
	if s.onComplete == nil {
		return
	}
	s.onComplete(s.snapshot(b.calls))
}

// snapshot copies each call's struct under the same lock transition uses,
// since executeScheduled runs calls concurrently: without it, one call's
// emitUpdate could copy a sibling call's Status/Payload while that
// sibling's own goroutine is mid-write to those same fields.
func (s *Scheduler) snapshot(calls []*toolcall.ToolCall) []*toolcall.ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*toolcall.ToolCall, len(calls))
	for i, c := range calls {
		cp := *c
		out[i] = &cp
	}
	return out
}
