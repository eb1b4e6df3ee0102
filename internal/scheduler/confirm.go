package scheduler

import (
	"context"
	"sync"

	"github.com/mark3labs/toolsched/internal/toolcall"
)

// awaitConfirmation transitions c into awaiting_approval carrying details
// wrapped with an OnConfirm that resolves a private channel, then blocks
// until either the batch's context is cancelled or a caller invokes that
// OnConfirm. cancelled is true only for the former.
func (s *Scheduler) awaitConfirmation(b *batch, c *toolcall.ToolCall, details *toolcall.ConfirmationDetails) (outcome toolcall.ConfirmationOutcome, payload *toolcall.ConfirmPayload, cancelled bool) {
	resolved := make(chan struct{})
	var (
		once       sync.Once
		gotOutcome toolcall.ConfirmationOutcome
		gotPayload *toolcall.ConfirmPayload
	)

	wrapped := *details
	wrapped.OnConfirm = func(_ context.Context, o toolcall.ConfirmationOutcome, p *toolcall.ConfirmPayload) error {
		once.Do(func() {
			gotOutcome, gotPayload = o, p
			close(resolved)
		})
		return nil
	}

	s.transition(c, toolcall.StatusAwaitingApproval, toolcall.AwaitingApprovalPayload{Details: &wrapped})
	s.emitUpdate(b)

	select {
	case <-resolved:
		return gotOutcome, gotPayload, false
	case <-b.ctx.Done():
		return "", nil, true
	}
}

// liveOutput is the io.Writer handed to an executing invocation so it can
// stream partial output; it also serves as the fallback text shown if the
// call is cancelled mid-run and the invocation has no richer pending-diff
// state to report.
type liveOutput struct {
	mu  sync.Mutex
	buf []byte
}

func (w *liveOutput) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *liveOutput) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}
