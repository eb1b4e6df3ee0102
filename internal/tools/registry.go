package tools

import (
	"github.com/mark3labs/toolsched/internal/config"
	"github.com/mark3labs/toolsched/internal/toolcall"
)

// registry is a simple in-memory toolcall.Registry over a fixed slice of
// tools, exposed as a lookup rather than a slice since the scheduler
// needs GetTool(name) rather than a range over all of them.
type registry struct {
	byName map[string]toolcall.Tool
	names  []string
}

// NewRegistry builds a toolcall.Registry over the given tools.
func NewRegistry(tools ...toolcall.Tool) toolcall.Registry {
	r := &registry{byName: make(map[string]toolcall.Tool, len(tools)), names: make([]string, 0, len(tools))}
	for _, t := range tools {
		r.byName[t.Name()] = t
		r.names = append(r.names, t.Name())
	}
	return r
}

func (r *registry) GetTool(name string) (toolcall.Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *registry) GetAllToolNames() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// DemoTools returns the reference tool set the CLI demo registers: one
// Exec-kind tool and one Edit-kind tool, matching the two
// ConfirmationDetails variants the reference implementation actually
// exercises end to end.
func DemoTools(cfg *config.Config) []toolcall.Tool {
	return []toolcall.Tool{
		NewBashTool(cfg),
		NewEditTool(),
	}
}
