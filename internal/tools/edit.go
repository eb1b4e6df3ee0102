package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/mark3labs/toolsched/internal/response"
	"github.com/mark3labs/toolsched/internal/toolcall"
)

type editArgs struct {
	Path    string `json:"path"`
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

// editTool is the Edit-kind reference tool: an exact (falling back to
// fuzzy) text replacement in a file on disk.
type editTool struct{}

// NewEditTool builds the reference file-editing tool.
func NewEditTool() toolcall.Tool {
	return &editTool{}
}

func (t *editTool) Name() string        { return "edit" }
func (t *editTool) Kind() toolcall.Kind { return toolcall.KindEdit }

func (t *editTool) Build(ctx context.Context, args json.RawMessage) (toolcall.Invocation, error) {
	var a editArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("decode edit arguments: %w", err)
	}
	if a.Path == "" {
		return nil, errors.New("path parameter is required")
	}
	return &editInvocation{path: a.Path, oldText: a.OldText, newText: a.NewText}, nil
}

// editInvocation computes its diff once, the first time either
// ShouldConfirmExecute or Execute is called, and reuses it afterwards.
// Computing the diff before the write - rather than as a side effect of
// it - is what lets a call cancelled in awaiting_approval or mid-execute
// still report the diff it would have applied.
type editInvocation struct {
	path    string
	oldText string
	newText string

	prepared bool
	original string
	updated  string
	diff     string
}

func (e *editInvocation) prepare() error {
	if e.prepared {
		return nil
	}

	raw, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", e.path, err)
	}

	original := strings.ReplaceAll(string(raw), "\r\n", "\n")
	oldText := strings.ReplaceAll(e.oldText, "\r\n", "\n")

	var idx, matchLen int
	switch count := strings.Count(original, oldText); {
	case count == 1:
		idx = strings.Index(original, oldText)
		matchLen = len(oldText)
	case count > 1:
		return fmt.Errorf("found %d matches for old_text in %s; provide more context to identify the correct match", count, e.path)
	default:
		fIdx, fLen := fuzzyMatch(original, oldText)
		if fIdx < 0 {
			return fmt.Errorf("old_text not found in %s", e.path)
		}
		idx, matchLen = fIdx, fLen
	}

	updated := original[:idx] + e.newText + original[idx+matchLen:]

	e.original = original
	e.updated = updated
	e.diff = generateDiff(e.path, original, updated, idx)
	e.prepared = true
	return nil
}

func (e *editInvocation) ShouldConfirmExecute(ctx context.Context) (*toolcall.ConfirmationDetails, error) {
	if err := e.prepare(); err != nil {
		return nil, err
	}
	return &toolcall.ConfirmationDetails{
		Title: fmt.Sprintf("Apply edit to %s", e.path),
		Variant: toolcall.EditConfirmation{
			FileName:        filepath.Base(e.path),
			FilePath:        e.path,
			FileDiff:        e.diff,
			OriginalContent: e.original,
			NewContent:      e.updated,
		},
	}, nil
}

// PendingDiff implements toolcall.PendingDiffProvider.
func (e *editInvocation) PendingDiff() (fileName, fileDiff string, ok bool) {
	if !e.prepared {
		return "", "", false
	}
	return filepath.Base(e.path), e.diff, true
}

func (e *editInvocation) Execute(ctx context.Context, out io.Writer) (toolcall.Result, error) {
	if err := e.prepare(); err != nil {
		return toolcall.Result{}, err
	}
	if ctx.Err() != nil {
		return toolcall.Result{}, ctx.Err()
	}
	if err := os.WriteFile(e.path, []byte(e.updated), 0o644); err != nil {
		return toolcall.Result{}, fmt.Errorf("write %s: %w", e.path, err)
	}

	fmt.Fprintf(out, "Applied edit to %s\n", e.path)
	text := fmt.Sprintf("Applied edit to %s\n%s", e.path, e.diff)

	return toolcall.Result{
		Content: response.StringContent(text),
		ResultDisplay: toolcall.DiffResultDisplay{
			FileName: filepath.Base(e.path),
			FilePath: e.path,
			FileDiff: e.diff,
		},
	}, nil
}

// fuzzyMatch relaxes exact matching by stripping trailing per-line
// whitespace and normalizing smart punctuation before searching, then
// maps the match back to a byte range in the original content.
func fuzzyMatch(content, search string) (int, int) {
	normContent := normalizeForFuzzy(content)
	normSearch := normalizeForFuzzy(search)

	idx := strings.Index(normContent, normSearch)
	if idx < 0 {
		return -1, 0
	}

	origIdx := mapFuzzyIndex(content, normContent, idx)
	origEnd := mapFuzzyIndex(content, normContent, idx+len(normSearch))
	return origIdx, origEnd - origIdx
}

func normalizeForFuzzy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	result := strings.Join(lines, "\n")

	replacer := strings.NewReplacer(
		"“", "\"",
		"”", "\"",
		"‘", "'",
		"’", "'",
		"–", "-",
		"—", "-",
		" ", " ",
	)
	return replacer.Replace(result)
}

func mapFuzzyIndex(original, normalized string, normIdx int) int {
	origRunes := []rune(original)
	normRunes := []rune(normalized)

	if normIdx >= len(normRunes) {
		return len(original)
	}

	byteCount := 0
	for i := 0; i < normIdx && i < len(origRunes); i++ {
		byteCount += len(string(origRunes[i]))
	}
	return byteCount
}

// generateDiff renders a simplified unified diff of the single changed
// region, with a few lines of context on either side.
func generateDiff(path, old, updated string, changeIdx int) string {
	oldLines := strings.Split(old, "\n")

	lineNum := strings.Count(old[:changeIdx], "\n") + 1
	const contextLines = 3
	start := lineNum - contextLines - 1
	if start < 0 {
		start = 0
	}

	changedSpan := strings.Count(old[changeIdx:], "\n") + 1
	endOld := lineNum + contextLines + changedSpan
	if endOld > len(oldLines) {
		endOld = len(oldLines)
	}

	updatedLines := strings.Split(updated, "\n")
	changedSpanNew := strings.Count(updated[minInt(changeIdx, len(updated)):], "\n") + 1
	endNew := lineNum + contextLines + changedSpanNew
	if endNew > len(updatedLines) {
		endNew = len(updatedLines)
	}

	var diff strings.Builder
	fmt.Fprintf(&diff, "--- %s\n+++ %s\n", path, path)
	fmt.Fprintf(&diff, "@@ -%d,%d +%d,%d @@\n", start+1, endOld-start, start+1, endNew-start)

	for i := start; i < endOld && i < len(oldLines); i++ {
		prefix := " "
		if i >= lineNum-1 && i < lineNum-1+changedSpan {
			prefix = "-"
		}
		fmt.Fprintf(&diff, "%s %s\n", prefix, oldLines[i])
	}

	return diff.String()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
