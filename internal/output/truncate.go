// Package output implements the scheduler's post-processing of large tool
// output: wrapping and truncating it to a head-and-tail form for the
// caller, and spilling the full content to a sanitized temp file the
// caller can read back with an offset/limit tool.
//
// The line-keeping shape (keep some lines from the front, some from the
// back, note how many were dropped) follows a truncateTail / truncateHead
// split; this package adds the wrap-then-truncate pipeline and
// file-spill step the scheduler's contract requires on top of that.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultByteThreshold is the content size below which no truncation
	// or file spill happens at all.
	DefaultByteThreshold = 50 * 1024
	// DefaultTruncateLines is the number of lines kept in the head+tail
	// summary once content exceeds the threshold.
	DefaultTruncateLines = 200
	// DefaultWrapWidth is the column width long lines are wrapped to
	// before the head/tail split is computed.
	DefaultWrapWidth = 120

	defaultSeparator = "\n... [CONTENT TRUNCATED] ...\n"

	truncationHeader = "[Output truncated: content exceeded the size limit, so only the first and last portions are shown below.]\n\n"

	// outputSpillFailedNote is appended verbatim when the full-content
	// spill to disk fails, so a caller isn't left thinking a read_file
	// follow-up would recover the missing portion.
	outputSpillFailedNote = "\n\n[Note: Could not save full output to file]"
)

// Options configures a single TruncateAndSaveToFile call. The zero value
// is not usable; use NewOptions for the documented defaults.
type Options struct {
	ByteThreshold int
	TruncateLines int
	WrapWidth     int
	Separator     string
	TempDir       string
}

// NewOptions returns Options populated with the package defaults and the
// given temp directory.
func NewOptions(tempDir string) Options {
	return Options{
		ByteThreshold: DefaultByteThreshold,
		TruncateLines: DefaultTruncateLines,
		WrapWidth:     DefaultWrapWidth,
		Separator:     defaultSeparator,
		TempDir:       tempDir,
	}
}

// Result is what TruncateAndSaveToFile hands back.
type Result struct {
	Content    string
	Truncated  bool
	OutputFile string // empty unless the full content was spilled to disk
}

// TruncateAndSaveToFile returns content unchanged if it is at or under
// opts.ByteThreshold. Otherwise it normalizes content into lines (wrapping
// long lines to opts.WrapWidth unless content already looks like many
// short lines, e.g. log output), prefixes a truncation header, and keeps a
// head-and-tail slice of opts.TruncateLines lines joined by opts.Separator.
// It also - best-effort - writes the full normalized content to a file
// under opts.TempDir named after the sanitized basename of callID, and
// appends a hint naming the read_file tool and its offset/limit
// parameters so a caller can retrieve everything. If the file write
// fails, the returned Content still carries the header and head/tail
// summary, with the outputSpillFailedNote sentinel appended in place of
// the read_file hint, so a caller knows the missing portion isn't
// recoverable; OutputFile is left empty.
func TruncateAndSaveToFile(callID, content string, opts Options) Result {
	if len(content) <= opts.ByteThreshold {
		return Result{Content: content}
	}

	lines := normalizeLines(content, opts.WrapWidth)
	head, tail := headTailSplit(len(lines), opts.TruncateLines)

	var summary strings.Builder
	summary.WriteString(truncationHeader)
	summary.WriteString(strings.Join(lines[:head], "\n"))
	summary.WriteString(opts.Separator)
	summary.WriteString(strings.Join(lines[len(lines)-tail:], "\n"))

	result := Result{
		Content:   summary.String(),
		Truncated: true,
	}

	path, err := saveFull(callID, strings.Join(lines, "\n"), opts.TempDir)
	if err != nil {
		result.Content += outputSpillFailedNote
		return result
	}
	result.OutputFile = path
	result.Content = fmt.Sprintf(
		"%s\n\nFull output (%d lines) saved to %s. Call read_file with path=%q and an offset/limit pair to inspect any part of it.",
		result.Content, len(lines), path, path,
	)
	return result
}

// headTailSplit divides a truncateLines budget between the front and back
// of total lines, favoring the tail slightly (a fifth of the budget to the
// head) since the most recent output is usually the most relevant one.
func headTailSplit(total, truncateLines int) (head, tail int) {
	if truncateLines >= total {
		return total, 0
	}
	head = truncateLines / 5
	tail = truncateLines - head
	if tail > total {
		tail = total
		head = 0
	}
	if head+tail > total {
		head = total - tail
	}
	return head, tail
}

// normalizeLines splits content into a line slice, wrapping any line
// longer than width unless content already reads as many short lines (in
// which case wrapping would just fragment already-meaningful line breaks,
// e.g. in log or ls -l output).
func normalizeLines(content string, width int) []string {
	raw := strings.Split(content, "\n")
	if looksLikeManyShortLines(raw, width) {
		return raw
	}
	return wrapLines(raw, width)
}

func looksLikeManyShortLines(lines []string, width int) bool {
	if len(lines) < 10 {
		return false
	}
	long := 0
	for _, l := range lines {
		if len(l) > width {
			long++
		}
	}
	return float64(long)/float64(len(lines)) < 0.5
}

func wrapLines(lines []string, width int) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			out = append(out, "")
			continue
		}
		runes := []rune(line)
		for len(runes) > width {
			out = append(out, string(runes[:width]))
			runes = runes[width:]
		}
		out = append(out, string(runes))
	}
	return out
}

// saveFull writes content to opts.TempDir under a name derived from
// callID. filepath.Base strips any directory components, so a callID like
// "../../etc/passwd" resolves to a plain "passwd.output" inside tempDir
// rather than escaping it.
func saveFull(callID, content, tempDir string) (string, error) {
	base := filepath.Base(callID)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "output"
	}
	name := base + ".output"
	path := filepath.Join(tempDir, name)

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
