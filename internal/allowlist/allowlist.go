// Package allowlist implements pattern matching for the "always allow"
// half of the scheduler's confirmation flow: parsing ToolName /
// ToolName(argPrefix) allowlist entries, extracting a stable command
// prefix out of an arbitrary shell command for use as an allowlist key,
// and deciding whether a given invocation already matches an existing
// entry.
package allowlist

import (
	"strings"

	"github.com/mark3labs/toolsched/internal/shellsplit"
)

// Pattern is one parsed allowlist entry.
type Pattern struct {
	ToolName     string
	ArgPrefix    string
	HasArgPrefix bool
}

// ParsePattern parses a raw allowlist entry of the form "ToolName" or
// "ToolName(argPrefix)". An entry with an opening paren but no closing
// paren is malformed and never matches anything; ok is false for it and
// for an empty entry.
func ParsePattern(raw string) (Pattern, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Pattern{}, false
	}
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return Pattern{ToolName: s}, true
	}
	if !strings.HasSuffix(s, ")") {
		return Pattern{}, false
	}
	return Pattern{
		ToolName:     strings.TrimSpace(s[:open]),
		ArgPrefix:    s[open+1 : len(s)-1],
		HasArgPrefix: true,
	}, true
}

// MatchesCommand reports whether command satisfies this pattern's
// argument prefix. A pattern with no argument prefix matches any command.
func (p Pattern) MatchesCommand(command string) bool {
	if !p.HasArgPrefix {
		return true
	}
	if command == p.ArgPrefix {
		return true
	}
	return strings.HasPrefix(command, p.ArgPrefix+" ")
}

// GetCommandPrefix greedily extends a prefix of command word-by-word for
// as long as the accumulated, space-joined prefix remains a whole-word
// prefix of (or equal to) some entry in stemmables. If the longest such
// prefix spans the entire command, the whole command is returned;
// otherwise the matched prefix plus exactly one following token is
// returned. Whitespace-only input returns the empty string.
func GetCommandPrefix(command string, stemmables []string) string {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return ""
	}
	tokens := shellsplit.Fields(trimmed)
	if len(tokens) == 0 {
		return ""
	}

	matched := 0
	prefixSoFar := ""
	for i, tok := range tokens {
		candidate := tok
		if prefixSoFar != "" {
			candidate = prefixSoFar + " " + tok
		}
		if isWordPrefixOfAny(candidate, stemmables) {
			matched = i + 1
			prefixSoFar = candidate
			continue
		}
		break
	}

	if matched == len(tokens) {
		return strings.Join(tokens, " ")
	}
	end := matched + 1
	if end > len(tokens) {
		end = len(tokens)
	}
	return strings.Join(tokens[:end], " ")
}

func isWordPrefixOfAny(candidate string, stemmables []string) bool {
	for _, s := range stemmables {
		if candidate == s {
			return true
		}
		if strings.HasPrefix(s, candidate) && len(s) > len(candidate) && s[len(candidate)] == ' ' {
			return true
		}
	}
	return false
}

// Matches reports whether an invocation - identified by its candidate
// tool names (a tool's own name plus any class aliases, e.g. a shell
// tool's synonyms) and, if it is shell-like, its command line - already
// satisfies one of patterns.
//
// For a shell-like invocation with a command, the command is split on its
// top-level operators (&&, ||, |, ;) and every resulting sub-command must
// individually match some pattern; a chain is only ever auto-approved if
// none of its links introduce anything outside the allowlist.
func Matches(toolNames []string, isShellLike bool, command string, hasCommand bool, patterns []string) bool {
	parsed := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		if p, ok := ParsePattern(raw); ok {
			parsed = append(parsed, p)
		}
	}

	if isShellLike && hasCommand {
		subs := shellsplit.Split(command)
		if len(subs) == 0 {
			return false
		}
		for _, sub := range subs {
			if !matchesOne(toolNames, strings.TrimSpace(sub), parsed) {
				return false
			}
		}
		return true
	}

	return matchesOne(toolNames, command, parsed)
}

func matchesOne(toolNames []string, command string, patterns []Pattern) bool {
	for _, p := range patterns {
		nameMatches := false
		for _, n := range toolNames {
			if p.ToolName == n {
				nameMatches = true
				break
			}
		}
		if !nameMatches {
			continue
		}
		if p.MatchesCommand(command) {
			return true
		}
	}
	return false
}
