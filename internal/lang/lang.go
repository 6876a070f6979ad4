// Package lang detects the content kind of a conflicting file and verifies
// that a resolved file still parses. Detection feeds prompt framing only;
// verification backs the post-resolution syntax check.
package lang

import (
	"path/filepath"
	"strings"
)

// Language identifies a programming language for parsing.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangUnknown    Language = "unknown"
)

// Detect maps a file path to a Language by extension. Paths with no known
// extension report LangUnknown; callers treat unknown content as opaque text.
func Detect(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return LangGo
	case ".ts", ".tsx", ".mts", ".cts":
		return LangTypeScript
	case ".py", ".pyi":
		return LangPython
	case ".rs":
		return LangRust
	default:
		return LangUnknown
	}
}

// Parseable reports whether a grammar is registered for l.
func Parseable(l Language) bool {
	return l == LangGo || l == LangTypeScript || l == LangPython || l == LangRust
}
