// Package oracle answers whether inserted text introduces a syntax error.
// Only the position of an error matters, not its message.
package oracle

// Oracle reports whether text has a parse error inside [start, end]
type Oracle interface {
	HasParseErrorInSpan(languageID, text string, start, end int) bool
}

// Checker returns the byte offsets of the parse errors in text
type Checker func(text string) []int

// Registry dispatches on the language id. Languages without a checker never
// report errors.
type Registry map[string]Checker

// Default returns the checkers that run in-process
func Default() Registry {
	return Registry{
		"go":          GoErrors,
		"shellscript": ShellErrors,
	}
}

// HasParseErrorInSpan implements Oracle. Errors at the very end of text are
// ignored: the suffix may have been clipped or be empty.
func (r Registry) HasParseErrorInSpan(languageID, text string, start, end int) bool {
	check, ok := r[languageID]
	if !ok {
		return false
	}
	for _, offset := range check(text) {
		// a window cut inside an open block fails at EOF
		if offset >= len(text) {
			continue
		}
		if offset >= start && offset <= end {
			return true
		}
	}
	return false
}
