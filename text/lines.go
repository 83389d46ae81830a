package text

import (
	"regexp"
	"strings"
)

var wordCharRegex = regexp.MustCompile(`\w`)

// Lines splits text on "\n". An empty string is one empty line.
func Lines(text string) []string {
	return strings.Split(text, "\n")
}

// LastLine returns the text after the last newline
func LastLine(text string) string {
	return text[strings.LastIndex(text, "\n")+1:]
}

// FirstLine returns the text before the first newline
func FirstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

// IsBlank reports whether s holds only whitespace
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// HasWordChar reports whether s contains a letter, digit or underscore
func HasWordChar(s string) bool {
	return wordCharRegex.MatchString(s)
}

// Indentation counts the leading spaces and tabs of a line
func Indentation(line string) int {
	n := 0
	for n < len(line) && (line[n] == ' ' || line[n] == '\t') {
		n++
	}
	return n
}

// FirstNonEmptyLine returns the first non-blank line of text, or ""
func FirstNonEmptyLine(text string) string {
	for _, line := range Lines(text) {
		if !IsBlank(line) {
			return line
		}
	}
	return ""
}

// NextNonEmptyLine returns the first non-blank line after the first newline
// of text, or "" when there is none.
func NextNonEmptyLine(text string) string {
	i := strings.IndexByte(text, '\n')
	if i < 0 {
		return ""
	}
	return FirstNonEmptyLine(text[i+1:])
}

// TrimTrailingWhitespacePerLine strips trailing spaces and tabs from every line
func TrimTrailingWhitespacePerLine(text string) string {
	lines := Lines(text)
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n")
}

// DetectIndentUnit returns the most frequent positive change in leading
// spaces between consecutive non-blank lines. Tab-indented or flat text
// yields 0.
func DetectIndentUnit(text string) int {
	counts := map[int]int{}
	prev := 0
	for _, line := range Lines(text) {
		if IsBlank(line) {
			continue
		}
		if strings.HasPrefix(line, "\t") {
			return 0
		}
		spaces := len(line) - len(strings.TrimLeft(line, " "))
		if d := spaces - prev; d > 0 {
			counts[d]++
		}
		prev = spaces
	}

	unit, best := 0, 0
	for d, c := range counts {
		if c > best || (c == best && d < unit) {
			unit, best = d, c
		}
	}
	return unit
}
