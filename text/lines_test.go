package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndentation(t *testing.T) {
	tests := []struct {
		line     string
		expected int
	}{
		{"", 0},
		{"foo", 0},
		{"  foo", 2},
		{"\t\tfoo", 2},
		{" \t foo", 3},
		{"    ", 4},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Indentation(tt.line), "indentation of %q", tt.line)
	}
}

func TestLastAndFirstLine(t *testing.T) {
	assert.Equal(t, "c", LastLine("a\nb\nc"), "last line")
	assert.Equal(t, "abc", LastLine("abc"), "single line")
	assert.Equal(t, "", LastLine("abc\n"), "trailing newline")
	assert.Equal(t, "a", FirstLine("a\nb"), "first line")
	assert.Equal(t, "ab", FirstLine("ab"), "single line")
}

func TestNonEmptyLines(t *testing.T) {
	suffix := ")\n\n   \n  return x\n}"

	assert.Equal(t, ")", FirstNonEmptyLine(suffix), "first non-empty line")
	assert.Equal(t, "  return x", NextNonEmptyLine(suffix), "next non-empty line skips the current line")
	assert.Equal(t, "", NextNonEmptyLine("no newline"), "no next line")
	assert.Equal(t, "", FirstNonEmptyLine("\n  \n"), "only blank lines")
}

func TestHasWordChar(t *testing.T) {
	assert.False(t, HasWordChar(")"), "punctuation")
	assert.False(t, HasWordChar(" ]);"), "punctuation with spaces")
	assert.True(t, HasWordChar(") foo"), "word")
	assert.True(t, HasWordChar("_"), "underscore")
}

func TestTrimTrailingWhitespacePerLine(t *testing.T) {
	assert.Equal(t, "a\n  b\n", TrimTrailingWhitespacePerLine("a  \n  b\t\n  "), "trailing whitespace removed")
}

func TestDetectIndentUnit(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"two spaces", "if x {\n  y()\n  if z {\n    w()\n  }\n}", 2},
		{"four spaces", "def f():\n    if x:\n        pass", 4},
		{"tabs", "if x {\n\ty()\n}", 0},
		{"flat", "a\nb\nc", 0},
		{"indented start", "  a\n    b", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectIndentUnit(tt.text), "indent unit")
		})
	}
}

func TestLineSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, LineSimilarity("", ""), "both empty")
	assert.Equal(t, 0.0, LineSimilarity("", "x"), "one empty")
	assert.Equal(t, 1.0, LineSimilarity("return x", "return x"), "identical")
	assert.InDelta(t, 0.75, LineSimilarity("abcd", "abce"), 0.001, "one substitution")
}

func TestAlmostEqual(t *testing.T) {
	assert.True(t, AlmostEqual("", ""), "empty strings")
	assert.True(t, AlmostEqual("  return x", "  return x"), "identical")
	assert.True(t, AlmostEqual("const foo = 1", "const foo = 2"), "one edit in a long line")
	assert.True(t, AlmostEqual("  return x;", "  return x"), "missing semicolon")
	assert.False(t, AlmostEqual("abc", "abd"), "one edit in three characters is too many")
	assert.False(t, AlmostEqual("}", "return x"), "unrelated lines")
	assert.False(t, AlmostEqual("", "}"), "empty against non-empty")
	assert.True(t, AlmostEqual("héllo wörld", "hello wörld"), "edits count runes")
}
