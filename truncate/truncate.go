// Package truncate cuts multi-line completions down to the block the cursor
// is in, using indentation only.
package truncate

import (
	"regexp"
	"strings"

	"inlinecomplete/language"
	"inlinecomplete/text"
)

var openingBracketRegex = regexp.MustCompile(`([(\[{])$`)

var bracketPairs = map[string]string{
	"(": ")",
	"[": "]",
	"{": "}",
}

// NormalizeStartLine drops a blank first line when the line after it sits at
// the indentation the cursor line already has, and trims that line's leading
// whitespace so it continues the cursor line.
func NormalizeStartLine(completion, prefix string) string {
	lines := text.Lines(completion)
	if len(lines) < 2 || lines[0] != "" {
		return completion
	}
	if text.Indentation(lines[1]) != text.Indentation(text.LastLine(prefix)) {
		return completion
	}
	lines = lines[1:]
	lines[0] = strings.TrimLeft(lines[0], " \t")
	return strings.Join(lines, "\n")
}

// Multiline returns the part of completion that stays inside the block
// opened at the cursor. Languages without a block syntax entry pass through
// unchanged. tabSize is the editor's indent width.
func Multiline(completion, prefix, suffix, languageID string, tabSize int) string {
	cfg := language.Get(languageID)
	if cfg == nil {
		return completion
	}

	completion = ensureSameOrLargerIndentation(completion, tabSize)
	lines := text.Lines(completion)

	firstLine := text.LastLine(prefix) + lines[0]
	startIndent := text.Indentation(firstLine)
	hasEmptyCompletionLine := text.IsBlank(firstLine)
	includeClosingLine := shouldIncludeClosingLine(firstLine, suffix)

	cutoff := len(lines)
	for i, line := range lines {
		if i == 0 || text.IsBlank(line) || cfg.BlockElseTest.MatchString(line) {
			continue
		}

		indent := text.Indentation(line)
		if indent > startIndent || (hasEmptyCompletionLine && indent == startIndent) {
			continue
		}

		cutoff = i
		if includeClosingLine && cfg.BlockEnd != "" && strings.HasPrefix(strings.TrimSpace(line), cfg.BlockEnd) {
			cutoff = i + 1
		}
		break
	}

	return strings.Join(lines[:cutoff], "\n")
}

// shouldIncludeClosingLine reports whether a completion line closing the
// block is kept: either the first line opens a bracket that the suffix
// starts by closing, or the suffix continues at a shallower indentation.
func shouldIncludeClosingLine(firstLine, suffix string) bool {
	if m := openingBracketRegex.FindStringSubmatch(firstLine); m != nil &&
		strings.HasPrefix(suffix, bracketPairs[m[1]]) {
		return true
	}
	return text.Indentation(text.NextNonEmptyLine(suffix)) < text.Indentation(firstLine)
}

// ensureSameOrLargerIndentation rescales the completion's indentation to
// tabSize when the model indented with a smaller unit. Lines whose leading
// spaces are not a multiple of the detected unit are left alone.
func ensureSameOrLargerIndentation(completion string, tabSize int) string {
	unit := text.DetectIndentUnit(completion)
	if unit == 0 || tabSize <= unit {
		return completion
	}

	lines := text.Lines(completion)
	for i, line := range lines {
		spaces := len(line) - len(strings.TrimLeft(line, " "))
		if spaces == 0 || spaces%unit != 0 {
			continue
		}
		lines[i] = strings.Repeat(" ", spaces/unit*tabSize) + line[spaces:]
	}
	return strings.Join(lines, "\n")
}
