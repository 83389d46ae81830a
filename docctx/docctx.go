package docctx

import (
	"strings"

	"inlinecomplete/text"
)

// SelectedCompletion is the item currently highlighted in the editor's own
// completion popup. Its text replaces the buffer from Start up to the cursor.
type SelectedCompletion struct {
	Start int // byte offset in the buffer
	Text  string
}

// Params describes the buffer and cursor to build a context for
type Params struct {
	Text           string
	Offset         int // cursor byte offset into Text
	MaxPrefixChars int // 0 = no limit
	MaxSuffixChars int // 0 = no limit
	Selected       *SelectedCompletion
}

// DocumentContext is the bounded text window around the cursor.
// Prefix always starts and Suffix always ends on a line boundary.
type DocumentContext struct {
	Position          int // cursor byte offset in the buffer
	Prefix            string
	Suffix            string
	CurrentLinePrefix string
	CurrentLineSuffix string
	PrevNonEmptyLine  string
	NextNonEmptyLine  string
}

// Get builds the document context for the cursor described by p
func Get(p Params) DocumentContext {
	offset := min(max(p.Offset, 0), len(p.Text))

	prefix := p.Text[:offset]
	if sel := p.Selected; sel != nil && sel.Start >= 0 && sel.Start <= offset {
		prefix = p.Text[:sel.Start] + sel.Text
	}
	suffix := p.Text[offset:]

	prefix = clipPrefix(prefix, p.MaxPrefixChars)
	suffix = clipSuffix(suffix, p.MaxSuffixChars)

	return Derive(offset, prefix, suffix)
}

// Derive computes the line metadata for an already bounded prefix and suffix
func Derive(position int, prefix, suffix string) DocumentContext {
	prefixLines := text.Lines(prefix)
	suffixLines := text.Lines(suffix)

	dc := DocumentContext{
		Position:          position,
		Prefix:            prefix,
		Suffix:            suffix,
		CurrentLinePrefix: prefixLines[len(prefixLines)-1],
		CurrentLineSuffix: suffixLines[0],
	}

	for i := len(prefixLines) - 2; i >= 0; i-- {
		if !text.IsBlank(prefixLines[i]) {
			dc.PrevNonEmptyLine = prefixLines[i]
			break
		}
	}
	for _, line := range suffixLines[1:] {
		if !text.IsBlank(line) {
			dc.NextNonEmptyLine = line
			break
		}
	}
	return dc
}

// HasWordAfterCursor reports whether the rest of the current line holds a
// word character. Completions are only requested when it does not.
func (dc DocumentContext) HasWordAfterCursor() bool {
	return text.HasWordChar(dc.CurrentLineSuffix)
}

// clipPrefix keeps whole lines from the end of prefix while they fit in budget
func clipPrefix(prefix string, budget int) string {
	if budget <= 0 || len(prefix) <= budget {
		return prefix
	}

	lines := text.Lines(prefix)
	total := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		cost := len(lines[i])
		if i < len(lines)-1 {
			cost++ // joining newline
		}
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}
	return strings.Join(lines[start:], "\n")
}

// clipSuffix keeps whole lines from the start of suffix while they fit in budget
func clipSuffix(suffix string, budget int) string {
	if budget <= 0 || len(suffix) <= budget {
		return suffix
	}

	lines := text.Lines(suffix)
	total := 0
	end := 0
	for i, line := range lines {
		cost := len(line)
		if i > 0 {
			cost++
		}
		if total+cost > budget {
			break
		}
		total += cost
		end = i + 1
	}
	return strings.Join(lines[:end], "\n")
}
