package postprocess

import (
	"sort"
	"strings"

	"inlinecomplete/docctx"
	"inlinecomplete/language"
	"inlinecomplete/logger"
	"inlinecomplete/oracle"
	"inlinecomplete/text"
	"inlinecomplete/truncate"
	"inlinecomplete/types"
)

const markdownFence = "```"

// Params describes the request the raw completions were generated for
type Params struct {
	DocContext docctx.DocumentContext
	LanguageID string
	Multiline  bool
	TabSize    int
	Oracle     oracle.Oracle // nil skips parse-error ranking
}

// Process turns the raw text of finished branches into ranked items
func Process(raws []string, p Params) []types.InlineCompletionItem {
	items := make([]types.InlineCompletionItem, 0, len(raws))
	for _, raw := range raws {
		items = append(items, Item(raw, p))
	}
	return Batch(items, p)
}

// Item cleans up the raw text of one branch so it can be inserted at the
// cursor without duplicating or corrupting the surrounding code.
func Item(raw string, p Params) types.InlineCompletionItem {
	dc := p.DocContext
	item := types.InlineCompletionItem{InsertText: raw}

	// overwrite the rest of the line instead of duplicating it
	if dc.CurrentLineSuffix != "" {
		item.Range = &types.Range{Start: dc.Position, End: dc.Position + len(dc.CurrentLineSuffix)}
	}

	completion := raw
	if p.LanguageID != "markdown" {
		completion = cutAtMarkdownFence(completion)
	}
	if p.Multiline {
		completion = truncate.NormalizeStartLine(completion, dc.Prefix)
		completion = truncate.Multiline(completion, dc.Prefix, dc.Suffix, p.LanguageID, p.TabSize)
		completion = text.TrimTrailingWhitespacePerLine(completion)
	} else {
		completion = text.FirstLine(completion)
	}

	completion = trimUntilSuffix(completion, dc.Prefix, dc.Suffix, p.LanguageID)
	completion = collapseDuplicativeWhitespace(dc.Prefix, completion)
	item.InsertText = strings.TrimRight(completion, " \t\r\n")
	return item
}

// Batch drops empty and duplicate items and ranks the rest: items that
// parse cleanly first, then longer ones. The order is otherwise stable.
func Batch(items []types.InlineCompletionItem, p Params) []types.InlineCompletionItem {
	type ranked struct {
		item           types.InlineCompletionItem
		hasParseErrors bool
		lines          int
	}

	seen := make(map[string]bool, len(items))
	var out []ranked
	for _, item := range items {
		if text.IsBlank(item.InsertText) || seen[item.InsertText] {
			continue
		}
		seen[item.InsertText] = true
		out = append(out, ranked{
			item:           item,
			hasParseErrors: hasParseErrors(item, p),
			lines:          strings.Count(item.InsertText, "\n") + 1,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].hasParseErrors != out[j].hasParseErrors {
			return !out[i].hasParseErrors
		}
		return out[i].lines > out[j].lines
	})

	result := make([]types.InlineCompletionItem, len(out))
	for i, r := range out {
		result[i] = r.item
	}
	return result
}

// hasParseErrors asks the oracle about the document with item inserted
func hasParseErrors(item types.InlineCompletionItem, p Params) bool {
	if p.Oracle == nil {
		return false
	}
	dc := p.DocContext
	after := dc.Suffix
	if r := item.Range; r != nil {
		after = after[min(max(r.End-r.Start, 0), len(after)):]
	}
	start := len(dc.Prefix)
	end := start + len(item.InsertText)
	doc := dc.Prefix + item.InsertText + after

	hasErrors := p.Oracle.HasParseErrorInSpan(p.LanguageID, doc, start, end)
	if hasErrors {
		logger.Debug("postprocess: parse error in %q", item.InsertText)
	}
	return hasErrors
}

// trimUntilSuffix drops the first completion line that repeats the first
// non-empty line of the suffix, and everything after it.
func trimUntilSuffix(completion, prefix, suffix, languageID string) string {
	completion = strings.TrimRight(completion, " \t\r\n")

	suffixLine := text.FirstNonEmptyLine(suffix)
	if suffixLine == "" {
		return completion
	}

	cfg := language.Get(languageID)
	currentLine := text.LastLine(prefix)
	suffixIndent := text.Indentation(suffixLine)
	startIndent := text.Indentation(currentLine)
	hasEmptyCompletionLine := text.IsBlank(currentLine)

	lines := text.Lines(completion)
	cutoff := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if line == "" {
			continue
		}
		if i == 0 {
			line = currentLine + line
		}
		indent := text.Indentation(line)

		if hasEmptyCompletionLine && cfg != nil && cfg.BlockEnd != "" &&
			strings.HasPrefix(strings.TrimSpace(line), cfg.BlockEnd) &&
			indent == startIndent && len(lines) == 1 {
			cutoff = i
			break
		}
		if indent <= suffixIndent && text.AlmostEqual(line, suffixLine) {
			cutoff = i
		}
	}
	return strings.Join(lines[:cutoff], "\n")
}

// collapseDuplicativeWhitespace avoids a doubled seam when the prefix
// already ends in whitespace
func collapseDuplicativeWhitespace(prefix, completion string) string {
	if strings.HasSuffix(prefix, " ") || strings.HasSuffix(prefix, "\t") {
		return strings.TrimLeft(completion, " \t")
	}
	return completion
}

// cutAtMarkdownFence drops a closing code fence some models append, along
// with everything after it
func cutAtMarkdownFence(completion string) string {
	lines := text.Lines(completion)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), markdownFence) {
			return strings.Join(lines[:i], "\n")
		}
	}
	return completion
}
