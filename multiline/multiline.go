package multiline

import (
	"regexp"
	"strings"

	"inlinecomplete/docctx"
	"inlinecomplete/language"
	"inlinecomplete/text"
)

var (
	openingBracketRegex  = regexp.MustCompile(`([(\[{])$`)
	invocationRegex      = regexp.MustCompile(`\b[^()]+\((.*)\)$`)
	functionKeywordRegex = regexp.MustCompile(`^(function|def|fn|func)`)
)

// Detect decides whether the cursor described by dc should get a multi-line
// completion. When it should, seed is the token that triggered the decision
// (the opening bracket or the language's block start).
func Detect(dc docctx.DocumentContext, languageID string, extendedTriggers bool) (seed string, ok bool) {
	cfg := language.Get(languageID)
	if cfg == nil {
		return "", false
	}

	if m := openingBracketRegex.FindStringSubmatch(dc.CurrentLinePrefix); extendedTriggers && m != nil {
		return m[1], true
	}

	checkInvocation := dc.CurrentLinePrefix
	if !text.IsBlank(dc.CurrentLineSuffix) {
		checkInvocation += dc.CurrentLineSuffix
	}
	if invocationRegex.MatchString(checkInvocation) &&
		!functionKeywordRegex.MatchString(strings.TrimSpace(dc.CurrentLinePrefix)) {
		return "", false
	}

	if m := openingBracketRegex.FindStringSubmatch(dc.CurrentLinePrefix); m != nil &&
		text.Indentation(dc.CurrentLinePrefix) >= text.Indentation(dc.NextNonEmptyLine) {
		return m[1], true
	}

	if isEmptyBlockStart(dc, cfg) {
		return cfg.BlockStart, true
	}
	return "", false
}

// isEmptyBlockStart matches a blank line right after a freshly opened block
// whose body is still empty, e.g. the cursor below "if x:" in Python.
func isEmptyBlockStart(dc docctx.DocumentContext, cfg *language.Config) bool {
	if !text.IsBlank(dc.CurrentLinePrefix) || !text.IsBlank(dc.CurrentLineSuffix) {
		return false
	}
	if !strings.HasSuffix(strings.TrimRight(dc.Prefix, " \t\n"), cfg.BlockStart) {
		return false
	}
	prevIndent := text.Indentation(dc.PrevNonEmptyLine)
	return prevIndent < text.Indentation(dc.CurrentLinePrefix) &&
		prevIndent >= text.Indentation(dc.NextNonEmptyLine)
}
