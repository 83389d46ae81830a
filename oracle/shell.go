package oracle

import (
	"errors"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ShellErrors parses text as a bash script. The parser stops at the first
// error, so at most one offset is returned.
func ShellErrors(text string) []int {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	_, err := parser.Parse(strings.NewReader(text), "")
	if err == nil {
		return nil
	}

	var perr syntax.ParseError
	if errors.As(err, &perr) {
		return []int{int(perr.Pos.Offset())}
	}
	var lerr syntax.LangError
	if errors.As(err, &lerr) {
		return []int{int(lerr.Pos.Offset())}
	}
	return nil
}
