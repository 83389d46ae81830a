package oracle

import (
	"errors"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"
)

const syntheticPackage = "package p\n"

// GoErrors parses text as a Go file. A window that starts below the package
// clause gets a synthetic one; offsets are reported in text's coordinates.
func GoErrors(text string) []int {
	shift := 0
	src := text
	if !hasPackageClause(text) {
		src = syntheticPackage + text
		shift = len(syntheticPackage)
	}

	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "", src, parser.AllErrors|parser.SkipObjectResolution)
	if err == nil {
		return nil
	}

	var list scanner.ErrorList
	if !errors.As(err, &list) {
		return nil
	}
	offsets := make([]int, 0, len(list))
	for _, e := range list {
		if off := e.Pos.Offset - shift; off >= 0 {
			offsets = append(offsets, off)
		}
	}
	return offsets
}

func hasPackageClause(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		return strings.HasPrefix(line, "package ")
	}
	return false
}
