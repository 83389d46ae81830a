package language

import (
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// chromaNames maps chroma lexer names to editor language ids where they differ
var chromaNames = map[string]string{
	"C++":      "cpp",
	"C#":       "csharp",
	"TSX":      "typescriptreact",
	"react":    "javascriptreact",
	"Bash":     "shellscript",
	"Zsh":      "shellscript",
	"Python 2": "python",
}

// Detect guesses an editor language id from a file name. It returns "" when
// no lexer claims the file.
func Detect(filename string) string {
	lexer := lexers.Match(filename)
	if lexer == nil {
		return ""
	}
	name := lexer.Config().Name
	if id, ok := chromaNames[name]; ok {
		return id
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", ""))
}
