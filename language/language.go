package language

import (
	"regexp"
)

// Config holds the block syntax of a language, as used by the indentation
// heuristics of the multiline detector and the truncation engine.
type Config struct {
	BlockStart    string         // token that opens a block, e.g. "{" or ":"
	BlockElseTest *regexp.Regexp // continuation lines that do not close a block
	BlockEnd      string         // closing token, empty for indentation-only languages
	CommentStart  string
}

var braceConfig = &Config{
	BlockStart:    "{",
	BlockElseTest: regexp.MustCompile(`^[\t ]*} else`),
	BlockEnd:      "}",
	CommentStart:  "// ",
}

var configs = map[string]*Config{
	"astro":           braceConfig,
	"c":               braceConfig,
	"cpp":             braceConfig,
	"csharp":          braceConfig,
	"dart":            braceConfig,
	"go":              braceConfig,
	"java":            braceConfig,
	"javascript":      braceConfig,
	"javascriptreact": braceConfig,
	"kotlin":          braceConfig,
	"php":             braceConfig,
	"rust":            braceConfig,
	"svelte":          braceConfig,
	"swift":           braceConfig,
	"typescript":      braceConfig,
	"typescriptreact": braceConfig,
	"vue":             braceConfig,
	"python": {
		BlockStart:    ":",
		BlockElseTest: regexp.MustCompile(`^[\t ]*(elif |else:)`),
		CommentStart:  "# ",
	},
	"elixir": {
		BlockStart:    "do",
		BlockElseTest: regexp.MustCompile(`^[\t ]*(else|else do)`),
		BlockEnd:      "end",
		CommentStart:  "# ",
	},
}

// Get returns the block syntax for a language id, or nil when the language
// is not supported. Unsupported languages never get multi-line completions.
func Get(languageID string) *Config {
	return configs[languageID]
}
