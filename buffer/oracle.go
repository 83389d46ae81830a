package buffer

import (
	"inlinecomplete/logger"
	"inlinecomplete/oracle"

	"github.com/neovim/go-client/nvim"
)

// parseErrorsLua parses a string with the treesitter grammar for a language
// id and returns the byte ranges of ERROR and MISSING nodes. lang is empty
// when no parser is installed.
const parseErrorsLua = `
local text, ft = ...
local lang = vim.treesitter.language.get_lang(ft) or ft
local ok, parser = pcall(vim.treesitter.get_string_parser, text, lang)
if not ok or not parser then return { lang = "" } end
local root = parser:parse()[1]:root()
local errors = {}
local function visit(node)
  if node:type() == "ERROR" or node:missing() then
    local _, _, s = node:start()
    local _, _, e = node:end_()
    table.insert(errors, { start = s, ["end"] = e })
    return
  end
  for child in node:iter_children() do
    if child:has_error() or child:missing() then visit(child) end
  end
end
if root:has_error() then visit(root) end
return { lang = lang, errors = errors }
`

// TreesitterOracle asks the connected Neovim's treesitter parsers whether a
// candidate completion breaks the document. Languages without an installed
// parser go to Fallback.
type TreesitterOracle struct {
	client   *nvim.Nvim
	Fallback oracle.Oracle
}

func NewTreesitterOracle(client *nvim.Nvim, fallback oracle.Oracle) *TreesitterOracle {
	return &TreesitterOracle{client: client, Fallback: fallback}
}

func (o *TreesitterOracle) HasParseErrorInSpan(languageID, text string, start, end int) bool {
	ranges, ok := o.parseErrors(languageID, text)
	if !ok {
		if o.Fallback == nil {
			return false
		}
		return o.Fallback.HasParseErrorInSpan(languageID, text, start, end)
	}
	return overlaps(withoutEOF(ranges, len(text)), start, end)
}

// withoutEOF drops errors that only say the text ended inside an open
// construct, which a clipped suffix always does
func withoutEOF(ranges [][2]int, size int) [][2]int {
	out := ranges[:0:0]
	for _, r := range ranges {
		if r[0] < size {
			out = append(out, r)
		}
	}
	return out
}

func (o *TreesitterOracle) parseErrors(languageID, text string) ([][2]int, bool) {
	if o.client == nil || languageID == "" {
		return nil, false
	}
	defer logger.Trace("buffer.parseErrors")()

	var result map[string]any
	batch := o.client.NewBatch()
	batch.ExecLua(parseErrorsLua, &result, text, languageID)
	if err := batch.Execute(); err != nil {
		logger.Error("error running treesitter parse: %v", err)
		return nil, false
	}
	return decodeParseErrors(result)
}

func decodeParseErrors(result map[string]any) ([][2]int, bool) {
	if getString(result, "lang") == "" {
		return nil, false
	}
	var ranges [][2]int
	if errs, ok := result["errors"].([]any); ok {
		for _, e := range errs {
			if m, ok := e.(map[string]any); ok {
				ranges = append(ranges, [2]int{getNumber(m, "start"), getNumber(m, "end")})
			}
		}
	}
	return ranges, true
}

// overlaps reports whether any error range touches [start, end]. A
// zero-width MISSING node right at the end of the span counts.
func overlaps(ranges [][2]int, start, end int) bool {
	for _, r := range ranges {
		if r[0] <= end && r[1] >= start {
			return true
		}
	}
	return false
}
