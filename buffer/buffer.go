package buffer

import (
	"fmt"
	"path/filepath"
	"strings"

	"inlinecomplete/docctx"
	"inlinecomplete/engine"
	"inlinecomplete/logger"
	"inlinecomplete/types"

	"github.com/neovim/go-client/nvim"
)

// filetypeLanguages maps Neovim filetypes to language ids where they differ
var filetypeLanguages = map[string]string{
	"sh":   "shellscript",
	"bash": "shellscript",
	"zsh":  "shellscript",
	"cs":   "csharp",
}

type NvimBuffer struct {
	client *nvim.Nvim // stored internally, set via SetClient

	// Private state
	lines    []string
	row      int // 1-indexed
	col      int // 0-indexed byte column
	absPath  string
	filetype string
	id       nvim.Buffer
	selected string // word highlighted in the native completion popup
}

// Item is a completion item in the shape the Lua side applies with
// nvim_buf_set_text: 0-indexed rows and byte columns, end exclusive.
type Item struct {
	InsertText string `msgpack:"insert_text"`
	StartRow   int    `msgpack:"start_row"`
	StartCol   int    `msgpack:"start_col"`
	EndRow     int    `msgpack:"end_row"`
	EndCol     int    `msgpack:"end_col"`
}

func New() *NvimBuffer {
	return &NvimBuffer{
		lines: []string{},
		row:   1,
		col:   0,
		id:    nvim.Buffer(0),
	}
}

// SetClient stores the nvim client for all buffer operations
func (b *NvimBuffer) SetClient(n *nvim.Nvim) {
	b.client = n
}

// Sync reads current state from the editor
func (b *NvimBuffer) Sync() error {
	defer logger.Trace("buffer.Sync")()
	if b.client == nil {
		return fmt.Errorf("nvim client not set")
	}

	// Use batch API to make all calls in a single round-trip
	batch := b.client.NewBatch()

	var currentBuf nvim.Buffer
	var path string
	var lines [][]byte
	var cursor [2]int
	var nvimCwd string
	var filetype string
	var changedtick int
	var selected string

	batch.CurrentBuffer(&currentBuf)
	batch.BufferName(nvim.Buffer(0), &path) // Use 0 for current buffer
	batch.BufferLines(nvim.Buffer(0), 0, -1, false, &lines)
	batch.WindowCursor(nvim.Window(0), &cursor) // Use 0 for current window
	batch.ExecLua(`return vim.fn.getcwd()`, &nvimCwd, nil)
	batch.ExecLua(`return vim.bo.filetype`, &filetype, nil)
	batch.ExecLua(`return vim.b.changedtick`, &changedtick, nil)

	// Word under the native completion popup's selection, if any
	batch.ExecLua(`
		if vim.fn.pumvisible() == 0 then return "" end
		local info = vim.fn.complete_info({ "selected", "items" })
		local item = info.items[(info.selected or -1) + 1]
		return item and item.word or ""
	`, &selected, nil)

	if err := batch.Execute(); err != nil {
		logger.Error("error executing sync batch: %v", err)
		return err
	}

	linesStr := make([]string, len(lines))
	for i, line := range lines {
		linesStr[i] = string(line)
	}

	if b.id != currentBuf {
		logger.Debug("buffer: switched to %s (tick %d)", makeRelativeToWorkspace(path, nvimCwd), changedtick)
	}

	b.lines = linesStr
	b.row = cursor[0] // Line (vertical position, 1-based in nvim cursor)
	b.col = cursor[1] // Column (horizontal position, 0-based in nvim cursor)
	b.absPath = path
	b.filetype = filetype
	b.selected = selected
	b.id = currentBuf
	return nil
}

// Request describes the synced buffer and cursor as a completion request
func (b *NvimBuffer) Request() engine.Request {
	text := strings.Join(b.lines, "\n")
	offset := CursorToByteOffset(b.lines, b.row, b.col)

	return engine.Request{
		DocumentURI: b.documentURI(),
		LanguageID:  FiletypeToLanguage(b.filetype),
		Text:        text,
		Offset:      offset,
		Selected:    selectedCompletion(text, offset, b.selected),
	}
}

func (b *NvimBuffer) documentURI() string {
	if b.absPath == "" {
		return fmt.Sprintf("untitled:%d", int(b.id))
	}
	return "file://" + filepath.ToSlash(b.absPath)
}

// Items converts ranked completion items to editor positions within text
func Items(text string, offset int, items []types.InlineCompletionItem) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		start, end := offset, offset
		if r := item.Range; r != nil {
			start, end = r.Start, r.End
		}
		startRow, startCol := ByteOffsetToRowCol(text, start)
		endRow, endCol := ByteOffsetToRowCol(text, end)
		out = append(out, Item{
			InsertText: item.InsertText,
			StartRow:   startRow - 1,
			StartCol:   startCol,
			EndRow:     endRow - 1,
			EndCol:     endCol,
		})
	}
	return out
}

// RegisterEventHandler registers a handler for nvim RPC events
func (b *NvimBuffer) RegisterEventHandler(handler func(event string)) error {
	if b.client == nil {
		return fmt.Errorf("nvim client not set")
	}
	return b.client.RegisterHandler("inlinecomplete_event", func(_ *nvim.Nvim, event string) {
		handler(event)
	})
}

// FiletypeToLanguage maps a Neovim filetype to a language id. An empty
// filetype yields "", leaving detection to the file name.
func FiletypeToLanguage(filetype string) string {
	if id, ok := filetypeLanguages[filetype]; ok {
		return id
	}
	return filetype
}

// CursorToByteOffset converts a 1-indexed row and 0-indexed byte column to
// an offset into the lines joined with "\n".
func CursorToByteOffset(lines []string, row, col int) int {
	offset := 0
	for i := 0; i < row-1 && i < len(lines); i++ {
		offset += len(lines[i]) + 1 // +1 for newline
	}
	if row >= 1 && row <= len(lines) {
		offset += min(max(col, 0), len(lines[row-1]))
	}
	return offset
}

// ByteOffsetToRowCol converts a byte offset to a position.
// Returns (row, col) where row is 1-indexed and col is a 0-indexed byte column.
func ByteOffsetToRowCol(text string, offset int) (row, col int) {
	offset = min(max(offset, 0), len(text))
	before := text[:offset]
	row = strings.Count(before, "\n") + 1
	col = len(before) - (strings.LastIndex(before, "\n") + 1)
	return row, col
}

// selectedCompletion places the popup's selected word over the keyword
// being typed before the cursor
func selectedCompletion(text string, offset int, word string) *docctx.SelectedCompletion {
	if word == "" {
		return nil
	}
	start := offset
	for start > 0 && isKeywordByte(text[start-1]) {
		start--
	}
	return &docctx.SelectedCompletion{Start: start, Text: word}
}

func isKeywordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// Helper function to convert absolute path to relative workspace path
func makeRelativeToWorkspace(absolutePath, workspacePath string) string {
	if absolutePath == "" {
		return ""
	}
	absolutePath = filepath.Clean(absolutePath)
	workspacePath = filepath.Clean(workspacePath)

	// If the file is within the workspace, make it relative
	if relativePath, found := strings.CutPrefix(absolutePath, workspacePath); found {
		relativePath = strings.TrimPrefix(relativePath, string(filepath.Separator))
		return relativePath
	}

	return absolutePath
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getNumber(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return -1
}
