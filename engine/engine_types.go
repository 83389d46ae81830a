package engine

import (
	"context"
	"time"

	"inlinecomplete/docctx"
	"inlinecomplete/stream"
	"inlinecomplete/types"
)

// Payload is a provider-specific wire request, JSON encoded. The engine
// never looks inside it.
type Payload []byte

// RequestOptions is what a provider needs to build one request
type RequestOptions struct {
	DocContext docctx.DocumentContext
	LanguageID string
	Multiline  bool
	Seed       string        // token that triggered a multi-line request
	Timeout    time.Duration // total generation bound sent to the backend (0 = none)
}

// Provider defines the interface that all completion backends implement.
// Implemented by provider.Provider (fim, inline and gateway variants).
type Provider interface {
	Name() string
	BuildRequest(opts RequestOptions) (Payload, error)
	// Generate starts one branch. The stream yields cumulative snapshots and
	// ends with a request-finished or request-aborted value. Cancelling ctx
	// aborts the branch.
	Generate(ctx context.Context, payload Payload) (stream.Stream[types.PartialCompletion], error)
}

// Request is one completion request from the editor
type Request struct {
	DocumentURI string
	LanguageID  string // detected from DocumentURI when empty
	Text        string
	Offset      int // cursor byte offset into Text
	Selected    *docctx.SelectedCompletion
}

// Result is the ranked output of one completion request
type Result struct {
	ID        string
	Items     []types.InlineCompletionItem
	Multiline bool
}

// Config holds the engine tunables
type Config struct {
	N                 int           // parallel branches per request
	FirstTokenTimeout time.Duration // per-branch bound on the first value (0 = none)
	GenerationTimeout time.Duration // total bound sent to the backend
	MaxPrefixChars    int
	MaxSuffixChars    int
	TabSize           int
	ExtendedTriggers  bool
	CacheTTL          time.Duration
	CacheCapacity     uint64
}

// DefaultConfig returns the tunables used when none are configured
func DefaultConfig() Config {
	return Config{
		N:                 1,
		FirstTokenTimeout: 5 * time.Second,
		GenerationTimeout: 7 * time.Second,
		MaxPrefixChars:    6000,
		MaxSuffixChars:    2000,
		TabSize:           4,
		CacheTTL:          time.Minute,
		CacheCapacity:     500,
	}
}
