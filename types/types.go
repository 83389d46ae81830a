package types

// StopReason tells why a partial completion was emitted
type StopReason string

const (
	StopReasonStreamingChunk  StopReason = "streaming-chunk"
	StopReasonRequestFinished StopReason = "request-finished"
	StopReasonRequestAborted  StopReason = "request-aborted"
)

// PartialCompletion is the cumulative text of one streaming branch so far.
// Each value handed to a consumer is a snapshot; the producing branch keeps
// the only mutable copy.
type PartialCompletion struct {
	Completion string
	StopReason StopReason
}

// Finished reports whether no further values follow this one
func (p PartialCompletion) Finished() bool {
	return p.StopReason == StopReasonRequestFinished || p.StopReason == StopReasonRequestAborted
}

// Range is a byte range in the buffer, End exclusive
type Range struct {
	Start int
	End   int
}

// InlineCompletionItem is a post-processed completion ready for insertion at
// the cursor. Range is set when the insertion must overwrite existing text.
type InlineCompletionItem struct {
	InsertText string `json:"insertText"`
	Range      *Range `json:"range,omitempty"`
}

// ProviderType represents the type of provider
type ProviderType string

const (
	ProviderTypeInline  ProviderType = "inline"
	ProviderTypeFIM     ProviderType = "fim"
	ProviderTypeGateway ProviderType = "gateway"
)

// FIMTokenConfig holds FIM (Fill-in-the-Middle) token configuration
type FIMTokenConfig struct {
	Prefix string // Token before the prefix content (e.g., "<|fim_prefix|>")
	Suffix string // Token before the suffix content (e.g., "<|fim_suffix|>")
	Middle string // Token before the middle/completion (e.g., "<|fim_middle|>")
}

// ProviderConfig holds configuration for providers
type ProviderConfig struct {
	ProviderURL         string         // URL of the provider server (e.g., "http://localhost:8000")
	APIKey              string         // Resolved API key for authenticated requests
	ProviderModel       string         // Model name
	ProviderTemperature float64        // Sampling temperature
	ProviderMaxTokens   int            // Max tokens to generate for a single-line request
	MultilineMaxTokens  int            // Max tokens to generate for a multi-line request
	CompletionPath      string         // API endpoint path (e.g., "/v1/completions")
	FIMTokens           FIMTokenConfig // FIM tokens configuration
	RequestsPerSecond   float64        // Client-side request pacing (0 = unlimited)
	CompressRequests    bool           // Brotli-compress request bodies (gateway only)
}
