package fim

import (
	"inlinecomplete/client/openai"
	"inlinecomplete/engine"
	"inlinecomplete/provider"
	"inlinecomplete/types"
)

// NewProvider creates a new fill-in-the-middle completion provider
func NewProvider(config *types.ProviderConfig) *provider.Provider {
	c := openai.NewClient(config.ProviderURL, config.CompletionPath, config.APIKey, config.RequestsPerSecond)
	state := provider.NewState()
	return &provider.Provider{
		Kind:      types.ProviderTypeFIM,
		Config:    config,
		Transport: provider.TransportFunc(c.Stream),
		Build:     buildRequest,
		Decode:    provider.DecodeTextDelta,
		State:     state,
		Observers: []provider.ErrorObserver{
			provider.StopSequenceObserver(state),
			provider.CancellationObserver,
		},
	}
}

// buildPrompt wraps the context in the configured FIM tokens
func buildPrompt(config *types.ProviderConfig, opts engine.RequestOptions) string {
	tokens := config.FIMTokens
	dc := opts.DocContext
	return tokens.Prefix + dc.Prefix + tokens.Suffix + dc.Suffix + tokens.Middle
}

func buildRequest(p *provider.Provider, opts engine.RequestOptions) (any, error) {
	return &openai.CompletionRequest{
		Model:       p.Config.ProviderModel,
		Prompt:      buildPrompt(p.Config, opts),
		Temperature: p.Config.ProviderTemperature,
		MaxTokens:   p.MaxTokens(opts.Multiline),
		Stop:        provider.StopSequences(opts.Multiline),
		N:           1,
		Echo:        false,
		Stream:      true,
	}, nil
}
