package inline

import (
	"inlinecomplete/client/openai"
	"inlinecomplete/engine"
	"inlinecomplete/provider"
	"inlinecomplete/types"
)

// NewProvider creates a new inline completion provider. The model only sees
// the text before the cursor.
func NewProvider(config *types.ProviderConfig) *provider.Provider {
	c := openai.NewClient(config.ProviderURL, config.CompletionPath, config.APIKey, config.RequestsPerSecond)
	state := provider.NewState()
	return &provider.Provider{
		Kind:      types.ProviderTypeInline,
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

func buildRequest(p *provider.Provider, opts engine.RequestOptions) (any, error) {
	return &openai.CompletionRequest{
		Model:       p.Config.ProviderModel,
		Prompt:      opts.DocContext.Prefix,
		Temperature: p.Config.ProviderTemperature,
		MaxTokens:   p.MaxTokens(opts.Multiline),
		Stop:        provider.StopSequences(opts.Multiline),
		N:           1,
		Echo:        false,
		Stream:      true,
	}, nil
}
