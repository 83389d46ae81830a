package gateway

import (
	gatewayclient "inlinecomplete/client/gateway"
	"inlinecomplete/engine"
	"inlinecomplete/provider"
	"inlinecomplete/types"
)

// Request is the body posted to the completion gateway
type Request struct {
	Model       string   `json:"model,omitempty"`
	Prefix      string   `json:"prefix"`
	Suffix      string   `json:"suffix"`
	LanguageID  string   `json:"languageId,omitempty"`
	Multiline   bool     `json:"multiline"`
	Trigger     string   `json:"trigger,omitempty"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"maxTokensToSample"`
	Stop        []string `json:"stop,omitempty"`
	TimeoutMs   int64    `json:"timeoutMs,omitempty"`
	Stream      bool     `json:"stream"`
}

// NewProvider creates a provider for a gateway that streams cumulative
// `completion` frames.
func NewProvider(config *types.ProviderConfig) *provider.Provider {
	c := gatewayclient.NewClient(config.ProviderURL+config.CompletionPath, config.APIKey, config.CompressRequests, config.RequestsPerSecond)
	state := provider.NewState()
	return &provider.Provider{
		Kind:      types.ProviderTypeGateway,
		Config:    config,
		Transport: c,
		Build:     buildRequest,
		Decode:    provider.DecodeCumulative,
		Aggregate: true,
		State:     state,
		Observers: []provider.ErrorObserver{
			provider.StopSequenceObserver(state),
			provider.CancellationObserver,
		},
	}
}

func buildRequest(p *provider.Provider, opts engine.RequestOptions) (any, error) {
	return &Request{
		Model:       p.Config.ProviderModel,
		Prefix:      opts.DocContext.Prefix,
		Suffix:      opts.DocContext.Suffix,
		LanguageID:  opts.LanguageID,
		Multiline:   opts.Multiline,
		Trigger:     opts.Seed,
		Temperature: p.Config.ProviderTemperature,
		MaxTokens:   p.MaxTokens(opts.Multiline),
		Stop:        provider.StopSequences(opts.Multiline),
		TimeoutMs:   opts.Timeout.Milliseconds(),
		Stream:      true,
	}, nil
}
