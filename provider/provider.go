package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"inlinecomplete/engine"
	"inlinecomplete/logger"
	"inlinecomplete/stream"
	"inlinecomplete/types"
)

// Compile-time check that Provider implements engine.Provider
var _ engine.Provider = (*Provider)(nil)

// Transport posts an encoded request and returns the event-stream body
// (enables mocking in tests)
type Transport interface {
	Stream(ctx context.Context, payload []byte) (io.ReadCloser, error)
}

// TransportFunc adapts a function to a Transport
type TransportFunc func(ctx context.Context, payload []byte) (io.ReadCloser, error)

func (f TransportFunc) Stream(ctx context.Context, payload []byte) (io.ReadCloser, error) {
	return f(ctx, payload)
}

// RequestBuilder builds the request body for one completion
type RequestBuilder func(p *Provider, opts engine.RequestOptions) (any, error)

// Provider implements engine.Provider with a configurable pipeline. The
// variants in fim, inline and gateway differ in their request builder,
// decoder and transport.
type Provider struct {
	Kind      types.ProviderType
	Config    *types.ProviderConfig
	Transport Transport
	Build     RequestBuilder
	Decode    Decoder
	Aggregate bool // coalesce completion frames (cumulative backends only)

	// State holds what this instance learned from earlier responses
	State *State
	// Observers inspect every error before it reaches the engine
	Observers []ErrorObserver
}

// Name implements engine.Provider
func (p *Provider) Name() string {
	return string(p.Kind)
}

// BuildRequest implements engine.Provider
func (p *Provider) BuildRequest(opts engine.RequestOptions) (engine.Payload, error) {
	body, err := p.Build(p, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}

	// Marshal the request without HTML escaping
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(body); err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request: %w", p.Name(), err)
	}

	p.logRequest(opts, buf.Len())
	return engine.Payload(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Generate implements engine.Provider. Every call is one branch: the same
// payload may be generated several times in parallel.
func (p *Provider) Generate(ctx context.Context, payload engine.Payload) (stream.Stream[types.PartialCompletion], error) {
	body := p.State.Apply(payload)

	rc, err := p.Transport.Stream(ctx, body)
	if err != nil {
		if err := p.observe(err); err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
		return stream.FromSlice[types.PartialCompletion](nil), nil
	}

	return &observed{
		s:       Pump(ctx, rc, p.Aggregate, p.Decode),
		observe: p.observe,
	}, nil
}

func (p *Provider) observe(err error) error {
	return Observe(err, p.Observers...)
}

func (p *Provider) logRequest(opts engine.RequestOptions, size int) {
	logger.Debug("%s provider request:\n  URL: %s%s\n  Model: %s\n  Language: %s\n  Multiline: %v\n  Seed: %q\n  Prefix length: %d chars\n  Suffix length: %d chars\n  Payload size: %d bytes",
		p.Name(),
		p.Config.ProviderURL,
		p.Config.CompletionPath,
		p.Config.ProviderModel,
		opts.LanguageID,
		opts.Multiline,
		opts.Seed,
		len(opts.DocContext.Prefix),
		len(opts.DocContext.Suffix),
		size)
}

// MaxTokens picks the token budget for a request
func (p *Provider) MaxTokens(multiline bool) int {
	if multiline && p.Config.MultilineMaxTokens > 0 {
		return p.Config.MultilineMaxTokens
	}
	return p.Config.ProviderMaxTokens
}

// StopSequences returns the stop sequences for a single- or multi-line request
func StopSequences(multiline bool) []string {
	if multiline {
		return []string{"\n\n", "\n\r\n"}
	}
	return []string{"\n"}
}

// observed passes stream errors through the provider's observers. An error
// an observer handles ends the stream quietly.
type observed struct {
	s       stream.Stream[types.PartialCompletion]
	observe func(error) error
}

func (o *observed) Next(ctx context.Context) (types.PartialCompletion, error) {
	v, err := o.s.Next(ctx)
	if err == nil || errors.Is(err, stream.Done) {
		return v, err
	}
	if err := o.observe(err); err != nil {
		return v, err
	}
	return v, stream.Done
}
