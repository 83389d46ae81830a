package engine

import (
	"context"
	"sync"
	"time"

	"inlinecomplete/stream"
	"inlinecomplete/types"
)

// --- Mock implementations ---

// generateFunc produces one branch. call counts Generate calls from 0.
type generateFunc func(ctx context.Context, call int) (stream.Stream[types.PartialCompletion], error)

// mockProvider implements the Provider interface for testing
type mockProvider struct {
	mu       sync.Mutex
	generate generateFunc

	// Track method calls
	builds    []RequestOptions
	generates int
	contexts  []context.Context
}

func newMockProvider(generate generateFunc) *mockProvider {
	return &mockProvider{generate: generate}
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) BuildRequest(opts RequestOptions) (Payload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.builds = append(p.builds, opts)
	return Payload(`{"prompt":"` + opts.DocContext.Prefix + `"}`), nil
}

func (p *mockProvider) Generate(ctx context.Context, payload Payload) (stream.Stream[types.PartialCompletion], error) {
	p.mu.Lock()
	call := p.generates
	p.generates++
	p.contexts = append(p.contexts, ctx)
	p.mu.Unlock()
	return p.generate(ctx, call)
}

func (p *mockProvider) generateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generates
}

func (p *mockProvider) lastBuild() RequestOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builds[len(p.builds)-1]
}

// --- Branch helpers ---

// completes streams text in two chunks and finishes
func completes(text string) stream.Stream[types.PartialCompletion] {
	half := len(text) / 2
	return stream.FromSlice([]types.PartialCompletion{
		{Completion: text[:half], StopReason: types.StopReasonStreamingChunk},
		{Completion: text, StopReason: types.StopReasonStreamingChunk},
		{Completion: text, StopReason: types.StopReasonRequestFinished},
	})
}

// hangs yields partial once, if set, then blocks until the branch is
// cancelled and reports it as aborted
func hangs(partial string) stream.Stream[types.PartialCompletion] {
	sent := partial == ""
	done := false
	return stream.Func[types.PartialCompletion](func(ctx context.Context) (types.PartialCompletion, error) {
		if done {
			return types.PartialCompletion{}, stream.Done
		}
		if !sent {
			sent = true
			return types.PartialCompletion{Completion: partial, StopReason: types.StopReasonStreamingChunk}, nil
		}
		<-ctx.Done()
		done = true
		return types.PartialCompletion{Completion: partial, StopReason: types.StopReasonRequestAborted}, nil
	})
}

// fails returns a branch whose first poll fails with err
func fails(err error) stream.Stream[types.PartialCompletion] {
	return stream.Func[types.PartialCompletion](func(context.Context) (types.PartialCompletion, error) {
		return types.PartialCompletion{}, err
	})
}

// byCall serves the branches in order of Generate calls
func byCall(branches ...func() stream.Stream[types.PartialCompletion]) generateFunc {
	return func(ctx context.Context, call int) (stream.Stream[types.PartialCompletion], error) {
		return branches[call%len(branches)](), nil
	}
}

func always(text string) generateFunc {
	return byCall(func() stream.Stream[types.PartialCompletion] { return completes(text) })
}

func testConfig() Config {
	config := DefaultConfig()
	config.FirstTokenTimeout = time.Second
	return config
}
