package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"inlinecomplete/docctx"
	"inlinecomplete/language"
	"inlinecomplete/logger"
	"inlinecomplete/multiline"
	"inlinecomplete/oracle"
	"inlinecomplete/postprocess"
	"inlinecomplete/stream"
	"inlinecomplete/types"

	"github.com/google/uuid"
)

// Engine turns completion requests into ranked inline completion items
type Engine struct {
	provider Provider
	oracle   oracle.Oracle

	mu     sync.RWMutex
	config Config
	cache  *Coordinator
}

// New creates an engine generating with provider. oracle may be nil, in
// which case items are ranked by length only.
func New(provider Provider, o oracle.Oracle, config Config) *Engine {
	config = normalize(config)
	return &Engine{
		provider: provider,
		oracle:   o,
		config:   config,
		cache:    NewCoordinator(config.CacheTTL, config.CacheCapacity),
	}
}

func normalize(config Config) Config {
	if config.N < 1 {
		config.N = 1
	}
	if config.TabSize < 1 {
		config.TabSize = DefaultConfig().TabSize
	}
	return config
}

// Config returns the tunables in use
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// SetConfig swaps the tunables for later requests. Requests in flight keep
// the ones they started with. Cached results are dropped.
func (e *Engine) SetConfig(config Config) {
	config = normalize(config)

	e.mu.Lock()
	old := e.cache
	e.config = config
	e.cache = NewCoordinator(config.CacheTTL, config.CacheCapacity)
	e.mu.Unlock()

	old.Close()
	logger.Info("engine: config updated (n=%d, first token timeout=%s)", config.N, config.FirstTokenTimeout)
}

// SetProvider switches the backend for later requests. Cached results are
// dropped.
func (e *Engine) SetProvider(provider Provider) {
	e.mu.Lock()
	old := e.cache
	e.provider = provider
	e.cache = NewCoordinator(e.config.CacheTTL, e.config.CacheCapacity)
	e.mu.Unlock()

	old.Close()
	logger.Info("engine: provider switched to %s", provider.Name())
}

// Stop releases the result cache
func (e *Engine) Stop() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.cache.Close()
}

// Complete runs the completion pipeline for req. It returns
// types.ErrSkipCompletion when the cursor is followed by a word on its line,
// and a *types.RateLimitError as soon as any branch is rate limited.
func (e *Engine) Complete(ctx context.Context, req Request) (*Result, error) {
	defer logger.Trace("engine.Complete")()

	e.mu.RLock()
	provider, config, cache := e.provider, e.config, e.cache
	e.mu.RUnlock()

	languageID := req.LanguageID
	if languageID == "" {
		languageID = language.Detect(req.DocumentURI)
	}

	dc := docctx.Get(docctx.Params{
		Text:           req.Text,
		Offset:         req.Offset,
		MaxPrefixChars: config.MaxPrefixChars,
		MaxSuffixChars: config.MaxSuffixChars,
		Selected:       req.Selected,
	})
	if dc.HasWordAfterCursor() {
		logger.Debug("engine: word after cursor, skipping")
		return nil, types.ErrSkipCompletion
	}

	seed, isMultiline := multiline.Detect(dc, languageID, config.ExtendedTriggers)

	return cache.Do(ctx, Key(req.DocumentURI, dc, isMultiline), func(ctx context.Context) (*Result, error) {
		return e.generate(ctx, provider, config, RequestOptions{
			DocContext: dc,
			LanguageID: languageID,
			Multiline:  isMultiline,
			Seed:       seed,
			Timeout:    config.GenerationTimeout,
		})
	})
}

func (e *Engine) generate(ctx context.Context, provider Provider, config Config, opts RequestOptions) (*Result, error) {
	id := uuid.NewString()
	start := time.Now()

	payload, err := provider.BuildRequest(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	branches := make([]stream.Stream[types.PartialCompletion], config.N)
	for i := range branches {
		branches[i] = branch(ctx, cancel, provider, payload, config.FirstTokenTimeout)
	}

	latest := make([]*types.PartialCompletion, config.N)
	errs := make([]error, config.N)
	zipped := stream.Zip(branches...)
	for {
		batch, err := zipped.Next(ctx)
		if errors.Is(err, stream.Done) {
			break
		}
		if err != nil {
			return nil, err
		}

		for i, v := range batch.Values {
			if v != nil {
				latest[i] = v
			}
		}
		for i, err := range batch.Errs {
			if err == nil {
				continue
			}
			if types.IsRateLimit(err) {
				logger.Warn("engine: %s rate limited: %v", id, err)
				return nil, err
			}
			logger.Warn("engine: %s dropping branch %d: %v", id, i, err)
			errs[i] = err
			latest[i] = nil
		}
	}

	var raws []string
	var firstErr error
	failed := 0
	for i := range latest {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		if latest[i] != nil {
			raws = append(raws, latest[i].Completion)
		}
	}
	if failed == len(latest) {
		return nil, firstErr
	}

	items := postprocess.Process(raws, postprocess.Params{
		DocContext: opts.DocContext,
		LanguageID: opts.LanguageID,
		Multiline:  opts.Multiline,
		TabSize:    config.TabSize,
		Oracle:     e.oracle,
	})

	logger.Info("engine: %s %s multiline=%v: %d of %d branches produced %d items in %s",
		id, provider.Name(), opts.Multiline, len(raws), config.N, len(items), time.Since(start))

	return &Result{ID: id, Items: items, Multiline: opts.Multiline}, nil
}

// branch starts generation lazily on the first poll, so the first-value
// bound also covers the wait for the backend to answer. A rate-limited
// branch cancels the whole request through abortAll.
func branch(parent context.Context, abortAll context.CancelCauseFunc, provider Provider, payload Payload, firstValueTimeout time.Duration) stream.Stream[types.PartialCompletion] {
	ctx, abort := stream.Fork(parent)

	var s stream.Stream[types.PartialCompletion]
	lazy := stream.Func[types.PartialCompletion](func(context.Context) (types.PartialCompletion, error) {
		if s == nil {
			generated, err := provider.Generate(ctx, payload)
			if err != nil {
				if types.IsRateLimit(err) {
					abortAll(err)
				}
				return types.PartialCompletion{}, err
			}
			s = generated
		}
		v, err := s.Next(ctx)
		if types.IsRateLimit(err) {
			abortAll(err)
		}
		return v, err
	})
	return stream.WithFirstValueTimeout(lazy, firstValueTimeout, abort)
}
