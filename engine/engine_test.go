package engine

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"inlinecomplete/docctx"
	"inlinecomplete/stream"
	"inlinecomplete/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestAt builds a request for buf with the cursor at the █ marker
func requestAt(buf, languageID string) Request {
	offset := strings.Index(buf, "█")
	return Request{
		DocumentURI: "file:///tmp/test",
		LanguageID:  languageID,
		Text:        strings.Replace(buf, "█", "", 1),
		Offset:      offset,
	}
}

func insertTexts(items []types.InlineCompletionItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.InsertText
	}
	return out
}

func TestComplete_SingleLine(t *testing.T) {
	p := newMockProvider(always("bar"))
	e := New(p, nil, testConfig())
	defer e.Stop()

	res, err := e.Complete(context.Background(), requestAt("foo = █", "typescript"))

	require.NoError(t, err)
	assert.Equal(t, []types.InlineCompletionItem{{InsertText: "bar"}}, res.Items)
	assert.False(t, res.Multiline)
	assert.NotEmpty(t, res.ID)
}

func TestComplete_ReplacesRestOfLine(t *testing.T) {
	p := newMockProvider(byCall(
		func() stream.Stream[types.PartialCompletion] { return completes("array) {") },
		func() stream.Stream[types.PartialCompletion] { return completes("items) {") },
	))
	config := testConfig()
	config.N = 2
	e := New(p, nil, config)
	defer e.Stop()

	req := requestAt("function bubbleSort(█)", "javascript")
	res, err := e.Complete(context.Background(), req)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"array) {", "items) {"}, insertTexts(res.Items))
	for _, item := range res.Items {
		require.NotNil(t, item.Range, "range for %q", item.InsertText)
		assert.Equal(t, types.Range{Start: req.Offset, End: req.Offset + 1}, *item.Range, "range spans the existing )")
	}
}

func TestComplete_MultilineTruncatesToBlock(t *testing.T) {
	p := newMockProvider(always("return 1\n}\nfunction g() {}"))
	e := New(p, nil, testConfig())
	defer e.Stop()

	res, err := e.Complete(context.Background(), requestAt("function f() {\n  █\n}", "typescript"))

	require.NoError(t, err)
	assert.True(t, res.Multiline)
	assert.Equal(t, []string{"return 1"}, insertTexts(res.Items))
}

func TestComplete_SkipsWordAfterCursor(t *testing.T) {
	p := newMockProvider(always("x"))
	e := New(p, nil, testConfig())
	defer e.Stop()

	_, err := e.Complete(context.Background(), requestAt("foo(█bar)", "typescript"))

	assert.ErrorIs(t, err, types.ErrSkipCompletion)
	assert.Equal(t, 0, p.generateCalls(), "no request is sent")
}

func TestComplete_RequestOptions(t *testing.T) {
	p := newMockProvider(always("pass"))
	config := testConfig()
	e := New(p, nil, config)
	defer e.Stop()

	req := requestAt("def f():\n    █", "")
	req.DocumentURI = "file:///tmp/main.py"
	_, err := e.Complete(context.Background(), req)
	require.NoError(t, err)

	opts := p.lastBuild()
	assert.Equal(t, "python", opts.LanguageID, "detected from the file name")
	assert.True(t, opts.Multiline)
	assert.Equal(t, ":", opts.Seed)
	assert.Equal(t, config.GenerationTimeout, opts.Timeout)
	assert.Equal(t, "def f():\n    ", opts.DocContext.Prefix)
}

func TestComplete_RateLimitAbortsAllBranches(t *testing.T) {
	p := newMockProvider(func(ctx context.Context, call int) (stream.Stream[types.PartialCompletion], error) {
		if call == 0 {
			return nil, &types.RateLimitError{Message: "slow down", RetryAfter: time.Minute}
		}
		return hangs("partial"), nil
	})
	config := testConfig()
	config.N = 3
	config.FirstTokenTimeout = 0
	e := New(p, nil, config)
	defer e.Stop()

	_, err := e.Complete(context.Background(), requestAt("foo = █", "typescript"))

	var rl *types.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, time.Minute, rl.RetryAfter)
	for i, ctx := range p.contexts {
		assert.Error(t, ctx.Err(), "branch %d cancelled", i)
	}
}

func TestComplete_FailedBranchIsDropped(t *testing.T) {
	p := newMockProvider(func(ctx context.Context, call int) (stream.Stream[types.PartialCompletion], error) {
		if call == 0 {
			return nil, &types.NetworkError{Status: http.StatusInternalServerError, Body: "boom"}
		}
		return completes("bar"), nil
	})
	config := testConfig()
	config.N = 2
	e := New(p, nil, config)
	defer e.Stop()

	res, err := e.Complete(context.Background(), requestAt("foo = █", "typescript"))

	require.NoError(t, err)
	assert.Equal(t, []string{"bar"}, insertTexts(res.Items))
}

func TestComplete_MidStreamErrorDropsPartialText(t *testing.T) {
	p := newMockProvider(func(ctx context.Context, call int) (stream.Stream[types.PartialCompletion], error) {
		if call == 0 {
			sent := false
			return stream.Func[types.PartialCompletion](func(context.Context) (types.PartialCompletion, error) {
				if sent {
					return types.PartialCompletion{}, &types.ProtocolError{Message: "model overloaded"}
				}
				sent = true
				return types.PartialCompletion{Completion: "broken", StopReason: types.StopReasonStreamingChunk}, nil
			}), nil
		}
		return completes("bar"), nil
	})
	config := testConfig()
	config.N = 2
	e := New(p, nil, config)
	defer e.Stop()

	res, err := e.Complete(context.Background(), requestAt("foo = █", "typescript"))

	require.NoError(t, err)
	assert.Equal(t, []string{"bar"}, insertTexts(res.Items))
}

func TestComplete_AllBranchesFail(t *testing.T) {
	p := newMockProvider(func(ctx context.Context, call int) (stream.Stream[types.PartialCompletion], error) {
		return fails(&types.NetworkError{Status: http.StatusBadGateway, Body: "down"}), nil
	})
	config := testConfig()
	config.N = 2
	e := New(p, nil, config)
	defer e.Stop()

	_, err := e.Complete(context.Background(), requestAt("foo = █", "typescript"))

	var netErr *types.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusBadGateway, netErr.Status)
}

func TestComplete_FirstTokenTimeout(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		wantItems []string
		wantErr   bool
	}{
		{name: "slow branch dropped", n: 2, wantItems: []string{"bar"}},
		{name: "only branch times out", n: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMockProvider(func(ctx context.Context, call int) (stream.Stream[types.PartialCompletion], error) {
				if call == 0 {
					return hangs(""), nil
				}
				return completes("bar"), nil
			})
			config := testConfig()
			config.N = tt.n
			config.FirstTokenTimeout = 50 * time.Millisecond
			e := New(p, nil, config)
			defer e.Stop()

			res, err := e.Complete(context.Background(), requestAt("foo = █", "typescript"))

			if tt.wantErr {
				var te *types.TimeoutError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, 50*time.Millisecond, te.After)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantItems, insertTexts(res.Items))
		})
	}
}

func TestGenerate_CancelledRequestKeepsPartialText(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newMockProvider(func(branchCtx context.Context, call int) (stream.Stream[types.PartialCompletion], error) {
		inner := hangs("par")
		first := true
		return stream.Func[types.PartialCompletion](func(c context.Context) (types.PartialCompletion, error) {
			v, err := inner.Next(c)
			if first {
				first = false
				cancel()
			}
			return v, err
		}), nil
	})
	e := New(p, nil, testConfig())
	defer e.Stop()

	config := e.Config()
	res, err := e.generate(ctx, p, config, RequestOptions{
		DocContext: docctx.Derive(6, "foo = ", ""),
		LanguageID: "typescript",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"par"}, insertTexts(res.Items), "aborted branch contributes its partial text")
}

func TestComplete_CachesResults(t *testing.T) {
	p := newMockProvider(always("bar"))
	e := New(p, nil, testConfig())
	defer e.Stop()

	first, err := e.Complete(context.Background(), requestAt("foo = █", "typescript"))
	require.NoError(t, err)
	second, err := e.Complete(context.Background(), requestAt("foo = █", "typescript"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, p.generateCalls())

	_, err = e.Complete(context.Background(), requestAt("baz = █", "typescript"))
	require.NoError(t, err)
	assert.Equal(t, 2, p.generateCalls(), "different context misses")
}

func TestComplete_SharesInFlightRequest(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := newMockProvider(func(ctx context.Context, call int) (stream.Stream[types.PartialCompletion], error) {
		if call == 0 {
			close(started)
		}
		<-release
		return completes("bar"), nil
	})
	e := New(p, nil, testConfig())
	defer e.Stop()

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	run := func(i int) {
		defer wg.Done()
		res, err := e.Complete(context.Background(), requestAt("foo = █", "typescript"))
		assert.NoError(t, err)
		results[i] = res
	}

	wg.Add(2)
	go run(0)
	<-started
	go run(1)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, p.generateCalls())
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, results[0].ID, results[1].ID)
}

func TestComplete_CancelledRunIsNotShared(t *testing.T) {
	streaming := make(chan struct{})
	p := newMockProvider(func(ctx context.Context, call int) (stream.Stream[types.PartialCompletion], error) {
		if call == 0 {
			inner := hangs("ret")
			return stream.Func[types.PartialCompletion](func(c context.Context) (types.PartialCompletion, error) {
				v, err := inner.Next(c)
				if v.StopReason == types.StopReasonStreamingChunk {
					close(streaming)
				}
				return v, err
			}), nil
		}
		return completes("return value"), nil
	})
	e := New(p, nil, testConfig())
	defer e.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Complete(ctx, requestAt("x = █", "typescript"))
		done <- err
	}()
	<-streaming
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	res, err := e.Complete(context.Background(), requestAt("x = █", "typescript"))

	require.NoError(t, err)
	assert.Equal(t, []string{"return value"}, insertTexts(res.Items), "fresh run, not the aborted partial")
	assert.Equal(t, 2, p.generateCalls())
}

func TestComplete_KeyedByCursorOffset(t *testing.T) {
	t.Run("clipped prefix", func(t *testing.T) {
		p := newMockProvider(always("bar"))
		config := testConfig()
		config.MaxPrefixChars = len("x = ")
		e := New(p, nil, config)
		defer e.Stop()

		first := requestAt("ab\nx = █)", "typescript")
		second := requestAt("abc\nxy\nx = █)", "typescript")

		res1, err := e.Complete(context.Background(), first)
		require.NoError(t, err)
		res2, err := e.Complete(context.Background(), second)
		require.NoError(t, err)

		assert.Equal(t, 2, p.generateCalls(), "same window at another offset misses")
		require.NotEmpty(t, res1.Items)
		require.NotEmpty(t, res2.Items)
		require.NotNil(t, res2.Items[0].Range)
		assert.Equal(t, types.Range{Start: first.Offset, End: first.Offset + 1}, *res1.Items[0].Range)
		assert.Equal(t, types.Range{Start: second.Offset, End: second.Offset + 1}, *res2.Items[0].Range)
	})

	t.Run("popup selection", func(t *testing.T) {
		p := newMockProvider(always("bar"))
		e := New(p, nil, testConfig())
		defer e.Stop()

		first := requestAt("f█)", "typescript")
		first.Selected = &docctx.SelectedCompletion{Start: 0, Text: "foo"}
		second := requestAt("fo█)", "typescript")
		second.Selected = &docctx.SelectedCompletion{Start: 0, Text: "foo"}

		res1, err := e.Complete(context.Background(), first)
		require.NoError(t, err)
		res2, err := e.Complete(context.Background(), second)
		require.NoError(t, err)

		assert.Equal(t, 2, p.generateCalls(), "same patched prefix at another offset misses")
		require.NotEmpty(t, res2.Items)
		require.NotNil(t, res2.Items[0].Range)
		assert.Equal(t, 2, res2.Items[0].Range.Start)
		assert.NotEqual(t, res1.ID, res2.ID)
	})
}

func TestSetConfig(t *testing.T) {
	p := newMockProvider(always("bar"))
	e := New(p, nil, testConfig())
	defer e.Stop()

	config := testConfig()
	config.N = 3
	e.SetConfig(config)

	res, err := e.Complete(context.Background(), requestAt("foo = █", "typescript"))

	require.NoError(t, err)
	assert.Equal(t, 3, p.generateCalls())
	assert.Equal(t, []string{"bar"}, insertTexts(res.Items), "identical branches collapse")
	assert.Equal(t, 3, e.Config().N)
}

func TestSetProvider(t *testing.T) {
	first := newMockProvider(always("foo"))
	second := newMockProvider(always("bar"))
	e := New(first, nil, testConfig())
	defer e.Stop()

	_, err := e.Complete(context.Background(), requestAt("x = █", "typescript"))
	require.NoError(t, err)

	e.SetProvider(second)
	res, err := e.Complete(context.Background(), requestAt("x = █", "typescript"))

	require.NoError(t, err)
	assert.Equal(t, []string{"bar"}, insertTexts(res.Items), "cache dropped with the old provider")
	assert.Equal(t, 1, first.generateCalls())
	assert.Equal(t, 1, second.generateCalls())
}

func TestNew_NormalizesConfig(t *testing.T) {
	e := New(newMockProvider(always("x")), nil, Config{})
	defer e.Stop()

	assert.Equal(t, 1, e.Config().N)
	assert.Equal(t, DefaultConfig().TabSize, e.Config().TabSize)
}

func TestKey(t *testing.T) {
	dc := docctx.Derive(3, "foo", "bar")

	assert.Equal(t, Key("a.go", dc, false), Key("a.go", dc, false))
	assert.NotEqual(t, Key("a.go", dc, false), Key("b.go", dc, false), "document")
	assert.NotEqual(t, Key("a.go", dc, false), Key("a.go", dc, true), "multiline")
	assert.NotEqual(t, Key("a.go", dc, false), Key("a.go", docctx.Derive(3, "foo", "baz"), false), "suffix")
	assert.NotEqual(t, Key("a.go", docctx.Derive(2, "fo", "obar"), false), Key("a.go", dc, false), "split point")
	assert.NotEqual(t, Key("a.go", docctx.Derive(9, "foo", "bar"), false), Key("a.go", dc, false), "cursor offset")
}

func TestCoordinator_DoesNotCacheEmptyOrFailed(t *testing.T) {
	c := NewCoordinator(time.Minute, 10)
	defer c.Close()

	calls := 0
	empty := func(context.Context) (*Result, error) {
		calls++
		return &Result{ID: "empty"}, nil
	}
	_, err := c.Do(context.Background(), "k", empty)
	require.NoError(t, err)
	_, err = c.Do(context.Background(), "k", empty)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "empty results are retried")

	boom := &types.ProtocolError{Message: "boom"}
	_, err = c.Do(context.Background(), "f", func(context.Context) (*Result, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestCoordinator_WithoutTTL(t *testing.T) {
	c := NewCoordinator(0, 0)
	defer c.Close()

	calls := 0
	fn := func(context.Context) (*Result, error) {
		calls++
		return &Result{Items: []types.InlineCompletionItem{{InsertText: "x"}}}, nil
	}
	_, _ = c.Do(context.Background(), "k", fn)
	_, _ = c.Do(context.Background(), "k", fn)

	assert.Equal(t, 2, calls)
}

func TestCoordinator_RunOutlivesLeavingCaller(t *testing.T) {
	c := NewCoordinator(time.Minute, 10)
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var runCtx context.Context
	fn := func(ctx context.Context) (*Result, error) {
		runCtx = ctx
		close(started)
		<-release
		return &Result{ID: "shared", Items: []types.InlineCompletionItem{{InsertText: "x"}}}, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Do(firstCtx, "k", fn)
		firstDone <- err
	}()
	<-started

	secondDone := make(chan *Result, 1)
	go func() {
		res, err := c.Do(context.Background(), "k", fn)
		assert.NoError(t, err)
		secondDone <- res
	}()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.calls["k"] != nil && c.calls["k"].waiters == 2
	}, time.Second, time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstDone, context.Canceled)
	assert.NoError(t, runCtx.Err(), "run continues while a caller waits")

	close(release)
	res := <-secondDone
	require.NotNil(t, res)
	assert.Equal(t, "shared", res.ID)
}

func TestCoordinator_LastCallerLeavingCancelsRun(t *testing.T) {
	c := NewCoordinator(time.Minute, 10)
	defer c.Close()

	started := make(chan struct{})
	stopped := make(chan struct{})
	calls := 0
	fn := func(ctx context.Context) (*Result, error) {
		calls++
		if calls == 1 {
			close(started)
			<-ctx.Done()
			defer close(stopped)
			return &Result{ID: "partial", Items: []types.InlineCompletionItem{{InsertText: "ret"}}}, nil
		}
		return &Result{ID: "fresh", Items: []types.InlineCompletionItem{{InsertText: "return value"}}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Do(ctx, "k", fn)
		done <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	<-stopped

	res, err := c.Do(context.Background(), "k", fn)

	require.NoError(t, err)
	assert.Equal(t, "fresh", res.ID, "cancelled run neither shared nor cached")
}
