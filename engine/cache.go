package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"inlinecomplete/docctx"
	"inlinecomplete/logger"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// Coordinator runs at most one pipeline per key at a time and keeps the
// results of finished runs for a short while. Concurrent callers with the
// same key share one run.
type Coordinator struct {
	cache *ttlcache.Cache[string, *Result]
	group singleflight.Group
	once  sync.Once

	mu    sync.Mutex
	calls map[string]*call
}

// call is one shared run. Its context is cancelled once every caller
// waiting on it has left.
type call struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewCoordinator creates a coordinator whose results expire after ttl. A
// zero capacity leaves the number of entries unbounded; a ttl <= 0 disables
// result caching but keeps in-flight sharing.
func NewCoordinator(ttl time.Duration, capacity uint64) *Coordinator {
	c := &Coordinator{calls: make(map[string]*call)}
	if ttl <= 0 {
		return c
	}

	opts := []ttlcache.Option[string, *Result]{
		ttlcache.WithTTL[string, *Result](ttl),
		ttlcache.WithDisableTouchOnHit[string, *Result](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *Result](capacity))
	}

	c.cache = ttlcache.New[string, *Result](opts...)
	go c.cache.Start()
	return c
}

// Close stops the cache expiration loop
func (c *Coordinator) Close() {
	if c.cache != nil {
		c.once.Do(c.cache.Stop)
	}
}

// Do returns the cached result for key or runs fn to produce it. fn runs
// on a context detached from any single caller: a caller that gives up
// leaves the run to the others, and the run is cancelled only when nobody
// waits for it anymore. A cancelled run is forgotten at once, so later
// callers start a fresh one instead of inheriting its partial result.
func (c *Coordinator) Do(ctx context.Context, key string, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	if c.cache != nil {
		if item := c.cache.Get(key); item != nil {
			logger.Debug("cache: hit %s", key)
			return item.Value(), nil
		}
	}

	cl := c.join(ctx, key)
	defer c.leave(key, cl)

	ch := c.group.DoChan(key, func() (any, error) {
		defer c.finish(key, cl)
		res, err := fn(cl.ctx)
		if err == nil && cl.ctx.Err() == nil && c.cache != nil && len(res.Items) > 0 {
			c.cache.Set(key, res, ttlcache.DefaultTTL)
		}
		return res, err
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			logger.Debug("cache: joined in-flight request %s", key)
		}
		return r.Val.(*Result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) join(ctx context.Context, key string) *call {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl := c.calls[key]
	if cl == nil {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		cl = &call{ctx: runCtx, cancel: cancel}
		c.calls[key] = cl
	}
	cl.waiters++
	return cl
}

func (c *Coordinator) leave(key string, cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl.waiters--
	if cl.waiters > 0 {
		return
	}
	if c.calls[key] == cl {
		delete(c.calls, key)
		c.group.Forget(key)
	}
	cl.cancel()
}

// finish unregisters a run whose function returned
func (c *Coordinator) finish(key string, cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls[key] == cl {
		delete(c.calls, key)
	}
}

// Key identifies a request by its document, the cursor offset and the
// context window around the cursor. Results hold absolute replace ranges,
// so the same window at another offset is another key.
func Key(documentURI string, dc docctx.DocumentContext, multiline bool) string {
	h := sha256.New()
	h.Write([]byte(dc.Prefix))
	h.Write([]byte{0})
	h.Write([]byte(dc.Suffix))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(multiline)))
	return documentURI + "@" + strconv.Itoa(dc.Position) + "#" + hex.EncodeToString(h.Sum(nil))[:16]
}
