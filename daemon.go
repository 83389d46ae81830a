package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"inlinecomplete/buffer"
	"inlinecomplete/config"
	"inlinecomplete/engine"
	"inlinecomplete/logger"
	"inlinecomplete/metrics"
	"inlinecomplete/oracle"
	"inlinecomplete/provider/fim"
	"inlinecomplete/provider/gateway"
	"inlinecomplete/provider/inline"
	"inlinecomplete/types"

	"github.com/neovim/go-client/nvim"
)

type Daemon struct {
	mu          sync.Mutex
	config      config.Config
	provider    engine.Provider
	engines     map[*engine.Engine]struct{}
	watcher     *config.Watcher
	metrics     *metrics.Tracker
	listener    net.Listener
	socketPath  string
	pidPath     string
	clientCount int64
	ctx         context.Context
	cancel      context.CancelFunc
}

// newProvider builds the backend variant named by the configuration
func newProvider(cfg config.Config) (engine.Provider, error) {
	switch cfg.ProviderType() {
	case types.ProviderTypeFIM:
		return fim.NewProvider(cfg.ProviderConfig()), nil
	case types.ProviderTypeInline:
		return inline.NewProvider(cfg.ProviderConfig()), nil
	case types.ProviderTypeGateway:
		return gateway.NewProvider(cfg.ProviderConfig()), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}

// providerChanged reports whether switching from old to cfg needs a new provider
func providerChanged(old, cfg config.Config) bool {
	return old.ProviderType() != cfg.ProviderType() || *old.ProviderConfig() != *cfg.ProviderConfig()
}

func NewDaemon(cfg config.Config) (*Daemon, error) {
	p, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		config:     cfg,
		provider:   p,
		engines:    make(map[*engine.Engine]struct{}),
		metrics:    metrics.NewTracker(),
		socketPath: getSocketPath(),
		pidPath:    getPidPath(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (d *Daemon) Start() error {
	d.writePidFile()
	defer d.removePidFile()

	if err := d.setupSocket(); err != nil {
		return err
	}
	defer d.cleanup()

	logger.Info("daemon listening on socket: %s (provider %s)", d.socketPath, d.config.Provider)

	watcher, err := config.Watch(config.Path(), d.reload)
	if err != nil {
		logger.Warn("config hot reload disabled: %v", err)
	} else {
		d.watcher = watcher
		defer watcher.Close()
	}

	defer d.logStats()

	d.setupShutdownHandling()

	go d.acceptConnections()
	go d.monitorIdleShutdown()

	<-d.ctx.Done()
	logger.Info("daemon shutting down...")
	return nil
}

func (d *Daemon) setupSocket() error {
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			d.Stop()
		case <-d.ctx.Done():
		}
	}()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
				logger.Error("error accepting connection: %v", err)
				continue
			}
		}

		atomic.AddInt64(&d.clientCount, 1)
		logger.Info("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		go d.handleConnection(conn)
	}
}

// handleConnection serves one editor. Each connection gets its own engine
// because the parse-error oracle asks that editor's treesitter.
func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		logger.Info("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	n, err := nvim.New(conn, conn, conn, log.Printf)
	if err != nil {
		logger.Error("error creating nvim client: %v", err)
		return
	}

	buf := buffer.New()
	buf.SetClient(n)

	eng := d.newEngine(buffer.NewTreesitterOracle(n, oracle.Default()))
	defer d.releaseEngine(eng)

	s := &session{buf: buf, engine: eng, metrics: d.metrics}
	if err := n.RegisterHandler("inlinecomplete_request", s.complete); err != nil {
		logger.Error("error registering request handler: %v", err)
		return
	}
	if err := n.RegisterHandler("inlinecomplete_stats", d.stats); err != nil {
		logger.Error("error registering stats handler: %v", err)
		return
	}
	if err := buf.RegisterEventHandler(s.handleEvent); err != nil {
		logger.Error("error registering event handler: %v", err)
		return
	}

	select {
	case <-d.ctx.Done():
		return
	default:
		if err := n.Serve(); err != nil && err != io.EOF {
			logger.Error("error serving connection: %v", err)
		}
	}
	s.cancelInFlight()
}

func (d *Daemon) newEngine(o oracle.Oracle) *engine.Engine {
	d.mu.Lock()
	defer d.mu.Unlock()
	eng := engine.New(d.provider, o, d.config.Engine())
	d.engines[eng] = struct{}{}
	return eng
}

func (d *Daemon) releaseEngine(eng *engine.Engine) {
	d.mu.Lock()
	delete(d.engines, eng)
	d.mu.Unlock()
	eng.Stop()
}

// reload applies a changed config file to every live engine
func (d *Daemon) reload(cfg config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	logger.SetGlobalLevel(logger.ParseLogLevel(cfg.LogLevel))

	if providerChanged(d.config, cfg) {
		p, err := newProvider(cfg)
		if err != nil {
			logger.Error("reload: keeping previous provider: %v", err)
			return
		}
		d.provider = p
		for eng := range d.engines {
			eng.SetProvider(p)
		}
		logger.Info("reload: switched to provider %s at %s", cfg.Provider, cfg.ProviderURL)
	}

	if d.config.Engine() != cfg.Engine() {
		for eng := range d.engines {
			eng.SetConfig(cfg.Engine())
		}
	}
	d.config = cfg
}

func (d *Daemon) currentConfig() config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

func (d *Daemon) monitorIdleShutdown() {
	cfg := d.currentConfig()
	if cfg.DebugImmediateExit {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt64(&d.clientCount) == 0 {
					logger.Info("debug mode: no clients connected, shutting down daemon immediately")
					d.Stop()
					return
				}
			}
		}
	}

	idle := time.Duration(cfg.IdleShutdown) * time.Second
	if idle <= 0 {
		return
	}

	// The first check waits the full period so a fresh daemon has time to
	// receive its first client; later checks use a shorter grace period.
	idleTimer := time.NewTimer(idle)
	defer idleTimer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-idleTimer.C:
			if atomic.LoadInt64(&d.clientCount) == 0 {
				logger.Info("no clients connected for %s, shutting down daemon", idle)
				d.Stop()
				return
			}
		}

		if atomic.LoadInt64(&d.clientCount) == 0 {
			idleTimer.Reset(min(idle, 5*time.Second))
		} else {
			idleTimer.Reset(idle)
		}
	}
}

func (d *Daemon) Stop() {
	if d.listener != nil {
		d.listener.Close()
	}
	d.cancel()
}

func (d *Daemon) stats() (metrics.Stats, error) {
	return d.metrics.Stats(), nil
}

func (d *Daemon) logStats() {
	s := d.metrics.Stats()
	logger.Info("served %d requests (outcomes %v, avg %dms), %d shown, %.0f%% accepted",
		s.Requests, s.Outcomes, s.AvgLatencyMs, s.Shown, 100*s.AcceptRate())
	d.metrics.Close()
}

func (d *Daemon) cleanup() {
	os.Remove(d.socketPath)
}

func (d *Daemon) writePidFile() {
	pid := os.Getpid()
	err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)), 0644)
	if err != nil {
		logger.Warn("could not write PID file: %v", err)
	}
	logger.Info("server started with PID %d", pid)
}

func (d *Daemon) removePidFile() {
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not remove PID file: %v", err)
	}
}

// completionReply is the msgpack answer to an inlinecomplete_request call
type completionReply struct {
	ID           string        `msgpack:"id"`
	Multiline    bool          `msgpack:"multiline"`
	Items        []buffer.Item `msgpack:"items"`
	RateLimited  bool          `msgpack:"rate_limited"`
	RetryAfterMs int64         `msgpack:"retry_after_ms"`
}

// session tracks the single in-flight request of one editor connection.
// A new request cancels the previous one.
type session struct {
	buf     *buffer.NvimBuffer
	engine  *engine.Engine
	metrics *metrics.Tracker

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	last   completionReply
}

func (s *session) begin() (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.seq++
	s.cancel = cancel
	return ctx, s.seq
}

func (s *session) end(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == seq && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *session) cancelInFlight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// handleEvent receives editor notifications. Suggestion lifecycle events
// carry the completion ID as "shown:<id>", "accepted:<id>" or "disposed:<id>".
func (s *session) handleEvent(event string) {
	name, id, _ := strings.Cut(event, ":")
	switch name {
	case "cancel", "insert_leave", "buffer_leave":
		s.cancelInFlight()
	case metrics.EventShown:
		s.metrics.TrackShown(&metrics.CompletionMetrics{ID: id, Items: s.itemCount(id)})
	case metrics.EventAccepted:
		s.metrics.TrackAccepted(id)
	case metrics.EventDisposed:
		s.metrics.TrackDisposed(id)
	default:
		logger.Debug("ignoring event %q", event)
	}
}

func (s *session) itemCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last.ID != id {
		return 0
	}
	return len(s.last.Items)
}

func (s *session) remember(reply *completionReply) {
	s.mu.Lock()
	s.last = *reply
	s.mu.Unlock()
}

// complete syncs the current buffer and answers with completion items
// anchored to buffer rows and columns.
func (s *session) complete() (*completionReply, error) {
	if err := s.buf.Sync(); err != nil {
		return nil, fmt.Errorf("sync buffer: %w", err)
	}
	req := s.buf.Request()

	ctx, seq := s.begin()
	defer s.end(seq)

	start := time.Now()
	res, err := s.engine.Complete(ctx, req)
	s.metrics.Record(outcomeOf(res, err), time.Since(start))
	if err != nil {
		return replyForError(err)
	}
	reply := &completionReply{
		ID:        res.ID,
		Multiline: res.Multiline,
		Items:     buffer.Items(req.Text, req.Offset, res.Items),
	}
	s.remember(reply)
	return reply, nil
}

func outcomeOf(res *engine.Result, err error) metrics.Outcome {
	switch {
	case errors.Is(err, types.ErrSkipCompletion):
		return metrics.OutcomeSkipped
	case errors.Is(err, context.Canceled):
		return metrics.OutcomeCancelled
	case types.IsRateLimit(err):
		return metrics.OutcomeRateLimited
	case err != nil:
		return metrics.OutcomeFailed
	case len(res.Items) == 0:
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeCompleted
	}
}

// replyForError turns expected outcomes into empty replies and keeps real
// failures as RPC errors.
func replyForError(err error) (*completionReply, error) {
	var rl *types.RateLimitError
	switch {
	case errors.Is(err, types.ErrSkipCompletion), errors.Is(err, context.Canceled):
		return &completionReply{}, nil
	case errors.As(err, &rl):
		logger.Warn("rate limited: %v", rl)
		return &completionReply{RateLimited: true, RetryAfterMs: rl.RetryAfter.Milliseconds()}, nil
	default:
		logger.Error("completion failed: %v", err)
		return nil, err
	}
}
