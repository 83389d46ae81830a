package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"inlinecomplete/config"
	"inlinecomplete/engine"
	"inlinecomplete/logger"
	"inlinecomplete/oracle"
	"inlinecomplete/types"

	"github.com/spf13/cobra"
)

// Setup logger to log to a file in the runtime directory
// Caller must defer logger.Close()
func setupLogger(logLevel string) *logger.LimitedLogger {
	logPath := filepath.Join(runtimeDir(), "inlinecomplete.log")

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening file: %v", err)
	}

	level := logger.ParseLogLevel(logLevel)
	limitedLogger := logger.NewLimitedLogger(f, level)
	log.SetOutput(limitedLogger)
	return limitedLogger
}

// runtimeDir holds the socket, pid and log files
func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

func getSocketPath() string {
	return filepath.Join(runtimeDir(), "inlinecomplete.sock")
}

func getPidPath() string {
	return filepath.Join(runtimeDir(), "inlinecomplete.pid")
}

func isDaemonRunning() (bool, int) {
	data, err := os.ReadFile(getPidPath())
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}

	// Check if process is still running
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// On Unix, Signal(0) checks if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil, pid
}

func loadConfig() config.Config {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return cfg
}

func runDaemon() {
	cfg := loadConfig()

	logger := setupLogger(cfg.LogLevel)
	defer logger.Close()

	daemon, err := NewDaemon(cfg)
	if err != nil {
		log.Fatalf("error creating daemon: %v", err)
	}

	if err := daemon.Start(); err != nil {
		log.Fatalf("error starting daemon: %v", err)
	}
}

func runClient() {
	client := NewClient()

	if err := client.EnsureDaemonRunning(); err != nil {
		log.Fatalf("error ensuring daemon is running: %v", err)
	}

	if err := client.Connect(); err != nil {
		log.Fatalf("error connecting to daemon: %v", err)
	}
}

// runComplete prints the completions for FILE at byte OFFSET as JSON
func runComplete(target string) error {
	cfg := loadConfig()
	logger.SetGlobal(logger.New(os.Stderr, logger.ParseLogLevel(cfg.LogLevel)))

	path, offset, err := parseTarget(target)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	p, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("error creating provider: %w", err)
	}
	eng := engine.New(p, oracle.Default(), cfg.Engine())
	defer eng.Stop()

	abs, _ := filepath.Abs(path)
	res, err := eng.Complete(context.Background(), engine.Request{
		DocumentURI: "file://" + filepath.ToSlash(abs),
		Text:        string(text),
		Offset:      offset,
	})
	if errors.Is(err, types.ErrSkipCompletion) {
		res = &engine.Result{}
	} else if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// parseTarget splits "FILE:OFFSET"; the offset is a byte offset
func parseTarget(target string) (string, int, error) {
	i := strings.LastIndex(target, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("expected FILE:OFFSET, got %q", target)
	}
	offset, err := strconv.Atoi(target[i+1:])
	if err != nil || offset < 0 {
		return "", 0, fmt.Errorf("invalid offset in %q", target)
	}
	return target[:i], offset, nil
}

func newRootCommand() *cobra.Command {
	var daemon bool
	var complete string

	cmd := &cobra.Command{
		Use:   "inlinecomplete",
		Short: "Inline code completion daemon for Neovim",
		Long: `inlinecomplete serves inline code completions to Neovim.

Without flags it relays stdio to the completion daemon, starting the daemon
when none is running. Neovim launches it as an RPC job.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case daemon && complete != "":
				return fmt.Errorf("--daemon and --complete are exclusive")
			case daemon:
				runDaemon()
			case complete != "":
				return runComplete(complete)
			default:
				runClient()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&daemon, "daemon", false, "run the completion daemon")
	cmd.Flags().StringVar(&complete, "complete", "", "print completions for `FILE:OFFSET` as JSON and exit")
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
