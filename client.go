package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"inlinecomplete/logger"
)

// Client relays the editor's stdio channel to the daemon socket, starting
// the daemon first when none is running.
type Client struct {
	socketPath string
}

func NewClient() *Client {
	return &Client{
		socketPath: getSocketPath(),
	}
}

func (c *Client) Connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		io.Copy(conn, os.Stdin)
		conn.Close()
	}()

	_, err = io.Copy(os.Stdout, conn)
	return err
}

// dial retries briefly since the pid file is written before the socket
// starts listening.
func (c *Client) dial() (net.Conn, error) {
	var lastErr error
	for range 20 {
		conn, err := net.Dial("unix", c.socketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(50 * time.Millisecond)
	}
	return nil, fmt.Errorf("dial %s: %w", c.socketPath, lastErr)
}

func (c *Client) EnsureDaemonRunning() error {
	if running, pid := isDaemonRunning(); running {
		logger.Debug("daemon already running with PID %d", pid)
		return nil
	}
	return c.startDaemon()
}

func (c *Client) startDaemon() error {
	logger.Debug("starting daemon...")

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}

	// Detached: the daemon must outlive this relay
	proc, err := os.StartProcess(exe, []string{exe, "--daemon"}, &os.ProcAttr{
		Env:   os.Environ(),
		Files: []*os.File{nil, nil, nil},
	})
	if err != nil {
		return err
	}
	if err := proc.Release(); err != nil {
		logger.Warn("could not release daemon process: %v", err)
	}

	return c.waitForDaemon()
}

func (c *Client) waitForDaemon() error {
	for range 50 { // Wait up to 5 seconds
		if running, _ := isDaemonRunning(); running {
			logger.Debug("daemon started successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon failed to start within timeout")
}
