package player

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	socketWait    = 5 * time.Second
	socketPoll    = 100 * time.Millisecond
	shutdownGrace = 2 * time.Second
)

// MPVLauncher starts mpv in idle mode and controls it over a unix socket at
// a randomized path inside a private temp dir.
// Uses exec.Command with explicit args (no shell interpretation).
type MPVLauncher struct {
	// Binary is the mpv executable name or path.
	Binary     string
	Fullscreen bool
	Logger     *slog.Logger
}

// Available checks if the player binary exists in PATH.
func (m *MPVLauncher) Available() bool {
	_, err := exec.LookPath(m.binary())
	return err == nil
}

func (m *MPVLauncher) binary() string {
	if m.Binary == "" {
		return "mpv"
	}
	return m.Binary
}

func (m *MPVLauncher) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.Logger
}

// Args returns the command line used for socketPath.
func (m *MPVLauncher) Args(socketPath string) []string {
	args := []string{
		"--idle=yes",
		"--input-ipc-server=" + socketPath,
		"--really-quiet",
	}
	if m.Fullscreen {
		args = append(args, "--fullscreen")
	}
	return args
}

// Launch starts mpv and connects to its IPC socket.
func (m *MPVLauncher) Launch(ctx context.Context) (Conn, error) {
	socketDir, err := os.MkdirTemp("", "animewatch-mpv-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir for mpv socket: %w", err)
	}
	socketPath := filepath.Join(socketDir, uuid.NewString()+".sock")

	cmd := exec.Command(m.binary(), m.Args(socketPath)...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		os.RemoveAll(socketDir)
		return nil, fmt.Errorf("starting mpv: %w", err)
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	conn, err := dialSocket(ctx, socketPath, done)
	if err != nil {
		cmd.Process.Kill()
		<-done
		os.RemoveAll(socketDir)
		return nil, err
	}

	m.logger().Debug("mpv started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("socket", socketPath))

	return &mpvConn{
		ipc:       newIPCClient(conn),
		conn:      conn,
		cmd:       cmd,
		done:      done,
		socketDir: socketDir,
	}, nil
}

// dialSocket waits for mpv to create its socket and connects.
func dialSocket(ctx context.Context, socketPath string, done <-chan struct{}) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, socketWait)
	defer cancel()

	ticker := time.NewTicker(socketPoll)
	defer ticker.Stop()

	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "unix", socketPath)
		if err == nil {
			return conn, nil
		}
		select {
		case <-done:
			return nil, fmt.Errorf("mpv exited before opening its socket: %w", ErrTransportClosed)
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for mpv socket: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

type mpvConn struct {
	ipc       *ipcClient
	conn      net.Conn
	cmd       *exec.Cmd
	done      <-chan struct{}
	socketDir string
	closeOnce sync.Once
	closeErr  error
}

func (c *mpvConn) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *mpvConn) Load(ctx context.Context, url string) error {
	if c.exited() {
		return fmt.Errorf("mpv process gone: %w", ErrTransportClosed)
	}
	return c.ipc.command(ctx, "loadfile", url, "replace")
}

func (c *mpvConn) Close() error {
	c.closeOnce.Do(func() {
		if !c.exited() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			c.ipc.command(ctx, "quit")
			cancel()
		}
		c.conn.Close()

		select {
		case <-c.done:
		case <-time.After(shutdownGrace):
			c.closeErr = c.cmd.Process.Kill()
			<-c.done
		}
		os.RemoveAll(c.socketDir)
	})
	return c.closeErr
}
