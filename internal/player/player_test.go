package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"syscall"
	"testing"
	"time"
)

type fakeConn struct {
	loadErrs []error
	loaded   []string
	closed   int
}

func (c *fakeConn) Load(_ context.Context, url string) error {
	c.loaded = append(c.loaded, url)
	if len(c.loadErrs) == 0 {
		return nil
	}
	err := c.loadErrs[0]
	c.loadErrs = c.loadErrs[1:]
	return err
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

// fakeLauncher hands out the prepared conns in order.
type fakeLauncher struct {
	conns     []*fakeConn
	launches  int
	launchErr error
}

func (l *fakeLauncher) Launch(context.Context) (Conn, error) {
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	if l.launches >= len(l.conns) {
		return nil, errors.New("no more players")
	}
	c := l.conns[l.launches]
	l.launches++
	return c, nil
}

func TestPlayLaunchesLazily(t *testing.T) {
	conn := &fakeConn{}
	l := &fakeLauncher{conns: []*fakeConn{conn}}
	s := NewSession(l, nil)

	if s.Active() || l.launches != 0 {
		t.Fatal("session started before Play")
	}
	for _, url := range []string{"a.m3u8", "b.m3u8"} {
		if err := s.Play(context.Background(), url); err != nil {
			t.Fatalf("Play(%s) error: %v", url, err)
		}
	}
	if l.launches != 1 {
		t.Errorf("launches = %d, want 1", l.launches)
	}
	if !slices.Equal(conn.loaded, []string{"a.m3u8", "b.m3u8"}) {
		t.Errorf("loaded = %v", conn.loaded)
	}
}

func TestPlayRetriesOnceOnClosedChannel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"broken pipe", &net.OpError{Op: "write", Err: syscall.EPIPE}},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET)},
		{"closed conn", net.ErrClosed},
		{"eof", io.EOF},
		{"process gone", fmt.Errorf("mpv process gone: %w", ErrTransportClosed)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := &fakeConn{loadErrs: []error{tt.err}}
			second := &fakeConn{}
			l := &fakeLauncher{conns: []*fakeConn{first, second}}
			s := NewSession(l, nil)

			if err := s.Play(context.Background(), "ep.m3u8"); err != nil {
				t.Fatalf("Play() error: %v", err)
			}
			if l.launches != 2 {
				t.Errorf("launches = %d, want 2", l.launches)
			}
			if first.closed != 1 {
				t.Errorf("stale conn closed %d times, want 1", first.closed)
			}
			if len(second.loaded) != 1 {
				t.Errorf("retry did not load on the new conn")
			}
		})
	}
}

func TestPlaySecondFailurePropagates(t *testing.T) {
	first := &fakeConn{loadErrs: []error{io.EOF}}
	second := &fakeConn{loadErrs: []error{syscall.EPIPE}}
	third := &fakeConn{}
	l := &fakeLauncher{conns: []*fakeConn{first, second, third}}
	s := NewSession(l, nil)

	err := s.Play(context.Background(), "ep.m3u8")
	if !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
	if l.launches != 2 {
		t.Errorf("launches = %d, want exactly 2", l.launches)
	}
	if s.Active() {
		t.Error("session should be torn down after the failed retry")
	}

	// The next Play starts fresh.
	if err := s.Play(context.Background(), "ep.m3u8"); err != nil {
		t.Fatalf("Play() after failure: %v", err)
	}
	if l.launches != 3 {
		t.Errorf("launches = %d, want 3", l.launches)
	}
}

func TestPlayCommandErrorIsNotRetried(t *testing.T) {
	conn := &fakeConn{loadErrs: []error{errors.New("mpv loadfile: invalid parameter")}}
	l := &fakeLauncher{conns: []*fakeConn{conn, {}}}
	s := NewSession(l, nil)

	err := s.Play(context.Background(), "ep.m3u8")
	if err == nil || errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected a plain command error, got %v", err)
	}
	if l.launches != 1 {
		t.Errorf("launches = %d, want 1", l.launches)
	}
}

func TestPlayLaunchFailure(t *testing.T) {
	s := NewSession(&fakeLauncher{launchErr: errors.New("exec: mpv not found")}, nil)
	if err := s.Play(context.Background(), "x"); err == nil {
		t.Fatal("expected launch error")
	}
}

func TestTerminateIdempotent(t *testing.T) {
	conn := &fakeConn{}
	s := NewSession(&fakeLauncher{conns: []*fakeConn{conn}}, nil)

	if err := s.Terminate(); err != nil {
		t.Fatalf("Terminate() on idle session: %v", err)
	}
	s.Play(context.Background(), "x")
	for i := 0; i < 3; i++ {
		if err := s.Terminate(); err != nil {
			t.Fatalf("Terminate() #%d: %v", i, err)
		}
	}
	if conn.closed != 1 {
		t.Errorf("conn closed %d times, want 1", conn.closed)
	}
}

func TestManagerSingleSession(t *testing.T) {
	m := NewManager(&fakeLauncher{conns: []*fakeConn{{}, {}}}, nil)

	s, err := m.Open()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Open(); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	s.Play(context.Background(), "x")

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Active() {
		t.Error("Close did not terminate the session")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := m.Open(); err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
}

func TestIsClosed(t *testing.T) {
	if IsClosed(nil) || IsClosed(errors.New("mpv loadfile: error")) {
		t.Error("non transport errors classified as closed")
	}
	if !IsClosed(fmt.Errorf("write: %w", io.ErrClosedPipe)) {
		t.Error("closed pipe not classified as closed")
	}
}

// fakeMPV answers IPC commands on one end of a pipe like mpv does,
// interleaving an unrelated event before every reply.
func fakeMPV(t *testing.T, conn net.Conn, reply func(cmd []any) string) <-chan []any {
	t.Helper()
	seen := make(chan []any, 8)
	go func() {
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var req struct {
				Command   []any `json:"command"`
				RequestID int   `json:"request_id"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				return
			}
			seen <- req.Command
			fmt.Fprintf(conn, "{\"event\":\"idle\"}\n{\"data\":null,\"request_id\":%d,\"error\":\"%s\"}\n",
				req.RequestID, reply(req.Command))
		}
	}()
	return seen
}

func TestIPCLoadfile(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	seen := fakeMPV(t, server, func([]any) string { return "success" })

	ipc := newIPCClient(client)
	if err := ipc.command(context.Background(), "loadfile", "https://cdn.example/ep.m3u8", "replace"); err != nil {
		t.Fatalf("command() error: %v", err)
	}
	got := <-seen
	want := []any{"loadfile", "https://cdn.example/ep.m3u8", "replace"}
	if !slices.Equal(got, want) {
		t.Errorf("mpv received %v, want %v", got, want)
	}
}

func TestIPCErrorReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	fakeMPV(t, server, func([]any) string { return "invalid parameter" })

	err := newIPCClient(client).command(context.Background(), "loadfile", "x", "replace")
	if err == nil || IsClosed(err) {
		t.Fatalf("expected command error, got %v", err)
	}
}

func TestIPCClosedPeer(t *testing.T) {
	client, server := net.Pipe()
	server.Close()

	err := newIPCClient(client).command(context.Background(), "loadfile", "x", "replace")
	if !IsClosed(err) {
		t.Fatalf("expected closed classification, got %v", err)
	}
}

func TestIPCTimeoutMarksChannelClosed(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Read requests but never answer.
	go func() {
		scanner := bufio.NewScanner(server)
		for scanner.Scan() {
		}
	}()

	ipc := newIPCClient(client)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := ipc.command(ctx, "loadfile", "x", "replace")
	if !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("first command: expected ErrTransportClosed, got %v", err)
	}

	err = ipc.command(context.Background(), "loadfile", "y", "replace")
	if !errors.Is(err, ErrTransportClosed) || !IsClosed(err) {
		t.Fatalf("second command: expected closed channel, got %v", err)
	}
}

func TestMPVArgs(t *testing.T) {
	m := &MPVLauncher{Fullscreen: true}
	args := m.Args("/tmp/x/sock")
	for _, want := range []string{"--idle=yes", "--input-ipc-server=/tmp/x/sock", "--fullscreen"} {
		if !slices.Contains(args, want) {
			t.Errorf("args %v missing %s", args, want)
		}
	}
	if slices.Contains((&MPVLauncher{}).Args("s"), "--fullscreen") {
		t.Error("fullscreen flag set without Fullscreen")
	}
}
