package player

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ipcTimeout caps how long a single command waits for its reply.
const ipcTimeout = 10 * time.Second

// deadliner is implemented by net.Conn.
type deadliner interface {
	SetDeadline(t time.Time) error
}

type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id"`
}

type ipcReply struct {
	Error     string          `json:"error"`
	RequestID *int            `json:"request_id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
}

// ipcClient speaks mpv's line-delimited JSON protocol.
type ipcClient struct {
	rw      io.ReadWriter
	scanner *bufio.Scanner
	nextID  int
	// broken holds the read error that left the scanner unusable.
	broken error
}

func newIPCClient(rw io.ReadWriter) *ipcClient {
	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &ipcClient{rw: rw, scanner: scanner}
}

// command sends args and waits for the matching reply, skipping events.
func (c *ipcClient) command(ctx context.Context, args ...any) error {
	if c.broken != nil {
		return fmt.Errorf("reading ipc reply: %w: %w", ErrTransportClosed, c.broken)
	}
	c.nextID++
	id := c.nextID

	data, err := json.Marshal(ipcRequest{Command: args, RequestID: id})
	if err != nil {
		return fmt.Errorf("encoding ipc command: %w", err)
	}

	if d, ok := c.rw.(deadliner); ok {
		deadline := time.Now().Add(ipcTimeout)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		d.SetDeadline(deadline)
		defer d.SetDeadline(time.Time{})
	}

	if _, err := c.rw.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing ipc command: %w", err)
	}

	for c.scanner.Scan() {
		var reply ipcReply
		if err := json.Unmarshal(c.scanner.Bytes(), &reply); err != nil {
			continue
		}
		if reply.Event != "" || reply.RequestID == nil || *reply.RequestID != id {
			continue
		}
		if reply.Error != "success" {
			return fmt.Errorf("mpv %v: %s", args[0], reply.Error)
		}
		return nil
	}
	// A stopped scanner never resumes, so the channel is done either way.
	c.broken = c.scanner.Err()
	if c.broken == nil {
		c.broken = io.EOF
	}
	return fmt.Errorf("reading ipc reply: %w: %w", ErrTransportClosed, c.broken)
}
