// Package socket carries desktop messages over a unix stream socket as
// back-to-back fixed-size frames.
package socket

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Christopher-Hayes/mutter-desktop/wsapi"
	"github.com/fatih/color"
)

const socketName = "mutter-desktop.sock"

// DefaultPath returns the socket path used when none is configured.
func DefaultPath() string {
	// Linux: prefer XDG_RUNTIME_DIR
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, socketName)
	}
	return filepath.Join(os.TempDir(), socketName)
}

// Transport implements eventloop.Transport on a stream connection.
type Transport struct {
	conn    net.Conn
	writeMu sync.Mutex
	readBuf [wsapi.ServerMessageSize]byte

	DebugMode bool
}

// Dial connects to the server listening on path.
func Dial(ctx context.Context, path string) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w\n\nTroubleshooting:\n  1. Verify the desktop server is running\n  2. Check the socket exists: ls -l %s\n  3. Override the path with --socket or DESKTOP_SOCKET", path, err, path)
	}
	return NewTransport(conn), nil
}

// NewTransport wraps an established connection.
func NewTransport(conn net.Conn) *Transport {
	return &Transport{conn: conn}
}

// debugLog prints debug messages if debug mode is enabled
func (t *Transport) debugLog(format string, args ...interface{}) {
	if t.DebugMode {
		color.Cyan("[SOCKET DEBUG] "+format, args...)
	}
}

// Send writes one client frame.
func (t *Transport) Send(ctx context.Context, msg wsapi.ClientMessage) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { t.conn.SetWriteDeadline(time.Now()) })
	defer stop()

	t.debugLog("Writing %s (%d bytes)", msg.Type, len(data))
	if _, err := t.conn.Write(data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to write %s: %w", msg.Type, err)
	}
	return nil
}

// Receive reads the next valid server frame. Frames that do not decode are
// skipped, since every frame has the same size and the stream stays aligned.
// It must not be called concurrently. Cancelling ctx mid-frame leaves the
// stream unusable; close it afterwards.
func (t *Transport) Receive(ctx context.Context) (wsapi.ServerMessage, error) {
	t.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { t.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		if _, err := io.ReadFull(t.conn, t.readBuf[:]); err != nil {
			if ctx.Err() != nil {
				return wsapi.ServerMessage{}, ctx.Err()
			}
			return wsapi.ServerMessage{}, err
		}

		var msg wsapi.ServerMessage
		if err := msg.UnmarshalBinary(t.readBuf[:]); err != nil {
			t.debugLog("Skipping frame: %v", err)
			continue
		}
		t.debugLog("Read %s", msg.Type)
		return msg, nil
	}
}

// Close closes the connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}
