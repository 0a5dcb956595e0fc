// Package shell carries desktop messages over the D-Bus session bus, to and
// from the GNOME Shell Desktop extension. Requests are posted as a method
// call; replies and notifications come back as Message signals.
package shell

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Christopher-Hayes/mutter-desktop/internal/common"
	"github.com/Christopher-Hayes/mutter-desktop/wsapi"
	"github.com/fatih/color"
	"github.com/godbus/dbus/v5"
)

const signalBufferSize = 32

// Transport implements eventloop.Transport on top of a D-Bus connection.
type Transport struct {
	conn     *dbus.Conn
	obj      dbus.BusObject
	signals  chan *dbus.Signal
	ownsConn bool

	closeOnce sync.Once
	closed    chan struct{}

	DebugMode bool
}

// Dial connects to the session bus and subscribes to the extension's
// Message signal.
func Dial(ctx context.Context) (*Transport, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	t, err := NewTransport(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	t.ownsConn = true
	return t, nil
}

// NewTransport uses an existing connection. The connection stays open when
// the transport is closed.
func NewTransport(conn *dbus.Conn) (*Transport, error) {
	if err := conn.AddMatchSignal(matchOptions()...); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", common.DesktopMessageSignal, err)
	}

	signals := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(signals)

	return &Transport{
		conn:    conn,
		obj:     conn.Object(common.DesktopDestination, dbus.ObjectPath(common.DesktopObjectPath)),
		signals: signals,
		closed:  make(chan struct{}),
	}, nil
}

func matchOptions() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(dbus.ObjectPath(common.DesktopObjectPath)),
		dbus.WithMatchInterface(common.DesktopInterface),
		dbus.WithMatchMember(common.DesktopMessageMember),
	}
}

// debugLog prints debug messages if debug mode is enabled
func (t *Transport) debugLog(format string, args ...interface{}) {
	if t.DebugMode {
		color.Cyan("[SHELL DEBUG] "+format, args...)
	}
}

// Send posts msg to the extension.
func (t *Transport) Send(ctx context.Context, msg wsapi.ClientMessage) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	t.debugLog("Posting %s (%d bytes)", msg.Type, len(data))
	call := t.obj.CallWithContext(ctx, common.DesktopPostMethod, 0, data)
	if call.Err != nil {
		return fmt.Errorf("failed to call Desktop.Post: %w\n\nTroubleshooting:\n  1. Verify extension is installed: gnome-extensions list | grep desktop\n  2. Enable if needed: gnome-extensions enable desktop-dbus@mutter-desktop\n  3. Test D-Bus manually: gdbus introspect --session --dest %s --object-path %s", call.Err, common.DesktopDestination, common.DesktopObjectPath)
	}
	return nil
}

// Receive returns the next message signalled by the extension. Signals that
// do not carry a valid frame are skipped.
func (t *Transport) Receive(ctx context.Context) (wsapi.ServerMessage, error) {
	for {
		select {
		case sig, ok := <-t.signals:
			if !ok {
				return wsapi.ServerMessage{}, io.EOF
			}
			msg, err := decodeSignal(sig)
			if err != nil {
				t.debugLog("Skipping signal %s: %v", sig.Name, err)
				continue
			}
			return msg, nil
		case <-t.closed:
			return wsapi.ServerMessage{}, io.EOF
		case <-ctx.Done():
			return wsapi.ServerMessage{}, ctx.Err()
		}
	}
}

func decodeSignal(sig *dbus.Signal) (wsapi.ServerMessage, error) {
	if sig == nil {
		return wsapi.ServerMessage{}, fmt.Errorf("nil signal")
	}
	if sig.Name != common.DesktopMessageSignal || sig.Path != dbus.ObjectPath(common.DesktopObjectPath) {
		return wsapi.ServerMessage{}, fmt.Errorf("unexpected signal %s on %s", sig.Name, sig.Path)
	}
	if len(sig.Body) != 1 {
		return wsapi.ServerMessage{}, fmt.Errorf("expected 1 argument, got %d", len(sig.Body))
	}
	data, ok := sig.Body[0].([]byte)
	if !ok {
		return wsapi.ServerMessage{}, fmt.Errorf("expected a byte array, got %T", sig.Body[0])
	}

	var msg wsapi.ServerMessage
	if err := msg.UnmarshalBinary(data); err != nil {
		return wsapi.ServerMessage{}, err
	}
	return msg, nil
}

// Close unsubscribes from the signal and, for dialed transports, closes the
// connection. A blocked Receive returns io.EOF.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		if t.conn == nil {
			return
		}
		t.conn.RemoveSignal(t.signals)
		if t.ownsConn {
			err = t.conn.Close()
			return
		}
		err = t.conn.RemoveMatchSignal(matchOptions()...)
	})
	return err
}
