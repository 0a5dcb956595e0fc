// Package eventloop owns the connection to the desktop server. A Loop reads
// every server message on one goroutine, hands screen geometry notifications
// to a receiver and answers synchronous requests with the first reply of the
// expected type.
//
// Example usage:
//
//	loop := eventloop.New(transport, desktop.The())
//	loop.MakeCurrent()
//	go loop.Run(ctx)
//
//	reply, err := loop.SyncRequest(ctx, msg, wsapi.DidGetWallpaper)
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Christopher-Hayes/mutter-desktop/wsapi"
	"github.com/fatih/color"
)

// replyQueueSize bounds replies that arrive while nobody is waiting.
const replyQueueSize = 16

var (
	// ErrClosed implies the loop stopped reading from its transport.
	ErrClosed = errors.New("event loop closed")
)

// Transport moves encoded messages between the client and the server.
type Transport interface {
	Send(ctx context.Context, msg wsapi.ClientMessage) error
	Receive(ctx context.Context) (wsapi.ServerMessage, error)
	Close() error
}

// ScreenRectReceiver is notified whenever the server reports new screen
// geometry. It is called on the loop goroutine and must not issue a
// SyncRequest on the same loop, since the loop cannot read the reply while
// it is blocked in the callback.
type ScreenRectReceiver interface {
	DidReceiveScreenRect(b Badge, rect wsapi.Rect)
}

// Loop is a synchronous request/reply channel over a Transport.
type Loop struct {
	transport Transport
	receiver  ScreenRectReceiver

	requestMu sync.Mutex
	replies   chan wsapi.ServerMessage

	stopOnce sync.Once
	done     chan struct{}
	err      error

	DebugMode bool
}

var current atomic.Pointer[Loop]

// Current returns the loop registered with MakeCurrent, or nil.
func Current() *Loop {
	return current.Load()
}

// New creates a loop reading from t. receiver may be nil when nothing
// cares about screen geometry.
func New(t Transport, receiver ScreenRectReceiver) *Loop {
	return &Loop{
		transport: t,
		receiver:  receiver,
		replies:   make(chan wsapi.ServerMessage, replyQueueSize),
		done:      make(chan struct{}),
	}
}

// MakeCurrent registers l as the process-wide current loop.
func (l *Loop) MakeCurrent() {
	current.Store(l)
}

// debugLog prints debug messages if debug mode is enabled
func (l *Loop) debugLog(format string, args ...interface{}) {
	if l.DebugMode {
		color.Cyan("[EVENTLOOP DEBUG] "+format, args...)
	}
}

// Run reads server messages until the transport fails or ctx ends. It must
// be called once. When it returns, pending and future requests fail with
// ErrClosed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		msg, err := l.transport.Receive(ctx)
		if err != nil {
			l.stop(err)
			return err
		}
		l.dispatch(msg)
	}
}

func (l *Loop) dispatch(msg wsapi.ServerMessage) {
	if msg.Type == wsapi.ScreenRectChanged {
		l.debugLog("Screen rect changed: %s", msg.Rect)
		if l.receiver != nil {
			l.receiver.DidReceiveScreenRect(mintBadge(), msg.Rect)
		}
		return
	}

	select {
	case l.replies <- msg:
	default:
		l.debugLog("Reply queue full, dropping %s", msg.Type)
	}
}

// SyncRequest sends msg and blocks until a reply of type expect arrives.
// Replies are matched by type alone; anything else is discarded. Requests
// from concurrent callers are sent one at a time. There is no built-in
// timeout: the call waits as long as ctx allows.
func (l *Loop) SyncRequest(ctx context.Context, msg wsapi.ClientMessage, expect wsapi.ServerMessageType) (wsapi.ServerMessage, error) {
	l.requestMu.Lock()
	defer l.requestMu.Unlock()

	select {
	case <-l.done:
		return wsapi.ServerMessage{}, l.err
	default:
	}

	l.drainStaleReplies()

	l.debugLog("Sending %s, waiting for %s", msg.Type, expect)
	if err := l.transport.Send(ctx, msg); err != nil {
		return wsapi.ServerMessage{}, fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}

	for {
		select {
		case reply := <-l.replies:
			if reply.Type == expect {
				return reply, nil
			}
			l.debugLog("Discarding %s while waiting for %s", reply.Type, expect)
		case <-l.done:
			return wsapi.ServerMessage{}, l.err
		case <-ctx.Done():
			return wsapi.ServerMessage{}, fmt.Errorf("waiting for %s: %w", expect, ctx.Err())
		}
	}
}

// drainStaleReplies drops replies left over from requests whose callers
// gave up, so they cannot answer the next request of the same type.
func (l *Loop) drainStaleReplies() {
	for {
		select {
		case reply := <-l.replies:
			l.debugLog("Dropping stale %s", reply.Type)
		default:
			return
		}
	}
}

// Close closes the transport and fails every pending request.
func (l *Loop) Close() error {
	l.stop(nil)
	return l.transport.Close()
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err returns why the loop stopped, or nil while it is running.
func (l *Loop) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

func (l *Loop) stop(cause error) {
	l.stopOnce.Do(func() {
		if cause == nil {
			l.err = ErrClosed
		} else {
			l.err = fmt.Errorf("%w: %w", ErrClosed, cause)
		}
		close(l.done)
	})
}
