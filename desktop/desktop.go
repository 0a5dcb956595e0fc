// Package desktop exposes desktop-wide state owned by the desktop server:
// the screen geometry, pushed by the server, and the wallpaper, queried on
// every read.
//
// Example usage:
//
//	loop := eventloop.New(transport, desktop.The())
//	loop.MakeCurrent()
//	go loop.Run(ctx)
//
//	ok, err := desktop.The().SetWallpaper(ctx, "/usr/share/backgrounds/bg.png")
package desktop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Christopher-Hayes/mutter-desktop/eventloop"
	"github.com/Christopher-Hayes/mutter-desktop/wsapi"
)

// Rect is the screen geometry.
type Rect = wsapi.Rect

// ErrNoEventLoop implies a wallpaper request was made with no channel
// injected and no current event loop.
var ErrNoEventLoop = errors.New("no event loop to send the request on")

// Channel sends a request and blocks until the reply of the given type.
// *eventloop.Loop implements it.
type Channel interface {
	SyncRequest(ctx context.Context, msg wsapi.ClientMessage, expect wsapi.ServerMessageType) (wsapi.ServerMessage, error)
}

// Desktop caches the last screen geometry reported by the server and
// forwards wallpaper reads and writes to it.
type Desktop struct {
	mu   sync.RWMutex
	rect Rect

	ch Channel
}

var (
	theOnce sync.Once
	the     *Desktop
)

// The returns the process-wide Desktop. It is created on first use, lives
// until the process exits and sends its requests on eventloop.Current().
func The() *Desktop {
	theOnce.Do(func() {
		the = &Desktop{}
	})
	return the
}

// New returns a Desktop that sends its requests on ch.
func New(ch Channel) *Desktop {
	return &Desktop{ch: ch}
}

// DidReceiveScreenRect records new screen geometry. Only an event loop can
// produce a valid Badge; calls without one are ignored.
func (d *Desktop) DidReceiveScreenRect(b eventloop.Badge, rect Rect) {
	if !b.Valid() {
		return
	}
	d.mu.Lock()
	d.rect = rect
	d.mu.Unlock()
}

// ScreenRect returns the last geometry reported by the server, or the zero
// Rect if nothing was reported yet.
func (d *Desktop) ScreenRect() Rect {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rect
}

// SetWallpaper asks the server to use path as the wallpaper and reports
// whether it did. A path of wsapi.MaxTextLength bytes or more fails with
// wsapi.ErrTextTooLong before anything is sent.
func (d *Desktop) SetWallpaper(ctx context.Context, path string) (bool, error) {
	msg := wsapi.ClientMessage{Type: wsapi.SetWallpaper}
	if err := msg.SetText(path); err != nil {
		return false, fmt.Errorf("invalid wallpaper path: %w", err)
	}

	ch, err := d.channel()
	if err != nil {
		return false, err
	}

	reply, err := ch.SyncRequest(ctx, msg, wsapi.DidSetWallpaper)
	if err != nil {
		return false, fmt.Errorf("failed to set wallpaper: %w", err)
	}
	return reply.Value, nil
}

// Wallpaper asks the server for the current wallpaper path.
func (d *Desktop) Wallpaper(ctx context.Context) (string, error) {
	ch, err := d.channel()
	if err != nil {
		return "", err
	}

	reply, err := ch.SyncRequest(ctx, wsapi.ClientMessage{Type: wsapi.GetWallpaper}, wsapi.DidGetWallpaper)
	if err != nil {
		return "", fmt.Errorf("failed to get wallpaper: %w", err)
	}
	return reply.Text(), nil
}

func (d *Desktop) channel() (Channel, error) {
	if d.ch != nil {
		return d.ch, nil
	}
	// A nil *Loop stored in the interface would not compare equal to nil.
	if loop := eventloop.Current(); loop != nil {
		return loop, nil
	}
	return nil, ErrNoEventLoop
}
