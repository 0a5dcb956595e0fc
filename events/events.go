// Package events describes desktop changes worth recording and the sinks
// that record them.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Christopher-Hayes/mutter-desktop/wsapi"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Kind names what happened.
type Kind string

const (
	KindWallpaperSet      Kind = "wallpaper_set"
	KindWallpaperQueried  Kind = "wallpaper_queried"
	KindScreenRectChanged Kind = "screen_rect_changed"
)

// Event is one observed desktop change.
type Event struct {
	ID         uuid.UUID  `json:"id"`
	Kind       Kind       `json:"kind"`
	Wallpaper  string     `json:"wallpaper,omitempty"`
	Success    bool       `json:"success"`
	Rect       wsapi.Rect `json:"rect"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func newEvent(kind Kind) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		OccurredAt: time.Now(),
	}
}

// NewWallpaperSet records a SetWallpaper round trip and the server's answer.
func NewWallpaperSet(path string, success bool) Event {
	ev := newEvent(KindWallpaperSet)
	ev.Wallpaper = path
	ev.Success = success
	return ev
}

// NewWallpaperQueried records the wallpaper reported by the server.
func NewWallpaperQueried(path string) Event {
	ev := newEvent(KindWallpaperQueried)
	ev.Wallpaper = path
	ev.Success = true
	return ev
}

// NewScreenRectChanged records a screen geometry notification.
func NewScreenRectChanged(rect wsapi.Rect) Event {
	ev := newEvent(KindScreenRectChanged)
	ev.Rect = rect
	ev.Success = true
	return ev
}

// Validate checks an event before it is stored or sent.
func (e Event) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("id is required")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	switch e.Kind {
	case KindWallpaperSet:
		if e.Wallpaper == "" {
			return fmt.Errorf("wallpaper is required for %s", e.Kind)
		}
	case KindWallpaperQueried:
	case KindScreenRectChanged:
		if e.Wallpaper != "" {
			return fmt.Errorf("wallpaper must be empty for %s", e.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if len(e.Wallpaper) >= wsapi.MaxTextLength {
		return fmt.Errorf("wallpaper is %d bytes, limit is %d", len(e.Wallpaper), wsapi.MaxTextLength-1)
	}
	return nil
}

// Sink records events.
type Sink interface {
	Submit(ctx context.Context, ev Event) error
	Close() error
}

// BatchSink is a Sink that can record several events in one call.
type BatchSink interface {
	Sink
	SubmitBatch(ctx context.Context, batch []Event) error
}

// Fanout submits every event to all of its sinks.
type Fanout []Sink

var _ BatchSink = Fanout(nil)

// Submit delivers ev to all sinks concurrently and returns the first error.
// Every sink gets the event even when another one fails.
func (f Fanout) Submit(ctx context.Context, ev Event) error {
	var g errgroup.Group
	for _, sink := range f {
		sink := sink
		g.Go(func() error {
			return sink.Submit(ctx, ev)
		})
	}
	return g.Wait()
}

// SubmitBatch delivers batch to all sinks concurrently. Sinks that cannot
// take a batch get the events one at a time.
func (f Fanout) SubmitBatch(ctx context.Context, batch []Event) error {
	var g errgroup.Group
	for _, sink := range f {
		sink := sink
		g.Go(func() error {
			if bs, ok := sink.(BatchSink); ok {
				return bs.SubmitBatch(ctx, batch)
			}
			return submitEach(ctx, sink, batch)
		})
	}
	return g.Wait()
}

// Close closes all sinks and reports every failure.
func (f Fanout) Close() error {
	var result *multierror.Error
	for _, sink := range f {
		if err := sink.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
