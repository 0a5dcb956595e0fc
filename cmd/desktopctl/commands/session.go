package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Christopher-Hayes/mutter-desktop/config"
	"github.com/Christopher-Hayes/mutter-desktop/desktop"
	"github.com/Christopher-Hayes/mutter-desktop/eventloop"
	"github.com/Christopher-Hayes/mutter-desktop/events"
	"github.com/Christopher-Hayes/mutter-desktop/internal/logging"
	"github.com/Christopher-Hayes/mutter-desktop/postgres"
	"github.com/Christopher-Hayes/mutter-desktop/shell"
	"github.com/Christopher-Hayes/mutter-desktop/socket"
	"github.com/Christopher-Hayes/mutter-desktop/webhook"
	"github.com/Christopher-Hayes/mutter-desktop/wsapi"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

// resolveConfig merges the configuration and checks it.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// loadConfig merges the config file, the .env file, the environment and
// the flags that were set on the command line, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	envFile, err := flags.GetString("env-file")
	if err != nil {
		return cfg, err
	}
	if envFile != "" {
		if err := config.LoadEnvFile(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warningf("Failed to load %s: %v", envFile, err)
		}
	}
	cfg.ApplyEnv()

	for name, dst := range map[string]*string{
		"transport": &cfg.Transport,
		"socket":    &cfg.SocketPath,
		"timeout":   &cfg.Timeout,
		"postgres":  &cfg.Postgres,
		"webhook":   &cfg.Webhook,
	} {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return cfg, err
		}
	}
	for name, dst := range map[string]*bool{
		"debug":   &cfg.Debug,
		"verbose": &cfg.Verbose,
	} {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetBool(name); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// dialTransport connects to the desktop server with the configured transport.
func dialTransport(ctx context.Context, cfg config.Config) (eventloop.Transport, error) {
	switch cfg.Transport {
	case config.TransportDBus:
		t, err := shell.Dial(ctx)
		if err != nil {
			return nil, err
		}
		t.DebugMode = cfg.Debug
		return t, nil
	case config.TransportSocket:
		t, err := socket.Dial(ctx, cfg.SocketPath)
		if err != nil {
			return nil, err
		}
		t.DebugMode = cfg.Debug
		return t, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// openSinks creates the event sinks that are configured. Already opened
// sinks are closed again when a later one fails.
func openSinks(cfg config.Config) (events.Fanout, error) {
	var sinks events.Fanout

	if cfg.Postgres != "" {
		pg, err := postgres.NewClient(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		pg.DebugMode = cfg.Debug
		sinks = append(sinks, pg)
		logging.Verbosef("Recording events to PostgreSQL")
	}

	if cfg.Webhook != "" {
		wh, err := webhook.NewClient(cfg.Webhook)
		if err != nil {
			return nil, multierror.Append(err, sinks.Close()).ErrorOrNil()
		}
		timeout, err := cfg.WebhookRequestTimeout()
		if err != nil {
			return nil, multierror.Append(err, sinks.Close()).ErrorOrNil()
		}
		if timeout > 0 {
			wh.SetTimeout(timeout)
		}
		wh.DebugMode = cfg.Debug
		for key, value := range cfg.WebhookHeaders {
			wh.SetHeader(key, value)
		}
		sinks = append(sinks, wh)
		logging.Verbosef("Sending events to %s", cfg.Webhook)
	}

	return sinks, nil
}

// newRecordQueue delivers events to sinks off the caller's goroutine.
func newRecordQueue(sinks events.Sink) *events.Queue {
	return events.NewQueue(sinks, recordQueueSize, recordTimeout, func(batch []events.Event, err error) {
		logging.Warningf("Failed to record %d event(s): %v", len(batch), err)
	})
}

// rectRecorder passes screen geometry on to the desktop and records every
// change as an event. It runs on the event loop goroutine, so sinks must
// not block: use an events.Queue.
type rectRecorder struct {
	next    eventloop.ScreenRectReceiver
	sinks   events.Sink
	changes chan wsapi.Rect
}

var _ eventloop.ScreenRectReceiver = (*rectRecorder)(nil)

func newRectRecorder(next eventloop.ScreenRectReceiver, sinks events.Sink) *rectRecorder {
	return &rectRecorder{
		next:    next,
		sinks:   sinks,
		changes: make(chan wsapi.Rect, 1),
	}
}

// DidReceiveScreenRect runs on the event loop goroutine.
func (r *rectRecorder) DidReceiveScreenRect(b eventloop.Badge, rect wsapi.Rect) {
	if !b.Valid() {
		return
	}
	r.next.DidReceiveScreenRect(b, rect)

	record(context.Background(), r.sinks, events.NewScreenRectChanged(rect))

	// Keep only the latest geometry for a slow reader.
	select {
	case <-r.changes:
	default:
	}
	r.changes <- rect
}

// Changes delivers geometry updates. Updates a reader misses are replaced
// by newer ones.
func (r *rectRecorder) Changes() <-chan wsapi.Rect {
	return r.changes
}

// record queues ev for the sinks. Failures are logged and never fail the
// command.
func record(ctx context.Context, sinks events.Sink, ev events.Event) {
	if sinks == nil {
		return
	}
	if err := sinks.Submit(ctx, ev); err != nil {
		logging.Warningf("Failed to record %s event: %v", ev.Kind, err)
		return
	}
	logging.Debugf("Queued %s event %s", ev.Kind, ev.ID)
}

// session is one connection to the desktop server with the process-wide
// Desktop bound to it.
type session struct {
	cfg      config.Config
	timeout  time.Duration
	loop     *eventloop.Loop
	desktop  *desktop.Desktop
	sinks    *events.Queue
	recorder *rectRecorder
	cancel   context.CancelFunc
}

// openSession resolves the configuration, connects and starts the event loop.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	transport, err := dialTransport(dialCtx, cfg)
	if err != nil {
		return nil, err
	}
	logging.Verbosef("Connected using %s transport", cfg.Transport)

	sinks, err := openSinks(cfg)
	if err != nil {
		transport.Close()
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		timeout: timeout,
		desktop: desktop.The(),
		sinks:   newRecordQueue(sinks),
	}
	s.recorder = newRectRecorder(s.desktop, s.sinks)
	s.loop = eventloop.New(transport, s.recorder)
	s.loop.DebugMode = cfg.Debug
	s.loop.MakeCurrent()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() {
		if err := s.loop.Run(runCtx); err != nil && runCtx.Err() == nil {
			logging.Debugf("Event loop stopped: %v", err)
		}
	}()

	return s, nil
}

// requestContext bounds a single request by the configured timeout.
func (s *session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// Close stops the event loop, delivers the queued events and closes the
// transport and all sinks.
func (s *session) Close() error {
	s.cancel()
	var result *multierror.Error
	if err := s.loop.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.sinks.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
