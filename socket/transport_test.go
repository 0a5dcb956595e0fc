package socket

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/Christopher-Hayes/mutter-desktop/desktop"
	"github.com/Christopher-Hayes/mutter-desktop/eventloop"
	"github.com/Christopher-Hayes/mutter-desktop/wsapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers wallpaper requests over the server end of a pipe.
type fakeServer struct {
	conn      net.Conn
	wallpaper string
	accept    bool
}

func (s *fakeServer) write(t *testing.T, msg wsapi.ServerMessage) {
	data, err := msg.MarshalBinary()
	if err != nil {
		t.Errorf("encode %s: %v", msg.Type, err)
		return
	}
	if _, err := s.conn.Write(data); err != nil {
		t.Logf("server write: %v", err)
	}
}

func (s *fakeServer) serve(t *testing.T) {
	buf := make([]byte, wsapi.ClientMessageSize)
	for {
		if _, err := io.ReadFull(s.conn, buf); err != nil {
			return
		}
		var req wsapi.ClientMessage
		if err := req.UnmarshalBinary(buf); err != nil {
			t.Errorf("server decode: %v", err)
			return
		}

		switch req.Type {
		case wsapi.SetWallpaper:
			if s.accept {
				s.wallpaper = req.Text()
			}
			s.write(t, wsapi.ServerMessage{Type: wsapi.DidSetWallpaper, Value: s.accept})
		case wsapi.GetWallpaper:
			reply := wsapi.ServerMessage{Type: wsapi.DidGetWallpaper}
			if err := reply.SetText(s.wallpaper); err != nil {
				t.Errorf("server text: %v", err)
				return
			}
			s.write(t, reply)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/mutter-desktop.sock", DefaultPath())

	t.Setenv("XDG_RUNTIME_DIR", "")
	assert.Equal(t, "mutter-desktop.sock", filepath.Base(DefaultPath()))
}

func TestSendWritesOneFrame(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	tr := NewTransport(client)
	defer tr.Close()

	msg := wsapi.ClientMessage{Type: wsapi.SetWallpaper}
	require.NoError(t, msg.SetText("bg.png"))

	errCh := make(chan error, 1)
	go func() { errCh <- tr.Send(context.Background(), msg) }()

	frame := make([]byte, wsapi.ClientMessageSize)
	_, err := io.ReadFull(server, frame)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	assert.Equal(t, uint32(wsapi.SetWallpaper), binary.LittleEndian.Uint32(frame[0:4]))
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(frame[4:8]))
	assert.Equal(t, "bg.png", string(frame[8:14]))
}

func TestReceiveReadsFrames(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	tr := NewTransport(client)
	defer tr.Close()

	want := wsapi.ServerMessage{Type: wsapi.ScreenRectChanged, Rect: wsapi.Rect{Width: 2560, Height: 1440}}
	go (&fakeServer{conn: server}).write(t, want)

	got, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReceiveSkipsInvalidFrames(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	tr := NewTransport(client)
	defer tr.Close()

	unknownType := make([]byte, wsapi.ServerMessageSize)
	binary.LittleEndian.PutUint32(unknownType[0:4], 99)
	badLength := make([]byte, wsapi.ServerMessageSize)
	binary.LittleEndian.PutUint32(badLength[0:4], uint32(wsapi.DidGetWallpaper))
	binary.LittleEndian.PutUint32(badLength[24:28], wsapi.MaxTextLength+1)

	want := wsapi.ServerMessage{Type: wsapi.DidSetWallpaper, Value: true}
	go func() {
		server.Write(make([]byte, wsapi.ServerMessageSize))
		server.Write(unknownType)
		server.Write(badLength)
		(&fakeServer{conn: server}).write(t, want)
	}()

	got, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoopSurvivesInvalidFrames(t *testing.T) {
	client, server := net.Pipe()
	srv := &fakeServer{conn: server, wallpaper: "bg.png", accept: true}

	loop := eventloop.New(NewTransport(client), nil)
	defer loop.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	// An unknown message type ahead of the server's normal traffic.
	unknownType := make([]byte, wsapi.ServerMessageSize)
	binary.LittleEndian.PutUint32(unknownType[0:4], 42)
	go func() {
		if _, err := server.Write(unknownType); err != nil {
			return
		}
		srv.serve(t)
	}()

	path, err := desktop.New(loop).Wallpaper(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bg.png", path)
	assert.NoError(t, loop.Err())
}

func TestReceiveHonoursContext(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	tr := NewTransport(client)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReceiveAfterPeerClosed(t *testing.T) {
	client, server := net.Pipe()
	tr := NewTransport(client)
	defer tr.Close()
	server.Close()

	_, err := tr.Receive(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestDialMissingSocket(t *testing.T) {
	_, err := Dial(context.Background(), filepath.Join(t.TempDir(), "missing.sock"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Troubleshooting")
}

func TestDesktopOverSocket(t *testing.T) {
	client, server := net.Pipe()
	srv := &fakeServer{conn: server, wallpaper: "/usr/share/backgrounds/default.png", accept: true}
	go srv.serve(t)

	loop := eventloop.New(NewTransport(client), nil)
	defer loop.Close()
	d := desktop.New(loop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	path, err := d.Wallpaper(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/usr/share/backgrounds/default.png", path)

	ok, err := d.SetWallpaper(ctx, "bg.png")
	require.NoError(t, err)
	assert.True(t, ok)

	path, err = d.Wallpaper(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bg.png", path)
}
