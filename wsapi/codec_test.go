package wsapi

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameSizes(t *testing.T) {
	assert.Equal(t, ClientMessageSize, binary.Size(ClientMessage{}))
	assert.Equal(t, ServerMessageSize, binary.Size(ServerMessage{}))
}

func TestSetText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "empty", text: ""},
		{name: "short path", text: "/usr/share/backgrounds/bg.png"},
		{name: "longest that fits", text: strings.Repeat("a", MaxTextLength-1)},
		{name: "exactly the buffer", text: strings.Repeat("a", MaxTextLength), wantErr: true},
		{name: "over the buffer", text: strings.Repeat("a", MaxTextLength+10), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg ClientMessage
			err := msg.SetText(tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrTextTooLong)
				assert.Equal(t, ClientMessage{}, msg, "message must be left untouched")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int32(len(tt.text)), msg.TextLength)
			assert.Equal(t, tt.text, msg.Text())
		})
	}
}

func TestSetTextClearsPreviousText(t *testing.T) {
	var msg ServerMessage
	require.NoError(t, msg.SetText("a-much-longer-name.png"))
	require.NoError(t, msg.SetText("bg.png"))

	assert.Equal(t, "bg.png", msg.Text())
	assert.Equal(t, byte(0), msg.TextBuf[len("bg.png")])
}

func TestTextClampsLength(t *testing.T) {
	msg := ServerMessage{Type: DidGetWallpaper, TextLength: MaxTextLength + 100}
	copy(msg.TextBuf[:], strings.Repeat("x", MaxTextLength))
	assert.Len(t, msg.Text(), MaxTextLength)

	msg.TextLength = -4
	assert.Equal(t, "", msg.Text())
}

func TestClientMessageRoundTrip(t *testing.T) {
	paths := []string{"", "bg.png", "/home/user/Pictures/Wallpapers/mountain lake.jpg", strings.Repeat("p", MaxTextLength-1)}

	for _, path := range paths {
		msg := ClientMessage{Type: SetWallpaper}
		require.NoError(t, msg.SetText(path))

		data, err := msg.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, ClientMessageSize)

		var decoded ClientMessage
		require.NoError(t, decoded.UnmarshalBinary(data))
		assert.Equal(t, msg, decoded)
		assert.Equal(t, path, decoded.Text())
	}
}

func TestServerMessageRoundTrip(t *testing.T) {
	rectChanged := ServerMessage{Type: ScreenRectChanged, Rect: Rect{X: -1920, Y: 0, Width: 3840, Height: 1080}}
	didSet := ServerMessage{Type: DidSetWallpaper, Value: true}
	didGet := ServerMessage{Type: DidGetWallpaper}
	require.NoError(t, didGet.SetText("bg.png"))

	for _, msg := range []ServerMessage{rectChanged, didSet, didGet} {
		t.Run(msg.Type.String(), func(t *testing.T) {
			data, err := msg.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, data, ServerMessageSize)

			var decoded ServerMessage
			require.NoError(t, decoded.UnmarshalBinary(data))
			assert.Equal(t, msg, decoded)
		})
	}
}

func TestServerMessageLayout(t *testing.T) {
	msg := ServerMessage{Type: DidGetWallpaper}
	require.NoError(t, msg.SetText("bg.png"))

	data, err := msg.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, uint32(DidGetWallpaper), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, "bg.png", string(data[28:34]))
}

func TestUnmarshalRejectsInvalidFrames(t *testing.T) {
	valid := ServerMessage{Type: DidGetWallpaper}
	require.NoError(t, valid.SetText("bg.png"))
	data, err := valid.MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame func() []byte
	}{
		{
			name:  "short frame",
			frame: func() []byte { return data[:ServerMessageSize-1] },
		},
		{
			name: "unknown type",
			frame: func() []byte {
				b := append([]byte(nil), data...)
				binary.LittleEndian.PutUint32(b[0:4], 99)
				return b
			},
		},
		{
			name: "text length past the buffer",
			frame: func() []byte {
				b := append([]byte(nil), data...)
				binary.LittleEndian.PutUint32(b[24:28], MaxTextLength+1)
				return b
			},
		},
		{
			name: "negative text length",
			frame: func() []byte {
				b := append([]byte(nil), data...)
				binary.LittleEndian.PutUint32(b[24:28], 0xffffffff)
				return b
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ServerMessage{Type: DidSetWallpaper, Value: true}
			err := msg.UnmarshalBinary(tt.frame())
			require.ErrorIs(t, err, ErrInvalidMessage)
			assert.Equal(t, ServerMessage{Type: DidSetWallpaper, Value: true}, msg)
		})
	}
}

func TestMarshalRejectsUnknownType(t *testing.T) {
	_, err := ClientMessage{}.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = ServerMessage{}.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestTypeStrings(t *testing.T) {
	assert.Equal(t, "SetWallpaper", SetWallpaper.String())
	assert.Equal(t, "GetWallpaper", GetWallpaper.String())
	assert.Equal(t, "DidSetWallpaper", DidSetWallpaper.String())
	assert.Equal(t, "ServerMessageType(42)", ServerMessageType(42).String())
	assert.Equal(t, "1920x1080+0+0", Rect{Width: 1920, Height: 1080}.String())
}
