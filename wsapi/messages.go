// Package wsapi defines the fixed-layout messages exchanged with the desktop
// server. Every message has the same size on the wire regardless of its type,
// so a frame can be read with a single fixed-length read.
package wsapi

import "fmt"

// MaxTextLength is the size of the text field carried by every message.
// Text stored in it must be strictly shorter than this.
const MaxTextLength = 256

// Frame sizes in bytes.
const (
	ClientMessageSize = 4 + 4 + MaxTextLength
	ServerMessageSize = 4 + 1 + 3 + 16 + 4 + MaxTextLength
)

// Rect is an axis-aligned rectangle in screen coordinates.
type Rect struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// ClientMessageType tags a request sent to the server.
type ClientMessageType uint32

const (
	InvalidClientMessage ClientMessageType = iota
	SetWallpaper
	GetWallpaper
)

func (t ClientMessageType) String() string {
	switch t {
	case SetWallpaper:
		return "SetWallpaper"
	case GetWallpaper:
		return "GetWallpaper"
	default:
		return fmt.Sprintf("ClientMessageType(%d)", uint32(t))
	}
}

// ServerMessageType tags a reply or notification sent by the server.
type ServerMessageType uint32

const (
	InvalidServerMessage ServerMessageType = iota
	ScreenRectChanged
	DidSetWallpaper
	DidGetWallpaper
)

func (t ServerMessageType) String() string {
	switch t {
	case ScreenRectChanged:
		return "ScreenRectChanged"
	case DidSetWallpaper:
		return "DidSetWallpaper"
	case DidGetWallpaper:
		return "DidGetWallpaper"
	default:
		return fmt.Sprintf("ServerMessageType(%d)", uint32(t))
	}
}

// ClientMessage is a request from the client. Field order is the wire order.
type ClientMessage struct {
	Type       ClientMessageType
	TextLength int32
	TextBuf    [MaxTextLength]byte
}

// SetText stores s in the text field. It fails with ErrTextTooLong when s
// does not fit, leaving the message unchanged.
func (m *ClientMessage) SetText(s string) error {
	return putText(&m.TextBuf, &m.TextLength, s)
}

// Text returns the stored text.
func (m *ClientMessage) Text() string {
	return textOf(&m.TextBuf, m.TextLength)
}

// ServerMessage is a reply or a notification from the server. Value is set
// on DidSetWallpaper, Rect on ScreenRectChanged and the text on
// DidGetWallpaper. Field order is the wire order.
type ServerMessage struct {
	Type       ServerMessageType
	Value      bool
	_          [3]byte
	Rect       Rect
	TextLength int32
	TextBuf    [MaxTextLength]byte
}

// SetText stores s in the text field. It fails with ErrTextTooLong when s
// does not fit, leaving the message unchanged.
func (m *ServerMessage) SetText(s string) error {
	return putText(&m.TextBuf, &m.TextLength, s)
}

// Text returns the stored text. The length is clamped to the buffer, so a
// message with a bogus TextLength never reads past the text field.
func (m *ServerMessage) Text() string {
	return textOf(&m.TextBuf, m.TextLength)
}

func putText(dst *[MaxTextLength]byte, n *int32, s string) error {
	if len(s) >= MaxTextLength {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrTextTooLong, len(s), MaxTextLength-1)
	}
	*dst = [MaxTextLength]byte{}
	copy(dst[:], s)
	*n = int32(len(s))
	return nil
}

func textOf(src *[MaxTextLength]byte, n int32) string {
	switch {
	case n < 0:
		n = 0
	case n > MaxTextLength:
		n = MaxTextLength
	}
	return string(src[:n])
}
