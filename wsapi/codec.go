package wsapi

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

var byteOrder = binary.LittleEndian

// MarshalBinary encodes the message into a ClientMessageSize frame.
func (m ClientMessage) MarshalBinary() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, ClientMessageSize))
	if err := binary.Write(buf, byteOrder, &m); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.Type, err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a ClientMessageSize frame. The receiver is left
// untouched when the frame is invalid.
func (m *ClientMessage) UnmarshalBinary(data []byte) error {
	if len(data) != ClientMessageSize {
		return fmt.Errorf("%w: client frame is %d bytes, want %d", ErrInvalidMessage, len(data), ClientMessageSize)
	}
	var decoded ClientMessage
	if err := binary.Read(bytes.NewReader(data), byteOrder, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := decoded.validate(); err != nil {
		return err
	}
	*m = decoded
	return nil
}

func (m *ClientMessage) validate() error {
	switch m.Type {
	case SetWallpaper, GetWallpaper:
	default:
		return fmt.Errorf("%w: unknown client message type %d", ErrInvalidMessage, uint32(m.Type))
	}
	return validateTextLength(m.TextLength)
}

// MarshalBinary encodes the message into a ServerMessageSize frame.
func (m ServerMessage) MarshalBinary() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, ServerMessageSize))
	if err := binary.Write(buf, byteOrder, &m); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.Type, err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a ServerMessageSize frame. A text length that does
// not fit the text field is rejected rather than trusted.
func (m *ServerMessage) UnmarshalBinary(data []byte) error {
	if len(data) != ServerMessageSize {
		return fmt.Errorf("%w: server frame is %d bytes, want %d", ErrInvalidMessage, len(data), ServerMessageSize)
	}
	var decoded ServerMessage
	if err := binary.Read(bytes.NewReader(data), byteOrder, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := decoded.validate(); err != nil {
		return err
	}
	*m = decoded
	return nil
}

func (m *ServerMessage) validate() error {
	switch m.Type {
	case ScreenRectChanged, DidSetWallpaper, DidGetWallpaper:
	default:
		return fmt.Errorf("%w: unknown server message type %d", ErrInvalidMessage, uint32(m.Type))
	}
	return validateTextLength(m.TextLength)
}

func validateTextLength(n int32) error {
	if n < 0 || n >= MaxTextLength {
		return fmt.Errorf("%w: text length %d outside [0, %d)", ErrInvalidMessage, n, MaxTextLength)
	}
	return nil
}
