package wsapi

import "errors"

var (
	// ErrTextTooLong implies a string does not fit in the fixed text field.
	ErrTextTooLong = errors.New("text does not fit in message")

	// ErrInvalidMessage implies a frame has the wrong size, an unknown type
	// or a text length outside the text field.
	ErrInvalidMessage = errors.New("invalid message")
)
