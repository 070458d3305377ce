package pgwire

import (
	"encoding/binary"
	"fmt"
)

const (
	// Special request codes carried in untyped startup-category frames.
	SSLRequestCode    = 80877103
	CancelRequestCode = 80877102

	// Supported protocol major version.
	ProtocolMajor = 3
)

// Frame is one complete protocol message. Startup-category frames have
// Type 0 and their payload starts at the 32-bit request/version code;
// typed frames carry the type byte and the payload after the length
// field.
type Frame struct {
	Type    byte
	Payload []byte
}

// Startup reports whether the frame belongs to the untyped
// startup category.
func (f *Frame) Startup() bool {
	return f.Type == 0
}

// Code returns the 32-bit code of a startup-category frame.
func (f *Frame) Code() uint32 {
	return binary.BigEndian.Uint32(f.Payload[:4])
}

// Split extracts the next complete frame from buf. It returns the
// frame and the strictly shorter remainder, or (nil, buf, nil) when
// more bytes are needed. The startup flag selects the positional
// parse used at connection birth: a length-prefixed untyped frame is
// only recognized there.
//
// Split never reads past the declared end of a frame; a declared
// length that cannot be valid yields a framing error with the buffer
// untouched.
func Split(buf []byte, startup bool) (*Frame, []byte, error) {
	if startup {
		if len(buf) < 8 {
			return nil, buf, nil
		}
		length := binary.BigEndian.Uint32(buf[:4])
		code := binary.BigEndian.Uint32(buf[4:8])

		switch {
		case length == 8 && code == SSLRequestCode:
			return &Frame{Type: 0, Payload: buf[4:8]}, buf[8:], nil
		case length == 16 && code == CancelRequestCode:
			if len(buf) < 16 {
				return nil, buf, nil
			}
			return &Frame{Type: 0, Payload: buf[4:16]}, buf[16:], nil
		case code>>16 == ProtocolMajor:
			if length < 8 {
				return nil, buf, fmt.Errorf("startup frame length %d below minimum", length)
			}
			if uint32(len(buf)) < length {
				return nil, buf, nil
			}
			return &Frame{Type: 0, Payload: buf[4:length]}, buf[length:], nil
		}
		// Not a recognized untyped frame; fall through to the typed
		// parse and let the state machine reject the result.
	}

	if len(buf) < 5 {
		return nil, buf, nil
	}
	length := binary.BigEndian.Uint32(buf[1:5])
	if length < 4 {
		return nil, buf, fmt.Errorf("message type %q declares length %d below minimum", buf[0], length)
	}
	total := 1 + int(length)
	if len(buf) < total {
		return nil, buf, nil
	}
	return &Frame{Type: buf[0], Payload: buf[5:total]}, buf[total:], nil
}
