// Package protocol implements the fixed-size chat frame exchanged between
// clients and the relay, and the classification of inbound frames.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// IDSize is the width of the little-endian session id at offset 0.
	IDSize = 4
	// FieldSize is the width of each zero-padded text field.
	FieldSize = 256
	// FrameSize is the exact length of every frame on the wire.
	FrameSize = IDSize + 2*FieldSize

	field1Offset = IDSize
	field2Offset = IDSize + FieldSize
)

var (
	// ErrShortFrame is returned when a datagram cannot hold a full frame.
	ErrShortFrame = errors.New("protocol: short frame")
	// ErrFieldTooLong is returned when a text field does not fit in FieldSize bytes.
	ErrFieldTooLong = errors.New("protocol: field exceeds 256 bytes")
)

// Frame is one logical chat message: a session id and two text fields.
type Frame struct {
	ID     int32
	Field1 string
	Field2 string
}

// String renders the frame the way the relay traces it.
func (f Frame) String() string {
	return fmt.Sprintf("<%d %s %s>", f.ID, f.Field1, f.Field2)
}

// Decode interprets the first FrameSize bytes of b as a frame. Bytes past
// FrameSize are ignored.
//
// Precondition: none; short input is reported rather than read past.
// Postcondition: Returns the decoded Frame, or ErrShortFrame if len(b) < FrameSize.
func Decode(b []byte) (Frame, error) {
	if len(b) < FrameSize {
		return Frame{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortFrame, len(b), FrameSize)
	}
	return Frame{
		ID:     int32(binary.LittleEndian.Uint32(b[0:IDSize])),
		Field1: cString(b[field1Offset : field1Offset+FieldSize]),
		Field2: cString(b[field2Offset : field2Offset+FieldSize]),
	}, nil
}

// Encode serializes f into exactly FrameSize bytes.
//
// Postcondition: Returns a FrameSize-byte slice, or ErrFieldTooLong if either
// field's byte length exceeds FieldSize. Nothing is truncated.
func Encode(f Frame) ([]byte, error) {
	buf := make([]byte, FrameSize)
	if err := EncodeInto(buf, f); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeInto serializes f into buf, which must be at least FrameSize bytes.
// Unused field bytes are zeroed.
func EncodeInto(buf []byte, f Frame) error {
	if len(buf) < FrameSize {
		return fmt.Errorf("%w: buffer of %d bytes", ErrShortFrame, len(buf))
	}
	if len(f.Field1) > FieldSize {
		return fmt.Errorf("%w: field1 is %d bytes", ErrFieldTooLong, len(f.Field1))
	}
	if len(f.Field2) > FieldSize {
		return fmt.Errorf("%w: field2 is %d bytes", ErrFieldTooLong, len(f.Field2))
	}
	binary.LittleEndian.PutUint32(buf[0:IDSize], uint32(f.ID))
	putField(buf[field1Offset:field1Offset+FieldSize], f.Field1)
	putField(buf[field2Offset:field2Offset+FieldSize], f.Field2)
	return nil
}

// cString returns the bytes of field up to the first zero byte, or all of it.
func cString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return string(field[:i])
	}
	return string(field)
}

func putField(dst []byte, s string) {
	n := copy(dst, s)
	clear(dst[n:])
}
