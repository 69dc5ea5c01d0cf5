package message

import (
	"fmt"
)

const (
	// tag + two byte length
	HeaderLen int = 3

	// hard ceiling for any frame, both ends must agree
	MaxFrameSize uint16 = 1024

	// INET6_ADDRSTRLEN, address text is zero padded to this width on the wire
	MaxAddressLen int = 46
)

var (
	ErrShortBuffer = fmt.Errorf("short buffer")
	ErrFrameSize   = fmt.Errorf("frame exceeds maximum size")
)

// ReadShort decodes the low-byte-first pair at off and returns the value
// together with the advanced offset. Reads never reach past MaxFrameSize.
func ReadShort(buf []byte, off int) (uint16, int, error) {
	if off < 0 || off+2 > len(buf) {
		return 0, off, ErrShortBuffer
	}
	if off+2 > int(MaxFrameSize) {
		return 0, off, ErrFrameSize
	}

	v := uint16(buf[off]) | uint16(buf[off+1])<<8
	return v, off + 2, nil
}

// WriteShort encodes v at off as low byte then high byte and returns the
// advanced offset. Writes never reach past MaxFrameSize.
func WriteShort(buf []byte, off int, v uint16) (int, error) {
	if off < 0 || off+2 > len(buf) {
		return off, ErrShortBuffer
	}
	if off+2 > int(MaxFrameSize) {
		return off, ErrFrameSize
	}

	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	return off + 2, nil
}

// Prepare builds a complete outgoing frame: tag, length header, payload.
func Prepare(t Type, payload []byte) (*Message, error) {
	frameLen := HeaderLen + len(payload)
	if frameLen > int(MaxFrameSize) {
		return nil, fmt.Errorf("%w: type=%s, frameLen=%d", ErrFrameSize, t, frameLen)
	}

	buf := make([]byte, frameLen)
	buf[0] = byte(t)
	_, err := WriteShort(buf, 1, uint16(frameLen))
	if err != nil {
		return nil, err
	}
	copy(buf[HeaderLen:], payload)

	return &Message{
		tag:         byte(t),
		buffer:      buf,
		declared:    uint16(frameLen),
		accumulated: frameLen,
		limit:       MaxFrameSize,
	}, nil
}

func mustPrepare(t Type, payload []byte) *Message {
	msg, err := Prepare(t, payload)
	if err != nil {
		// payload lengths of fixed layouts are far below MaxFrameSize
		panic(err)
	}
	return msg
}

func NewAck() *Message {
	return mustPrepare(TypeAck, nil)
}

func NewResend() *Message {
	return mustPrepare(TypeResend, nil)
}

func NewMatchReady() *Message {
	return mustPrepare(TypeMatchReady, nil)
}

func NewHostingOrder() *Message {
	return mustPrepare(TypeSendHostingOrder, nil)
}

func NewPeersInfo(payload []byte) (*Message, error) {
	return Prepare(TypeSendPeersInfo, payload)
}
