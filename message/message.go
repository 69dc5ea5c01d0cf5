package message

import (
	"fmt"
)

// Message is one logical frame, either prepared for sending or being
// reassembled from a byte stream.
type Message struct {
	tag         byte
	buffer      []byte
	declared    uint16 // zero until the length header has arrived
	accumulated int
	limit       uint16
	malformed   bool
}

// NewIncoming starts reassembly of a frame whose first byte is tag.
// Frames declaring more than limit bytes are treated as malformed.
func NewIncoming(tag byte, limit uint16) *Message {
	if limit == 0 || limit > MaxFrameSize {
		limit = MaxFrameSize
	}

	msg := &Message{
		tag:         tag,
		buffer:      make([]byte, 1, HeaderLen),
		declared:    0,
		accumulated: 1,
		limit:       limit,
		malformed:   TypeOf(tag) == TypeUnknown,
	}
	msg.buffer[0] = tag
	return msg
}

// Tag is the raw first byte as received.
func (msg *Message) Tag() byte {
	return msg.tag
}

// Type is the variant this frame dispatches as. A frame with a broken
// header reports TypeUnknown regardless of its tag.
func (msg *Message) Type() Type {
	if msg.malformed {
		return TypeUnknown
	}
	return TypeOf(msg.tag)
}

func (msg *Message) Malformed() bool {
	return msg.malformed
}

func (msg *Message) DeclaredLength() uint16 {
	return msg.declared
}

func (msg *Message) Accumulated() int {
	return msg.accumulated
}

// Readable reports whether the frame is complete and may be dispatched.
func (msg *Message) Readable() bool {
	if msg.malformed {
		return true
	}
	if msg.declared == 0 {
		return false
	}
	return msg.accumulated >= int(msg.declared)
}

// Append consumes bytes belonging to this frame and returns how many were
// taken. Bytes past the declared length are left for the next frame. A
// malformed frame swallows the whole chunk since the stream cannot be
// resynchronized within it.
func (msg *Message) Append(data []byte) int {
	if msg.malformed {
		msg.accumulated += len(data)
		return len(data)
	}

	consumed := 0

	if msg.declared == 0 {
		need := HeaderLen - len(msg.buffer)
		if need > len(data) {
			need = len(data)
		}
		msg.buffer = append(msg.buffer, data[:need]...)
		msg.accumulated += need
		consumed += need

		if len(msg.buffer) < HeaderLen {
			return consumed
		}

		declared, _, err := ReadShort(msg.buffer, 1)
		if err != nil ||
			int(declared) < HeaderLen ||
			declared > msg.limit ||
			!fitsLayout(TypeOf(msg.tag), int(declared)) {
			msg.malformed = true
			msg.accumulated += len(data) - consumed
			return len(data)
		}
		msg.declared = declared

		grown := make([]byte, HeaderLen, declared)
		copy(grown, msg.buffer)
		msg.buffer = grown
	}

	need := int(msg.declared) - msg.accumulated
	if need > len(data)-consumed {
		need = len(data) - consumed
	}
	msg.buffer = append(msg.buffer, data[consumed:consumed+need]...)
	msg.accumulated += need
	consumed += need

	return consumed
}

func fitsLayout(t Type, declared int) bool {
	payloadLen := layouts[t].payloadLen
	if payloadLen < 0 {
		return true
	}
	return declared == HeaderLen+payloadLen
}

// Bytes returns the frame as written to or read from the wire.
func (msg *Message) Bytes() []byte {
	return msg.buffer
}

// Payload returns the bytes following the header of a readable frame.
func (msg *Message) Payload() []byte {
	if len(msg.buffer) < HeaderLen {
		return nil
	}
	return msg.buffer[HeaderLen:]
}

func (msg *Message) String() string {
	return fmt.Sprintf(
		"%s<tag=%d, declared=%d, accumulated=%d>",
		msg.Type(),
		msg.tag,
		msg.declared,
		msg.accumulated,
	)
}
