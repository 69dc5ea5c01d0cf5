package message

// Type is the one byte tag opening every frame.
type Type uint8

const (
	TypeUnknown          Type = 0
	TypeAck              Type = 1
	TypePlayerInfo       Type = 2
	TypeMatchReady       Type = 3
	TypeResend           Type = 4
	TypeSendHostingOrder Type = 5
	TypeSendConnectInfo  Type = 6
	TypeSendPeersInfo    Type = 7

	TypeCount = 8
)

func (t Type) String() string {
	switch t {
	case TypeUnknown:
		return "Unknown"
	case TypeAck:
		return "Ack"
	case TypePlayerInfo:
		return "PlayerInfo"
	case TypeMatchReady:
		return "MatchReady"
	case TypeResend:
		return "Resend"
	case TypeSendHostingOrder:
		return "SendHostingOrder"
	case TypeSendConnectInfo:
		return "SendConnectInfo"
	case TypeSendPeersInfo:
		return "SendPeersInfo"
	default:
		return "Unknown Type"
	}
}

// TypeOf maps a wire tag onto the closed set, anything unrecognized is TypeUnknown.
func TypeOf(tag byte) Type {
	if tag == 0 || tag >= TypeCount {
		return TypeUnknown
	}
	return Type(tag)
}

type layout struct {
	// fixed payload length, -1 when the payload is opaque
	payloadLen int
	// control frames are never acknowledged
	control bool
}

var layouts = [TypeCount]layout{
	TypeUnknown:          {payloadLen: 0, control: true},
	TypeAck:              {payloadLen: 0, control: true},
	TypePlayerInfo:       {payloadLen: PlayerInfoPayloadLen, control: false},
	TypeMatchReady:       {payloadLen: 0, control: false},
	TypeResend:           {payloadLen: 0, control: true},
	TypeSendHostingOrder: {payloadLen: 0, control: false},
	TypeSendConnectInfo:  {payloadLen: ConnectInfoPayloadLen, control: false},
	TypeSendPeersInfo:    {payloadLen: -1, control: false},
}

// Control reports whether frames of this type are released after sending
// rather than parked awaiting an Ack.
func (t Type) Control() bool {
	if t >= TypeCount {
		return true
	}
	return layouts[t].control
}
