package message

import (
	"bytes"
	"fmt"
	"net"
)

const (
	// coreCount, cpuSpeedInt, cpuSpeedFrac, ping(2)
	PlayerInfoPayloadLen int = 5
	// addressFamily, address text
	ConnectInfoPayloadLen int = 1 + MaxAddressLen

	PlayerInfoFrameLen  uint16 = uint16(HeaderLen + PlayerInfoPayloadLen)
	ConnectInfoFrameLen uint16 = uint16(HeaderLen + ConnectInfoPayloadLen)
)

// PlayerInfo describes a player's capability to host a match.
type PlayerInfo struct {
	CoreCount    uint8  `json:"core_count"`
	CPUSpeedInt  uint8  `json:"cpu_speed_int"`
	CPUSpeedFrac uint8  `json:"cpu_speed_frac"`
	Ping         uint16 `json:"ping"` // measured peer to peer, zero until then
}

func (pi PlayerInfo) Initialized() bool {
	return pi.CoreCount > 0
}

func NewPlayerInfo(pi PlayerInfo) *Message {
	payload := make([]byte, PlayerInfoPayloadLen)
	payload[0] = pi.CoreCount
	payload[1] = pi.CPUSpeedInt
	payload[2] = pi.CPUSpeedFrac
	_, err := WriteShort(payload, 3, pi.Ping)
	if err != nil {
		// fixed layout, PlayerInfoPayloadLen leaves room for the ping
		panic(err)
	}
	return mustPrepare(TypePlayerInfo, payload)
}

func (msg *Message) PlayerInfo() (PlayerInfo, error) {
	if msg.Type() != TypePlayerInfo {
		return PlayerInfo{}, fmt.Errorf("cannot decode PlayerInfo from %s", msg)
	}

	payload := msg.Payload()
	if len(payload) < PlayerInfoPayloadLen {
		return PlayerInfo{}, fmt.Errorf("%w: PlayerInfo payload of %d bytes", ErrShortBuffer, len(payload))
	}

	ping, _, err := ReadShort(payload, 3)
	if err != nil {
		return PlayerInfo{}, err
	}

	return PlayerInfo{
		CoreCount:    payload[0],
		CPUSpeedInt:  payload[1],
		CPUSpeedFrac: payload[2],
		Ping:         ping,
	}, nil
}

type AddressFamily uint8

const (
	AddressFamilyIPv4 AddressFamily = 0
	AddressFamilyIPv6 AddressFamily = 1
)

func (f AddressFamily) String() string {
	switch f {
	case AddressFamilyIPv4:
		return "IPv4"
	case AddressFamilyIPv6:
		return "IPv6"
	default:
		return "Unknown Family"
	}
}

// ConnectInfo tells a match member where its host can be reached.
type ConnectInfo struct {
	Family  AddressFamily `json:"family"`
	Address string        `json:"address"`
}

// ConnectInfoFromAddr derives the family and textual address of a peer.
func ConnectInfoFromAddr(addr net.Addr) (ConnectInfo, error) {
	if addr == nil {
		return ConnectInfo{}, fmt.Errorf("nil address")
	}

	host := addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return ConnectInfo{}, fmt.Errorf("address %s is not an ip", addr.String())
	}

	if ip4 := ip.To4(); ip4 != nil {
		return ConnectInfo{
			Family:  AddressFamilyIPv4,
			Address: ip4.String(),
		}, nil
	}

	return ConnectInfo{
		Family:  AddressFamilyIPv6,
		Address: ip.String(),
	}, nil
}

func NewConnectInfo(ci ConnectInfo) (*Message, error) {
	if len(ci.Address) > MaxAddressLen {
		return nil, fmt.Errorf("address %s longer than %d", ci.Address, MaxAddressLen)
	}
	if ci.Family != AddressFamilyIPv4 && ci.Family != AddressFamilyIPv6 {
		return nil, fmt.Errorf("invalid address family %d", ci.Family)
	}

	payload := make([]byte, ConnectInfoPayloadLen)
	payload[0] = byte(ci.Family)
	copy(payload[1:], ci.Address)
	return Prepare(TypeSendConnectInfo, payload)
}

func (msg *Message) ConnectInfo() (ConnectInfo, error) {
	if msg.Type() != TypeSendConnectInfo {
		return ConnectInfo{}, fmt.Errorf("cannot decode ConnectInfo from %s", msg)
	}

	payload := msg.Payload()
	if len(payload) < ConnectInfoPayloadLen {
		return ConnectInfo{}, fmt.Errorf("%w: ConnectInfo payload of %d bytes", ErrShortBuffer, len(payload))
	}

	family := AddressFamily(payload[0])
	if family != AddressFamilyIPv4 && family != AddressFamilyIPv6 {
		return ConnectInfo{}, fmt.Errorf("invalid address family %d", payload[0])
	}

	text := payload[1:ConnectInfoPayloadLen]
	if end := bytes.IndexByte(text, 0); end >= 0 {
		text = text[:end]
	}

	return ConnectInfo{
		Family:  family,
		Address: string(text),
	}, nil
}
