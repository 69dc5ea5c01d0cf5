package player

import (
	"log"

	m "github.com/Meander-Cloud/go-quickplay/message"
)

// Hooks receives the side effects of frames that need knowledge beyond a
// single player, the lobby on the server end and the client on the other.
type Hooks interface {
	PlayerInfoSet(*Player)
	MatchReady(*Player)
	HostingOrder(*Player)
	ConnectInfo(*Player, m.ConnectInfo)
}

type handleFunc func(*Player, *m.Message, Hooks)

// indexed by message type, every tag resolves to a handler
var handlers = [m.TypeCount]handleFunc{
	m.TypeUnknown:          handleUnknown,
	m.TypeAck:              handleAck,
	m.TypePlayerInfo:       handlePlayerInfo,
	m.TypeMatchReady:       handleMatchReady,
	m.TypeResend:           handleResend,
	m.TypeSendHostingOrder: handleHostingOrder,
	m.TypeSendConnectInfo:  handleConnectInfo,
	m.TypeSendPeersInfo:    handlePeersInfo,
}

func (p *Player) dispatch(msg *m.Message, hooks Hooks) {
	if p.logDebug {
		log.Printf("%s: %s: received %s", p.logPrefix, p.Descriptor, msg)
	}
	handlers[msg.Type()](p, msg, hooks)
}

func handleUnknown(p *Player, msg *m.Message, _ Hooks) {
	log.Printf("%s: %s: unreadable frame %s, requesting resend", p.logPrefix, p.Descriptor, msg)
	_ = p.Send(m.NewResend()) // failure logged by Send, the sender's sweep retransmits
}

func handleAck(p *Player, _ *m.Message, _ Hooks) {
	if !p.Store.Acknowledge(p.ConnID) && p.logDebug {
		log.Printf("%s: %s: Ack with nothing pending", p.logPrefix, p.Descriptor)
	}
}

func handlePlayerInfo(p *Player, msg *m.Message, hooks Hooks) {
	info, err := msg.PlayerInfo()
	if err != nil {
		log.Printf("%s: %s: failed to decode PlayerInfo, err=%s", p.logPrefix, p.Descriptor, err.Error())
		_ = p.Send(m.NewResend())
		return
	}

	// unacknowledged frames are applied when retransmitted
	err = p.Send(m.NewAck())
	if err != nil {
		return
	}
	p.Info = info
	log.Printf("%s: %s: player info set", p.logPrefix, p)

	hooks.PlayerInfoSet(p)
}

func handleMatchReady(p *Player, _ *m.Message, hooks Hooks) {
	err := p.Send(m.NewAck())
	if err != nil {
		return
	}
	hooks.MatchReady(p)
}

func handleResend(p *Player, _ *m.Message, _ Hooks) {
	count := p.Store.Resend(p.ConnID)
	if count > 0 {
		log.Printf("%s: %s: peer requested resend, %d frames requeued", p.logPrefix, p.Descriptor, count)
	}
}

func handleHostingOrder(p *Player, _ *m.Message, hooks Hooks) {
	err := p.Send(m.NewAck())
	if err != nil {
		return
	}
	hooks.HostingOrder(p)
}

func handleConnectInfo(p *Player, msg *m.Message, hooks Hooks) {
	ci, err := msg.ConnectInfo()
	if err != nil {
		log.Printf("%s: %s: failed to decode ConnectInfo, err=%s", p.logPrefix, p.Descriptor, err.Error())
		_ = p.Send(m.NewResend())
		return
	}

	err = p.Send(m.NewAck())
	if err != nil {
		return
	}
	hooks.ConnectInfo(p, ci)
}

// reserved for ping measurement between peers
func handlePeersInfo(p *Player, msg *m.Message, _ Hooks) {
	if p.logDebug {
		log.Printf("%s: %s: ignoring %s", p.logPrefix, p.Descriptor, msg)
	}
}
