package peer

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/google/uuid"

	"github.com/Meander-Cloud/go-quickplay/arbiter"
	"github.com/Meander-Cloud/go-quickplay/config"
	"github.com/Meander-Cloud/go-quickplay/group"
	m "github.com/Meander-Cloud/go-quickplay/message"
	"github.com/Meander-Cloud/go-quickplay/net/tcp"
	"github.com/Meander-Cloud/go-quickplay/player"
)

type FrameWriter interface {
	WriteFrame(connID uint32, buf []byte) error
}

// Peer is the client end: it announces its capability to the lobby and
// reports the pairing outcome through UserCallback. Fields below the
// matrix are confined to the arbiter goroutine.
type Peer struct {
	c      *config.PeerConfig
	id     string
	a      *arbiter.Arbiter
	matrix *tcp.Matrix
	w      FrameWriter
	uc     UserCallback

	lobby *player.Player // nil while disconnected
}

func NewPeer(c *config.PeerConfig, uc UserCallback) (*Peer, error) {
	err := c.Validate()
	if err != nil {
		return nil, err
	}

	if uc == nil {
		err = fmt.Errorf("%s: nil UserCallback", c.LogPrefix)
		log.Printf("%s", err.Error())
		return nil, err
	}

	pr := newPeer(
		c,
		arbiter.NewArbiter(
			c.LogPrefix,
			c.LogDebug,
		),
		nil,
		uc,
	)

	defer func() {
		if err != nil {
			pr.Shutdown() // wait
		}
	}()

	pr.matrix, err = tcp.NewClientMatrix(
		c,
		pr.a,
		&Handler{
			pr: pr,
		},
		fmt.Sprintf("%s-%s", c.Host, pr.id[:8]),
	)
	if err != nil {
		return nil, err
	}
	pr.w = pr.matrix.Client()

	pr.a.Dispatch(
		func() {
			// invoked on arbiter goroutine
			pr.scheduleResendSweep()
		},
	)

	return pr, nil
}

func newPeer(c *config.PeerConfig, a *arbiter.Arbiter, w FrameWriter, uc UserCallback) *Peer {
	return &Peer{
		c:      c,
		id:     uuid.NewString(),
		a:      a,
		matrix: nil,
		w:      w,
		uc:     uc,

		lobby: nil,
	}
}

func (pr *Peer) Shutdown() {
	if pr.matrix != nil {
		pr.matrix.Shutdown() // wait
	}

	if pr.a != nil {
		pr.a.Shutdown() // wait
	}
}

func (pr *Peer) info() m.PlayerInfo {
	return m.PlayerInfo{
		CoreCount:    pr.c.CoreCount,
		CPUSpeedInt:  pr.c.CPUSpeedInt,
		CPUSpeedFrac: pr.c.CPUSpeedFrac,
		Ping:         0,
	}
}

// MatchReady tells the lobby this client, once ordered to host, is ready
// to accept the other members.
func (pr *Peer) MatchReady(ctx context.Context) error {
	var err error
	callErr := pr.a.Call(
		ctx,
		func() {
			// invoked on arbiter goroutine
			err = pr.matchReady()
		},
	)
	if callErr != nil {
		return callErr
	}
	return err
}

// invoked on arbiter goroutine
func (pr *Peer) matchReady() error {
	if pr.lobby == nil {
		err := fmt.Errorf("%s: not connected to lobby", pr.c.LogPrefix)
		log.Printf("%s", err.Error())
		return err
	}

	if !pr.lobby.IsMaster {
		err := fmt.Errorf("%s: %s: not ordered to host", pr.c.LogPrefix, pr.lobby.Descriptor)
		log.Printf("%s", err.Error())
		return err
	}

	err := pr.lobby.Send(m.NewMatchReady())
	if err != nil {
		return err
	}
	// the lobby may dissolve the match and order us again
	pr.lobby.IsMaster = false
	pr.flush()
	return nil
}

// invoked on arbiter goroutine
func (pr *Peer) lobbyJoin(connID uint32, addr net.Addr, descriptor string) {
	if pr.lobby != nil {
		log.Printf("%s: %s: replacing lobby link %s", pr.c.LogPrefix, descriptor, pr.lobby.Descriptor)
		pr.lobby.Close()
	}

	pr.lobby = player.NewPlayer(
		connID,
		addr,
		descriptor,
		pr.c.GetMaxFrameSize(),
		pr.c.LogPrefix,
		pr.c.LogDebug,
	)
	pr.lobby.Info = pr.info()

	// every connection starts over, the lobby forgot us on disconnect
	err := pr.lobby.Send(m.NewPlayerInfo(pr.lobby.Info))
	if err != nil {
		return
	}

	log.Printf("%s: %s: joined lobby, announcing %s", pr.c.LogPrefix, descriptor, pr.lobby)
	pr.flush()
}

// invoked on arbiter goroutine
func (pr *Peer) lobbyData(connID uint32, data []byte) {
	if pr.lobby == nil || pr.lobby.ConnID != connID {
		log.Printf("%s: connID=%d, dropping %d bytes from stale lobby link", pr.c.LogPrefix, connID, len(data))
		return
	}

	pr.lobby.HandleData(data, &hooks{pr: pr})
	pr.flush()
}

// invoked on arbiter goroutine
func (pr *Peer) lobbyExit(connID uint32) {
	if pr.lobby == nil || pr.lobby.ConnID != connID {
		return
	}

	pr.lobby.Close()
	log.Printf("%s: %s: left lobby", pr.c.LogPrefix, pr.lobby.Descriptor)
	pr.lobby = nil
}

// invoked on arbiter goroutine
func (pr *Peer) flush() {
	if pr.w == nil || pr.lobby == nil {
		return
	}

	connID := pr.lobby.ConnID
	pr.lobby.Flush(
		func(buf []byte) error {
			return pr.w.WriteFrame(connID, buf)
		},
	)
}

// invoked on arbiter goroutine
func (pr *Peer) scheduleResendSweep() {
	pr.a.ScheduleTimer(
		group.GroupResendSweep,
		pr.c.GetResendInterval(),
		func() {
			// invoked on arbiter goroutine
			pr.ResendUnacked()
			pr.scheduleResendSweep()
		},
	)
}

// invoked on arbiter goroutine
func (pr *Peer) ResendUnacked() int {
	if pr.lobby == nil {
		return 0
	}

	count := pr.lobby.Store.ResendUnacked()
	if count > 0 {
		log.Printf("%s: %s: resend sweep requeued %d frames", pr.c.LogPrefix, pr.lobby.Descriptor, count)
	}

	pr.flush()
	return count
}
