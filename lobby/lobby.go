package lobby

import (
	"fmt"
	"log"
	"net"
	"sort"

	"github.com/google/uuid"

	"github.com/Meander-Cloud/go-quickplay/arbiter"
	"github.com/Meander-Cloud/go-quickplay/config"
	m "github.com/Meander-Cloud/go-quickplay/message"
	"github.com/Meander-Cloud/go-quickplay/net/tcp"
	"github.com/Meander-Cloud/go-quickplay/player"
)

// FrameWriter puts one complete frame on the connection identified by connID.
type FrameWriter interface {
	WriteFrame(connID uint32, buf []byte) error
}

// Lobby is the matchmaking server: it owns the player registry and the
// registry of formed matches whose host has not reported ready yet. All
// fields are confined to the arbiter goroutine.
type Lobby struct {
	c       *config.Config
	id      string
	a       *arbiter.Arbiter
	matrix  *tcp.Matrix
	w       FrameWriter
	sink    EventSink
	compare player.Comparator

	playerMap  map[uint32]*player.Player // connID -> player
	matchMap   map[uint32]*Match         // matchID -> match awaiting MatchReady
	matchIDGen uint32
	dirty      map[uint32]struct{} // connIDs with frames to flush
}

// NewLobby validates c, starts the arbiter and begins listening. sink may
// be nil when no broker is configured.
func NewLobby(c *config.Config, sink EventSink) (*Lobby, error) {
	err := c.Validate()
	if err != nil {
		return nil, err
	}

	l := newLobby(
		c,
		arbiter.NewArbiter(
			c.LogPrefix,
			c.LogDebug,
		),
		nil,
		sink,
	)

	defer func() {
		if err != nil {
			l.Shutdown() // wait
		}
	}()

	l.matrix, err = tcp.NewServerMatrix(
		c,
		l.a,
		&Handler{
			l: l,
		},
		fmt.Sprintf("%s-%s", c.Host, l.id[:8]),
	)
	if err != nil {
		return nil, err
	}
	l.w = l.matrix.Server()

	l.a.Dispatch(
		func() {
			// invoked on arbiter goroutine
			l.scheduleResendSweep()
			l.scheduleSnapshot()
		},
	)

	log.Printf("%s: lobby %s listening on %s, playersPerMatch=%d", c.LogPrefix, l.id, c.ListenAddress, c.GetPlayersPerMatch())
	return l, nil
}

func newLobby(c *config.Config, a *arbiter.Arbiter, w FrameWriter, sink EventSink) *Lobby {
	return &Lobby{
		c:       c,
		id:      uuid.NewString(),
		a:       a,
		matrix:  nil,
		w:       w,
		sink:    sink,
		compare: player.CompareCapability,

		playerMap:  make(map[uint32]*player.Player),
		matchMap:   make(map[uint32]*Match),
		matchIDGen: 0,
		dirty:      make(map[uint32]struct{}),
	}
}

func (l *Lobby) Shutdown() {
	if l.matrix != nil {
		l.matrix.Shutdown() // wait
	}

	if l.a != nil {
		l.a.Shutdown() // wait
	}
}

// ID is the instance id reported on the status surface and in broker events.
func (l *Lobby) ID() string {
	return l.id
}

// SetComparator replaces the host selection heuristic, call before serving.
func (l *Lobby) SetComparator(compare player.Comparator) {
	if compare == nil {
		compare = player.CompareCapability
	}
	l.compare = compare
}

// invoked on arbiter goroutine
func (l *Lobby) playerJoin(connID uint32, addr net.Addr, descriptor string) *player.Player {
	cached, found := l.playerMap[connID]
	if found {
		log.Printf("%s: %s: overriding existing player %s", l.c.LogPrefix, descriptor, cached.Descriptor)
		l.playerExit(connID)
	}

	p := player.NewPlayer(
		connID,
		addr,
		descriptor,
		l.c.GetMaxFrameSize(),
		l.c.LogPrefix,
		l.c.LogDebug,
	)
	l.playerMap[connID] = p

	log.Printf("%s: %s: player joined, players=%d", l.c.LogPrefix, descriptor, len(l.playerMap))
	return p
}

// invoked on arbiter goroutine
func (l *Lobby) playerData(connID uint32, data []byte) {
	p, found := l.playerMap[connID]
	if !found {
		log.Printf("%s: connID=%d, dropping %d bytes from unknown player", l.c.LogPrefix, connID, len(data))
		return
	}

	p.HandleData(data, &hooks{l: l})
	l.markDirty(p)
	l.flush()
}

// invoked on arbiter goroutine
//
// playerExit tears down every trace of the player: its queues, the player
// registry and any pending match referencing it.
func (l *Lobby) playerExit(connID uint32) {
	p, found := l.playerMap[connID]
	if !found {
		log.Printf("%s: connID=%d, player not found", l.c.LogPrefix, connID)
		return
	}

	p.Close()
	delete(l.playerMap, connID)
	delete(l.dirty, connID)

	if p.MatchID != 0 {
		l.leaveMatch(p)
	}

	log.Printf("%s: %s: player exited, players=%d", l.c.LogPrefix, p.Descriptor, len(l.playerMap))

	// survivors of a dissolved match may pair again
	l.PrepareMatch()
	l.flush()
}

// invoked on arbiter goroutine
func (l *Lobby) send(p *player.Player, msg *m.Message) {
	err := p.Send(msg)
	if err != nil {
		return
	}
	l.markDirty(p)
}

func (l *Lobby) markDirty(p *player.Player) {
	l.dirty[p.ConnID] = struct{}{}
}

// invoked on arbiter goroutine
func (l *Lobby) flush() {
	if l.w == nil {
		return
	}

	for connID := range l.dirty {
		delete(l.dirty, connID)

		p, found := l.playerMap[connID]
		if !found {
			continue
		}

		p.Flush(
			func(buf []byte) error {
				return l.w.WriteFrame(connID, buf)
			},
		)
	}
}

// sortedPlayers returns players in arrival order.
func (l *Lobby) sortedPlayers() []*player.Player {
	players := make([]*player.Player, 0, len(l.playerMap))
	for _, p := range l.playerMap {
		players = append(players, p)
	}
	sort.Slice(
		players,
		func(i, j int) bool {
			return players[i].ConnID < players[j].ConnID
		},
	)
	return players
}
