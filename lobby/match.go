package lobby

import (
	"log"
	"time"

	"github.com/google/uuid"

	m "github.com/Meander-Cloud/go-quickplay/message"
	"github.com/Meander-Cloud/go-quickplay/player"
)

// Match is a batch of players waiting for its master to report ready.
type Match struct {
	ID      uint32
	Session string
	Players []*player.Player
	Master  *player.Player
	Formed  time.Time
}

// invoked on arbiter goroutine
//
// PrepareMatch batches available players in arrival order, one match per
// full batch. The remainder waits for more players.
func (l *Lobby) PrepareMatch() []*Match {
	size := int(l.c.GetPlayersPerMatch())

	var available []*player.Player
	for _, p := range l.sortedPlayers() {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}

	var formed []*Match
	for len(available) >= size {
		batch := make([]*player.Player, size)
		copy(batch, available[:size])
		available = available[size:]

		formed = append(formed, l.formMatch(batch))
	}

	if l.c.LogDebug && len(available) > 0 {
		log.Printf("%s: %d players waiting for a full batch of %d", l.c.LogPrefix, len(available), size)
	}
	return formed
}

// invoked on arbiter goroutine
func (l *Lobby) formMatch(batch []*player.Player) *Match {
	l.matchIDGen++
	match := &Match{
		ID:      l.matchIDGen,
		Session: uuid.NewString(),
		Players: batch,
		Master:  nil,
		Formed:  time.Now().UTC(),
	}

	best := player.Best(batch, l.compare)
	match.Master = batch[best]
	for i, p := range batch {
		p.Assign(match.ID, i == best)
	}
	l.matchMap[match.ID] = match

	log.Printf("%s: match %d formed with %d players, master %s", l.c.LogPrefix, match.ID, len(batch), match.Master)

	l.send(match.Master, m.NewHostingOrder())
	l.publish(MatchEventFormed, match)
	return match
}

// invoked on arbiter goroutine
//
// SendConnectInfo tells every non-master member of matchID where its
// master can be reached, then drops the match from the registry.
func (l *Lobby) SendConnectInfo(matchID uint32) bool {
	match, found := l.matchMap[matchID]
	if !found {
		log.Printf("%s: match %d not found", l.c.LogPrefix, matchID)
		return false
	}

	ci, err := m.ConnectInfoFromAddr(match.Master.Addr)
	if err != nil {
		log.Printf("%s: match %d, master %s has no usable address, err=%s", l.c.LogPrefix, matchID, match.Master.Descriptor, err.Error())
		return false
	}

	for _, p := range match.Players {
		if p == match.Master {
			continue
		}

		msg, err := m.NewConnectInfo(ci)
		if err != nil {
			log.Printf("%s: match %d, failed to prepare ConnectInfo, err=%s", l.c.LogPrefix, matchID, err.Error())
			return false
		}
		l.send(p, msg)
	}

	delete(l.matchMap, matchID)
	log.Printf("%s: match %d started, host %s at %s", l.c.LogPrefix, matchID, ci.Family, ci.Address)

	l.publish(MatchEventStarted, match)
	return true
}

// invoked on arbiter goroutine
//
// leaveMatch removes a departing player from its pending match. Losing the
// master, or falling below two members, dissolves the match and returns
// the rest to the pool.
func (l *Lobby) leaveMatch(p *player.Player) {
	match, found := l.matchMap[p.MatchID]
	if !found {
		// already started, nothing pending
		return
	}

	remaining := match.Players[:0]
	for _, member := range match.Players {
		if member != p {
			remaining = append(remaining, member)
		}
	}
	match.Players = remaining

	if p != match.Master && len(match.Players) >= 2 {
		log.Printf("%s: match %d lost %s, %d players remain", l.c.LogPrefix, match.ID, p.Descriptor, len(match.Players))
		return
	}

	for _, member := range match.Players {
		member.Unassign()
	}
	delete(l.matchMap, match.ID)

	log.Printf("%s: match %d dissolved after %s left", l.c.LogPrefix, match.ID, p.Descriptor)
	l.publish(MatchEventDissolved, match)
}
