package lobby

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Meander-Cloud/go-quickplay/group"
	m "github.com/Meander-Cloud/go-quickplay/message"
	"github.com/Meander-Cloud/go-quickplay/store"
)

type PlayerSnapshot struct {
	ConnID     uint32       `json:"conn_id"`
	Descriptor string       `json:"descriptor"`
	Info       m.PlayerInfo `json:"info"`
	MatchID    uint32       `json:"match_id"`
	IsMaster   bool         `json:"is_master"`
	Available  bool         `json:"available"`
	Sending    int          `json:"sending"`
	PendingAck int          `json:"pending_ack"`
}

type MatchSnapshot struct {
	ID      uint32   `json:"id"`
	Session string   `json:"session"`
	Master  uint32   `json:"master"`
	Players []uint32 `json:"players"`
	Formed  int64    `json:"formed"` // epoch milliseconds
}

// Snapshot is a point in time copy of the registries, safe to hand to
// other goroutines.
type Snapshot struct {
	LobbyID     string           `json:"lobby_id"`
	Time        int64            `json:"time"` // epoch milliseconds
	NextMatchID uint32           `json:"next_match_id"`
	Available   int              `json:"available"`
	Players     []PlayerSnapshot `json:"players"`
	Matches     []MatchSnapshot  `json:"matches"`
}

// invoked on arbiter goroutine
func (l *Lobby) snapshot() *Snapshot {
	snap := &Snapshot{
		LobbyID:     l.id,
		Time:        time.Now().UTC().UnixMilli(),
		NextMatchID: l.matchIDGen + 1,
		Available:   0,
		Players:     make([]PlayerSnapshot, 0, len(l.playerMap)),
		Matches:     make([]MatchSnapshot, 0, len(l.matchMap)),
	}

	for _, p := range l.sortedPlayers() {
		available := p.IsAvailable()
		if available {
			snap.Available++
		}

		snap.Players = append(
			snap.Players,
			PlayerSnapshot{
				ConnID:     p.ConnID,
				Descriptor: p.Descriptor,
				Info:       p.Info,
				MatchID:    p.MatchID,
				IsMaster:   p.IsMaster,
				Available:  available,
				Sending:    p.Store.Count(p.ConnID, store.QueueSending),
				PendingAck: p.Store.Count(p.ConnID, store.QueuePendingAck),
			},
		)
	}

	for id := uint32(1); id <= l.matchIDGen; id++ {
		match, found := l.matchMap[id]
		if !found {
			continue
		}

		players := make([]uint32, 0, len(match.Players))
		for _, p := range match.Players {
			players = append(players, p.ConnID)
		}
		snap.Matches = append(
			snap.Matches,
			MatchSnapshot{
				ID:      match.ID,
				Session: match.Session,
				Master:  match.Master.ConnID,
				Players: players,
				Formed:  match.Formed.UnixMilli(),
			},
		)
	}

	return snap
}

// Snapshot copies the registries on the arbiter goroutine and waits for
// the result. Safe from any goroutine except the arbiter's.
func (l *Lobby) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := l.a.Call(
		ctx,
		func() {
			// invoked on arbiter goroutine
			snap = l.snapshot()
		},
	)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// invoked on arbiter goroutine
func (l *Lobby) scheduleSnapshot() {
	if l.c.SnapshotPath == "" {
		return
	}

	wait := l.c.GetSnapshotInterval()

	l.a.ScheduleTimer(
		group.GroupSnapshot,
		wait,
		func() {
			// invoked on arbiter goroutine
			err := writeSnapshot(l.c.SnapshotPath, l.snapshot())
			if err != nil {
				log.Printf("%s: failed to write snapshot, err=%s", l.c.LogPrefix, err.Error())
			}
			l.scheduleSnapshot()
		},
	)
}

// writeSnapshot replaces path atomically with the msgpack encoding of snap.
// The file is diagnostic output, the lobby never reads it back.
func writeSnapshot(path string, snap *Snapshot) error {
	buf, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("msgpack failed to encode snapshot, err=%w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(buf)
	if err != nil {
		tmp.Close()
		return err
	}

	err = tmp.Close()
	if err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// ReadSnapshot decodes a snapshot file, used by tooling and tests.
func ReadSnapshot(path string) (*Snapshot, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	snap := new(Snapshot)
	err = msgpack.Unmarshal(buf, snap)
	if err != nil {
		return nil, fmt.Errorf("msgpack failed to decode snapshot, err=%w", err)
	}
	return snap, nil
}
