package lobby

import (
	"fmt"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Meander-Cloud/go-quickplay/config"
	m "github.com/Meander-Cloud/go-quickplay/message"
	"github.com/Meander-Cloud/go-quickplay/store"
)

type recordingWriter struct {
	frames map[uint32][][]byte
	fail   bool
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{
		frames: make(map[uint32][][]byte),
	}
}

func (w *recordingWriter) WriteFrame(connID uint32, buf []byte) error {
	if w.fail {
		return fmt.Errorf("connID=%d write failed", connID)
	}
	w.frames[connID] = append(w.frames[connID], append([]byte{}, buf...))
	return nil
}

// take returns and forgets what was written to connID
func (w *recordingWriter) take(connID uint32) [][]byte {
	frames := w.frames[connID]
	delete(w.frames, connID)
	return frames
}

type recordingSink struct {
	events []*MatchEvent
}

func (s *recordingSink) MatchEvent(ev *MatchEvent) {
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []MatchEventKind {
	var kinds []MatchEventKind
	for _, ev := range s.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func newTestLobby(playersPerMatch uint16) (*Lobby, *recordingWriter, *recordingSink) {
	c := &config.Config{
		Host:            "test",
		ListenAddress:   ":0",
		PlayersPerMatch: playersPerMatch,
		LogPrefix:       "test",
	}
	w := newRecordingWriter()
	sink := &recordingSink{}
	return newLobby(c, nil, w, sink), w, sink
}

func join(l *Lobby, connID uint32) {
	l.playerJoin(
		connID,
		&net.TCPAddr{IP: net.IPv4(10, 0, 0, byte(connID)), Port: 40000 + int(connID)},
		fmt.Sprintf("[%d]test<-<10.0.0.%d>", connID, connID),
	)
}

func playerInfoFrame(cores uint8) []byte {
	return m.NewPlayerInfo(m.PlayerInfo{CoreCount: cores, CPUSpeedInt: 2, CPUSpeedFrac: 50}).Bytes()
}

var (
	ackFrame          = []byte{1, 3, 0}
	hostingOrderFrame = []byte{5, 3, 0}
	matchReadyFrame   = []byte{3, 3, 0}
	resendFrame       = []byte{4, 3, 0}
)

func TestPlayerInfoAcked(t *testing.T) {
	l, w, _ := newTestLobby(2)
	join(l, 1)

	l.playerData(1, []byte{2, 8, 0, 4, 2, 50, 0, 0})

	assert.Equal(t, [][]byte{ackFrame}, w.take(1))
	p := l.playerMap[1]
	require.NotNil(t, p)
	assert.True(t, p.IsAvailable())
	assert.Equal(t, m.PlayerInfo{CoreCount: 4, CPUSpeedInt: 2, CPUSpeedFrac: 50}, p.Info)
}

func TestPlayerInfoInFragments(t *testing.T) {
	l, w, _ := newTestLobby(2)
	join(l, 1)

	frame := playerInfoFrame(4)
	for i := range frame {
		l.playerData(1, frame[i:i+1])
	}

	assert.Equal(t, [][]byte{ackFrame}, w.take(1))
	assert.True(t, l.playerMap[1].IsAvailable())
}

func TestUnknownFrameRequestsResend(t *testing.T) {
	l, w, _ := newTestLobby(2)
	join(l, 1)

	l.playerData(1, []byte{0xEE, 0, 0})
	assert.Equal(t, [][]byte{resendFrame}, w.take(1))
	assert.False(t, l.playerMap[1].IsAvailable())
}

func TestPairAndRelay(t *testing.T) {
	l, w, sink := newTestLobby(2)
	join(l, 1)
	join(l, 2)

	l.playerData(1, playerInfoFrame(2))
	l.playerData(2, playerInfoFrame(4))

	p1 := l.playerMap[1]
	p2 := l.playerMap[2]
	assert.Equal(t, uint32(1), p1.MatchID)
	assert.Equal(t, uint32(1), p2.MatchID)
	assert.False(t, p1.IsMaster)
	assert.True(t, p2.IsMaster, "more cores hosts")
	require.Contains(t, l.matchMap, uint32(1))

	assert.Equal(t, [][]byte{ackFrame}, w.take(1))
	assert.Equal(t, [][]byte{ackFrame, hostingOrderFrame}, w.take(2))

	// master acknowledges the order and reports ready
	l.playerData(2, ackFrame)
	assert.Equal(t, 0, p2.Store.Count(2, store.QueuePendingAck))
	l.playerData(2, matchReadyFrame)

	assert.Equal(t, [][]byte{ackFrame}, w.take(2))

	frames := w.take(1)
	require.Len(t, frames, 1)
	msg := m.NewIncoming(frames[0][0], m.MaxFrameSize)
	msg.Append(frames[0][1:])
	require.True(t, msg.Readable())
	ci, err := msg.ConnectInfo()
	require.NoError(t, err)
	assert.Equal(t, m.ConnectInfo{Family: m.AddressFamilyIPv4, Address: "10.0.0.2"}, ci)

	assert.Empty(t, l.matchMap)
	assert.Equal(t, uint32(1), p1.MatchID, "started players are not paired again")
	assert.Empty(t, l.PrepareMatch())

	assert.Equal(t, []MatchEventKind{MatchEventFormed, MatchEventStarted}, sink.kinds())
	assert.Len(t, sink.events[0].Members, 2)
	assert.Equal(t, l.id, sink.events[0].LobbyID)
}

func TestResendReplaysHostingOrder(t *testing.T) {
	l, w, _ := newTestLobby(2)
	join(l, 1)
	join(l, 2)
	l.playerData(1, playerInfoFrame(8))
	l.playerData(2, playerInfoFrame(2))

	first := w.take(1)
	require.Equal(t, [][]byte{ackFrame, hostingOrderFrame}, first)
	w.take(2)

	l.playerData(1, resendFrame)
	assert.Equal(t, [][]byte{first[1]}, w.take(1))
	assert.Empty(t, w.take(2))

	// nothing pending, nothing replayed
	l.playerData(2, resendFrame)
	assert.Empty(t, w.take(2))
}

func TestDuplicateAckHarmless(t *testing.T) {
	l, w, _ := newTestLobby(2)
	join(l, 1)

	l.playerData(1, ackFrame)
	l.playerData(1, ackFrame)
	assert.Empty(t, w.take(1))
	assert.Equal(t, 0, l.playerMap[1].Store.Len())
}

func TestPairingDeterminism(t *testing.T) {
	l, _, _ := newTestLobby(2)

	const n = 8
	for connID := uint32(1); connID <= n; connID++ {
		join(l, connID)
		l.playerMap[connID].Info = m.PlayerInfo{CoreCount: uint8(connID)}
	}

	matches := l.PrepareMatch()
	require.Len(t, matches, n/2)

	for i, match := range matches {
		assert.Equal(t, uint32(i+1), match.ID)
		assert.Len(t, match.Players, 2)

		masters := 0
		for _, p := range match.Players {
			assert.Equal(t, match.ID, p.MatchID)
			if p.IsMaster {
				masters++
				assert.Same(t, match.Master, p)
			}
		}
		assert.Equal(t, 1, masters)
	}

	// arrival order batching
	assert.Equal(t, uint32(1), matches[0].Players[0].ConnID)
	assert.Equal(t, uint32(2), matches[0].Players[1].ConnID)
	assert.Equal(t, uint32(2), matches[0].Master.ConnID)

	for _, p := range l.playerMap {
		assert.NotZero(t, p.MatchID)
	}
}

func TestRemainderWaits(t *testing.T) {
	l, w, _ := newTestLobby(3)
	for connID := uint32(1); connID <= 4; connID++ {
		join(l, connID)
		l.playerData(connID, playerInfoFrame(4))
	}

	assert.Len(t, l.matchMap, 1)
	assert.True(t, l.playerMap[4].IsAvailable())
	assert.Equal(t, [][]byte{ackFrame, hostingOrderFrame}, w.take(1), "ties go to the first arrival")
}

func TestMasterExitDissolvesMatch(t *testing.T) {
	l, w, sink := newTestLobby(2)
	for connID := uint32(1); connID <= 3; connID++ {
		join(l, connID)
	}
	l.playerData(1, playerInfoFrame(8))
	l.playerData(2, playerInfoFrame(2))
	l.playerData(3, playerInfoFrame(4))
	require.True(t, l.playerMap[1].IsMaster)
	require.True(t, l.playerMap[3].IsAvailable())
	w.take(1)
	w.take(2)
	w.take(3)

	l.playerExit(1)

	assert.NotContains(t, l.playerMap, uint32(1))
	assert.NotContains(t, l.matchMap, uint32(1))

	// survivors pair again
	p2 := l.playerMap[2]
	p3 := l.playerMap[3]
	assert.Equal(t, uint32(2), p2.MatchID)
	assert.Equal(t, uint32(2), p3.MatchID)
	assert.True(t, p3.IsMaster)
	assert.Equal(t, [][]byte{hostingOrderFrame}, w.take(3))

	assert.Equal(t, []MatchEventKind{MatchEventFormed, MatchEventDissolved, MatchEventFormed}, sink.kinds())
}

func TestDissolvedHostOrderedAgain(t *testing.T) {
	l, w, sink := newTestLobby(2)
	join(l, 1)
	join(l, 2)
	l.playerData(1, playerInfoFrame(8))
	l.playerData(2, playerInfoFrame(2))
	p1 := l.playerMap[1]
	require.True(t, p1.IsMaster)
	assert.Equal(t, [][]byte{ackFrame, hostingOrderFrame}, w.take(1))
	l.playerData(1, ackFrame)

	l.playerExit(2)
	assert.Zero(t, p1.MatchID)
	assert.False(t, p1.IsMaster)

	// ready for a match that is gone, acknowledged and dropped
	l.playerData(1, matchReadyFrame)
	assert.Equal(t, [][]byte{ackFrame}, w.take(1))
	assert.True(t, p1.IsAvailable())

	join(l, 3)
	l.playerData(3, playerInfoFrame(2))
	assert.Equal(t, [][]byte{ackFrame}, w.take(3))
	require.Equal(t, uint32(2), p1.MatchID)
	require.True(t, p1.IsMaster)
	assert.Equal(t, [][]byte{hostingOrderFrame}, w.take(1))

	l.playerData(1, ackFrame)
	l.playerData(1, matchReadyFrame)
	assert.Equal(t, [][]byte{ackFrame}, w.take(1))

	frames := w.take(3)
	require.Len(t, frames, 1)
	msg := m.NewIncoming(frames[0][0], m.MaxFrameSize)
	msg.Append(frames[0][1:])
	require.True(t, msg.Readable())
	ci, err := msg.ConnectInfo()
	require.NoError(t, err)
	assert.Equal(t, m.ConnectInfo{Family: m.AddressFamilyIPv4, Address: "10.0.0.1"}, ci)

	assert.Empty(t, l.matchMap)
	assert.Equal(t, []MatchEventKind{MatchEventFormed, MatchEventDissolved, MatchEventFormed, MatchEventStarted}, sink.kinds())
}

func TestNonMasterExitKeepsLargerMatch(t *testing.T) {
	l, _, _ := newTestLobby(3)
	for connID := uint32(1); connID <= 3; connID++ {
		join(l, connID)
		l.playerData(connID, playerInfoFrame(uint8(connID)))
	}
	match := l.matchMap[1]
	require.NotNil(t, match)
	require.Equal(t, uint32(3), match.Master.ConnID)

	l.playerExit(1)
	assert.Len(t, match.Players, 2)
	assert.Contains(t, l.matchMap, uint32(1))

	l.playerExit(2)
	assert.NotContains(t, l.matchMap, uint32(1))
	assert.Zero(t, l.playerMap[3].MatchID)
	assert.False(t, l.playerMap[3].IsMaster)
}

func TestExitPurgesQueues(t *testing.T) {
	l, w, _ := newTestLobby(2)
	join(l, 1)
	join(l, 2)
	l.playerData(1, playerInfoFrame(8))
	l.playerData(2, playerInfoFrame(2))

	p1 := l.playerMap[1]
	require.Equal(t, 1, p1.Store.Count(1, store.QueuePendingAck))
	l.playerData(1, []byte{3, 3})

	l.playerExit(1)
	assert.Equal(t, 0, p1.Store.Len())
	assert.NotContains(t, l.dirty, uint32(1))

	// late data for a departed connection is dropped
	l.playerData(1, ackFrame)
	w.take(1)
	l.flush()
	assert.Empty(t, w.take(1))
}

func TestMatchReadyFromNonMasterIgnored(t *testing.T) {
	l, w, _ := newTestLobby(2)
	join(l, 1)
	join(l, 2)
	l.playerData(1, playerInfoFrame(8))
	l.playerData(2, playerInfoFrame(2))
	w.take(1)
	w.take(2)

	l.playerData(2, matchReadyFrame)
	assert.Equal(t, [][]byte{ackFrame}, w.take(2))
	assert.Empty(t, w.take(1))
	assert.Contains(t, l.matchMap, uint32(1))
}

func TestResendSweepAndWriteRetry(t *testing.T) {
	l, w, _ := newTestLobby(2)
	join(l, 1)
	join(l, 2)

	w.fail = true
	l.playerData(1, playerInfoFrame(8))
	l.playerData(2, playerInfoFrame(2))
	assert.Empty(t, w.frames)
	sending, _ := l.playerMap[1].Store.Pending()
	assert.Equal(t, 2, sending)

	w.fail = false
	assert.Equal(t, 0, l.ResendUnacked(), "nothing was acknowledged-pending yet")
	assert.Equal(t, [][]byte{ackFrame, hostingOrderFrame}, w.take(1))
	assert.Equal(t, [][]byte{ackFrame}, w.take(2))

	assert.Equal(t, 1, l.ResendUnacked())
	assert.Equal(t, [][]byte{hostingOrderFrame}, w.take(1))
}

func TestSnapshot(t *testing.T) {
	l, _, _ := newTestLobby(2)
	join(l, 1)
	join(l, 2)
	join(l, 3)
	l.playerData(1, playerInfoFrame(8))
	l.playerData(2, playerInfoFrame(2))
	l.playerData(3, playerInfoFrame(2))

	snap := l.snapshot()
	assert.Equal(t, l.id, snap.LobbyID)
	assert.Equal(t, uint32(2), snap.NextMatchID)
	assert.Equal(t, 1, snap.Available)
	require.Len(t, snap.Players, 3)
	assert.Equal(t, uint32(1), snap.Players[0].ConnID)
	assert.Equal(t, 1, snap.Players[0].PendingAck)
	require.Len(t, snap.Matches, 1)
	assert.Equal(t, uint32(1), snap.Matches[0].Master)
	assert.Equal(t, []uint32{1, 2}, snap.Matches[0].Players)

	path := filepath.Join(t.TempDir(), "lobby.snapshot")
	require.NoError(t, writeSnapshot(path, snap))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}
