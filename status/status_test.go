package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Meander-Cloud/go-quickplay/lobby"
	m "github.com/Meander-Cloud/go-quickplay/message"
)

type fixedSource struct {
	snap *lobby.Snapshot
	err  error
}

func (s *fixedSource) Snapshot(context.Context) (*lobby.Snapshot, error) {
	return s.snap, s.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, src Source, path string) *httptest.ResponseRecorder {
	r := SetupRouter(src, "test")
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)
	return w
}

func testSnapshot() *lobby.Snapshot {
	return &lobby.Snapshot{
		LobbyID:     "lobby",
		Time:        1700000000000,
		NextMatchID: 2,
		Available:   1,
		Players: []lobby.PlayerSnapshot{
			{ConnID: 1, Info: m.PlayerInfo{CoreCount: 8}, MatchID: 1, IsMaster: true, PendingAck: 1},
			{ConnID: 2, Info: m.PlayerInfo{CoreCount: 2}, MatchID: 1},
			{ConnID: 3, Info: m.PlayerInfo{CoreCount: 4}, Available: true},
		},
		Matches: []lobby.MatchSnapshot{
			{ID: 1, Session: "session", Master: 1, Players: []uint32{1, 2}},
		},
	}
}

func TestStatus(t *testing.T) {
	w := serve(t, &fixedSource{snap: testSnapshot()}, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "lobby", body["lobby_id"])
	assert.Equal(t, float64(3), body["players"])
	assert.Equal(t, float64(1), body["available"])
	assert.Equal(t, float64(1), body["matches"])
	assert.Equal(t, float64(2), body["next_match_id"])
}

func TestMatches(t *testing.T) {
	w := serve(t, &fixedSource{snap: testSnapshot()}, "/matches")
	require.Equal(t, http.StatusOK, w.Code)

	var matches []lobby.MatchSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &matches))
	assert.Equal(t, testSnapshot().Matches, matches)
}

func TestPlayers(t *testing.T) {
	w := serve(t, &fixedSource{snap: testSnapshot()}, "/players")
	require.Equal(t, http.StatusOK, w.Code)

	var players []lobby.PlayerSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &players))
	require.Len(t, players, 3)
	assert.True(t, players[0].IsMaster)
	assert.True(t, players[2].Available)
}

func TestSnapshotUnavailable(t *testing.T) {
	w := serve(t, &fixedSource{err: fmt.Errorf("arbiter shut down")}, "/status")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "arbiter shut down")
}
