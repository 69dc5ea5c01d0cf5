package status

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Meander-Cloud/go-quickplay/lobby"
)

const snapshotWait = 3 * time.Second

// Source hands out registry snapshots, implemented by *lobby.Lobby.
type Source interface {
	Snapshot(ctx context.Context) (*lobby.Snapshot, error)
}

func SetupRouter(src Source, logPrefix string) *gin.Engine {
	r := gin.Default()

	snapshot := func(c *gin.Context) (*lobby.Snapshot, bool) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotWait)
		defer cancel()

		snap, err := src.Snapshot(ctx)
		if err != nil {
			log.Printf("%s: %s: snapshot unavailable, err=%s", logPrefix, c.FullPath(), err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"err": err.Error(),
			})
			return nil, false
		}
		return snap, true
	}

	r.GET("/status", func(c *gin.Context) {
		snap, ok := snapshot(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"lobby_id":      snap.LobbyID,
			"time":          snap.Time,
			"players":       len(snap.Players),
			"available":     snap.Available,
			"matches":       len(snap.Matches),
			"next_match_id": snap.NextMatchID,
		})
	})

	r.GET("/matches", func(c *gin.Context) {
		snap, ok := snapshot(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, snap.Matches)
	})

	r.GET("/players", func(c *gin.Context) {
		snap, ok := snapshot(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, snap.Players)
	})

	return r
}
