package peer

import (
	"time"

	m "github.com/Meander-Cloud/go-quickplay/message"
)

type HostingOrdered struct {
	LobbyAddress string
	Time         time.Time
}

type ConnectInfoReceived struct {
	ConnectInfo m.ConnectInfo
	Time        time.Time
}

// UserCallback is invoked on the arbiter goroutine and must not block.
type UserCallback interface {
	// this client must host, report MatchReady once listening
	HostingOrdered(*HostingOrdered)
	// connect to the host at the given address
	ConnectInfoReceived(*ConnectInfoReceived)
}
