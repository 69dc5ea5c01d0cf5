package player

import (
	m "github.com/Meander-Cloud/go-quickplay/message"
)

// Comparator orders two capability profiles, a positive result means a is
// the better host.
type Comparator func(a, b m.PlayerInfo) int

// CompareCapability prefers more cores, then the faster clock, then the
// lower ping.
func CompareCapability(a, b m.PlayerInfo) int {
	if a.CoreCount != b.CoreCount {
		return int(a.CoreCount) - int(b.CoreCount)
	}

	speedA := int(a.CPUSpeedInt)*100 + int(a.CPUSpeedFrac)
	speedB := int(b.CPUSpeedInt)*100 + int(b.CPUSpeedFrac)
	if speedA != speedB {
		return speedA - speedB
	}

	return int(b.Ping) - int(a.Ping)
}

// Best returns the index of the best host among players, the first one
// wins ties.
func Best(players []*Player, compare Comparator) int {
	if compare == nil {
		compare = CompareCapability
	}

	best := -1
	for i, p := range players {
		if best < 0 || compare(p.Info, players[best].Info) > 0 {
			best = i
		}
	}
	return best
}
