package group

type Group uint8

const (
	GroupInvalid     Group = 0
	GroupResendSweep Group = 1
	GroupSnapshot    Group = 2
)

func (g Group) String() string {
	switch g {
	case GroupInvalid:
		return "Invalid Group"
	case GroupResendSweep:
		return "Resend Sweep"
	case GroupSnapshot:
		return "Snapshot"
	default:
		return "Unknown Group"
	}
}
