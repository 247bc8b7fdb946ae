package announce

import "fmt"

// LiveMode selects how go-live announcements are shaped.
type LiveMode string

const (
	LiveSeparate LiveMode = "separate"
	LiveThread   LiveMode = "thread"
	LiveCombined LiveMode = "combined"
)

// EndMode selects how end-of-stream announcements are shaped.
type EndMode string

const (
	EndSeparate      EndMode = "separate"
	EndThread        EndMode = "thread"
	EndCombined      EndMode = "combined"
	EndSingleWhenAll EndMode = "single_when_all_end"
	EndDisabled      EndMode = "disabled"
)

// Policy is the threading policy applied to every announcement. Immutable
// after startup.
type Policy struct {
	Live LiveMode
	End  EndMode
}

func (p Policy) String() string {
	return fmt.Sprintf("live=%s end=%s", p.Live, p.End)
}

// ParsePolicy validates the configured mode strings. Combined threading keys
// tracker records by platform alone, so it must be chosen for both live and
// end announcements or for neither.
func ParsePolicy(live, end string) (Policy, error) {
	p := Policy{Live: LiveMode(live), End: EndMode(end)}
	switch p.Live {
	case LiveSeparate, LiveThread, LiveCombined:
	default:
		return Policy{}, fmt.Errorf("unknown live mode %q", live)
	}
	switch p.End {
	case EndSeparate, EndThread, EndCombined, EndSingleWhenAll, EndDisabled:
	default:
		return Policy{}, fmt.Errorf("unknown end mode %q", end)
	}
	if (p.Live == LiveCombined) != (p.End == EndCombined) {
		if p.Live == LiveCombined && p.End == EndDisabled {
			return p, nil
		}
		return Policy{}, fmt.Errorf("combined mode must be set for both live and end announcements (got %s)", p)
	}
	return p, nil
}
