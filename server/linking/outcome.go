package linking

import "github.com/Daskott/tandem/server/models"

type SideStatus string

const (
	Created        SideStatus = "created"
	AlreadyExisted SideStatus = "already_existed"
	Failed         SideStatus = "failed"
	Skipped        SideStatus = "skipped"
)

type State string

const (
	Completed             State = "completed"
	CounterpartSideFailed State = "counterpart_side_failed"
	RequesterSideFailed   State = "requester_side_failed"
)

const PARTIAL_LINK_WARNING = "added to your list, but couldn't add you to theirs"

// LinkOutcome reports what happened on each side of one link attempt.
// It is never stored.
type LinkOutcome struct {
	State           State              `json:"state"`
	OwnSide         SideStatus         `json:"own_side"`
	CounterpartSide SideStatus         `json:"counterpart_side"`
	Target          *models.PublicCard `json:"target,omitempty"`
	Warning         string             `json:"warning,omitempty"`
}

// FullyMutual is true once both owners hold a contact for each other
func (outcome *LinkOutcome) FullyMutual() bool {
	return succeeded(outcome.OwnSide) && succeeded(outcome.CounterpartSide)
}

func succeeded(status SideStatus) bool {
	return status == Created || status == AlreadyExisted
}

func sideStatus(created bool) SideStatus {
	if created {
		return Created
	}
	return AlreadyExisted
}

func aggregate(own, counterpart SideStatus) State {
	switch {
	case !succeeded(own):
		return RequesterSideFailed
	case !succeeded(counterpart):
		return CounterpartSideFailed
	default:
		return Completed
	}
}
