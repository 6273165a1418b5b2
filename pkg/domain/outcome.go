package domain

// Outcome summarizes what a reconciliation run changed, so the caller can
// show at most one confirmation message.
type Outcome int

const (
	NoOp Outcome = iota
	ProfileCreated
	AlreadyLinked
	HouseholdLinked
)

func (o Outcome) String() string {
	switch o {
	case ProfileCreated:
		return "profile_created"
	case HouseholdLinked:
		return "household_linked"
	case AlreadyLinked:
		return "already_linked"
	default:
		return "noop"
	}
}

// Merge keeps the more significant of two outcomes.
// HouseholdLinked > AlreadyLinked > ProfileCreated > NoOp.
func (o Outcome) Merge(other Outcome) Outcome {
	if other > o {
		return other
	}
	return o
}
