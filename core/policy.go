package core

const (
	RemovalReasonDelivered = "delivered"
	RemovalReasonAlways    = "remove_on_failure"
)

// RemovalPolicy decides whether a delivered entry leaves the queue. The two
// flags are evaluated independently; either, both or neither may fire.
//
// With RequireSuccess=false and RemoveOnFailure=false nothing ever fires, so a
// successfully delivered entry stays queued and is delivered again next cycle.
type RemovalPolicy struct {
	RequireSuccess  bool
	RemoveOnFailure bool
}

// Reasons lists every rule that fired for the given outcome, in evaluation
// order. An empty result means the entry stays queued.
func (p RemovalPolicy) Reasons(success bool) []string {
	reasons := make([]string, 0, 2)
	if success && p.RequireSuccess {
		reasons = append(reasons, RemovalReasonDelivered)
	}
	if p.RemoveOnFailure {
		reasons = append(reasons, RemovalReasonAlways)
	}
	return reasons
}

func (p RemovalPolicy) Removes(success bool) bool {
	return len(p.Reasons(success)) > 0
}
