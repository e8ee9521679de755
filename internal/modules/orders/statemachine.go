package orders

import "delivery-dispatch/internal/models"

// forward is the single allowed forward edge out of each status. cancelled is
// reachable from every non-terminal status and is handled separately.
var forward = map[models.OrderStatus]models.OrderStatus{
	models.StatusPending:   models.StatusConfirmed,
	models.StatusConfirmed: models.StatusPreparing,
	models.StatusPreparing: models.StatusReady,
	models.StatusReady:     models.StatusAssigned,
	models.StatusAssigned:  models.StatusPickedUp,
	models.StatusPickedUp:  models.StatusDelivered,
}

// CanTransition reports whether to is reachable from from in one step.
// Self-transitions are not edges of the machine, so a repeated transition to
// the current status always fails with ErrIllegalTransition and never writes
// a duplicate history entry.
func CanTransition(from, to models.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == models.StatusCancelled {
		return true
	}
	return forward[from] == to
}

// ValidPath reports whether the given status sequence is a walk through the
// machine starting at pending.
func ValidPath(path []models.OrderStatus) bool {
	if len(path) == 0 || path[0] != models.StatusPending {
		return false
	}
	for i := 1; i < len(path); i++ {
		if !CanTransition(path[i-1], path[i]) {
			return false
		}
	}
	return true
}
