package booking

import "carelink/models"

// AllowedTransitions is the booking state machine. Which party may take an
// edge is checked by the service; this map only lists the structurally valid pairs.
var AllowedTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:    {models.BookingConfirmed, models.BookingRejected, models.BookingCancelled},
	models.BookingConfirmed:  {models.BookingInProgress, models.BookingCancelled},
	models.BookingInProgress: {models.BookingCompleted},
}

var allowedTransitionSet = buildTransitionSet(AllowedTransitions)

func buildTransitionSet(transitions map[models.BookingStatus][]models.BookingStatus) map[models.BookingStatus]map[models.BookingStatus]struct{} {
	set := make(map[models.BookingStatus]map[models.BookingStatus]struct{}, len(transitions))
	for from, tos := range transitions {
		next := make(map[models.BookingStatus]struct{}, len(tos))
		for _, to := range tos {
			next[to] = struct{}{}
		}
		set[from] = next
	}
	return set
}

// CanTransition checks if a booking may move from one status to another.
func CanTransition(from, to models.BookingStatus) bool {
	next, ok := allowedTransitionSet[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
