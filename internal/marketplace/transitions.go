package marketplace

import (
	"upcycle-api-server/internal/apperr"
	"upcycle-api-server/internal/models"
)

// allowedTransitions is the request state machine. Statuses missing from the
// map are terminal.
var allowedTransitions = map[models.RequestStatus][]models.RequestStatus{
	models.RequestPending:  {models.RequestAccepted, models.RequestRejected},
	models.RequestAccepted: {models.RequestCompleted},
}

func CanTransition(from, to models.RequestStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(req *models.Request, to models.RequestStatus) error {
	if CanTransition(req.Status, to) {
		return nil
	}
	if req.Status.Terminal() {
		return apperr.New(apperr.KindInvalidTransition, "cannot change status of a %s request", req.Status)
	}
	return apperr.New(apperr.KindInvalidTransition, "cannot move request %s from %s to %s", req.ID, req.Status, to)
}

// CompletionPolicy decides what completing a request does to its material.
type CompletionPolicy string

const (
	// CompletionRetain keeps the partial-allocation bookkeeping untouched.
	CompletionRetain CompletionPolicy = "retain"
	// CompletionTransfer is the single-buyer behaviour: any completion
	// finalizes the whole material as transferred.
	CompletionTransfer CompletionPolicy = "transfer"
)

func (p CompletionPolicy) Valid() bool {
	return p == CompletionRetain || p == CompletionTransfer
}
