package requests

import (
	"kitchen_requests/internal/model"
	"kitchen_requests/internal/queue"
)

// Aggregate derives a request's status from its line items: READY_TO_COLLECT when
// every item is finished, IN_PROGRESS when anything has been prepared, NEW otherwise.
// A request always has at least one line item, so an empty slice panics.
func Aggregate(items []model.RequestLineItem) model.RequestStatus {
	if len(items) == 0 {
		panic("requests: aggregate over no line items")
	}
	allFinished, anyPrepared := true, false
	for _, it := range items {
		if !it.IsFinished() {
			allFinished = false
		}
		if it.PreparedQuantity > 0 {
			anyPrepared = true
		}
	}
	switch {
	case allFinished:
		return model.RequestReadyToCollect
	case anyPrepared:
		return model.RequestInProgress
	default:
		return model.RequestNew
	}
}

// PreparationStatus maps a lifecycle status to the published vocabulary. NEW has not
// been started.
func PreparationStatus(s model.RequestStatus) model.PackingStatus {
	switch s {
	case model.RequestInProgress:
		return model.PackingInProgress
	case model.RequestReadyToCollect, model.RequestCollected:
		return model.PackingReadyToCollect
	default:
		return model.PackingNotStarted
	}
}

// statusChange builds the notification for a request now in status s. Consumers only
// know IN_PROGRESS and READY_TO_COLLECT as request statuses; a request that has not
// been started is reported as IN_PROGRESS with packing NOT_STARTED.
func statusChange(requestID uint, s model.RequestStatus) queue.StatusChange {
	requestStatus := model.RequestInProgress
	if s == model.RequestReadyToCollect || s == model.RequestCollected {
		requestStatus = model.RequestReadyToCollect
	}
	return queue.StatusChange{
		RequestID:     requestID,
		PackingStatus: PreparationStatus(s),
		RequestStatus: requestStatus,
	}
}
