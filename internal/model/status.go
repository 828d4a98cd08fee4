package model

// RequestStatus is the lifecycle state of a request, derived from its line items.
type RequestStatus string

const (
	RequestNew            RequestStatus = "NEW"
	RequestInProgress     RequestStatus = "IN_PROGRESS"
	RequestReadyToCollect RequestStatus = "READY_TO_COLLECT"
	// RequestCollected is terminal and only set by collection confirmation.
	RequestCollected RequestStatus = "COLLECTED"
)

// ActiveStatuses are the statuses of requests not yet collected.
var ActiveStatuses = []RequestStatus{RequestNew, RequestInProgress, RequestReadyToCollect}

func (s RequestStatus) Active() bool {
	return s == RequestNew || s == RequestInProgress || s == RequestReadyToCollect
}

// PackingStatus is the preparation vocabulary published to kitchen stations.
type PackingStatus string

const (
	PackingNotStarted     PackingStatus = "NOT_STARTED"
	PackingInProgress     PackingStatus = "IN_PROGRESS"
	PackingReadyToCollect PackingStatus = "READY_TO_COLLECT"
)
