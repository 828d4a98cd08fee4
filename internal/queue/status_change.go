package queue

import (
	"context"
	"fmt"
	"strconv"

	"kitchen_requests/internal/model"
)

// StatusChange is the notification emitted when a request's status transitions.
type StatusChange struct {
	RequestID     uint                `json:"requestId"`
	PackingStatus model.PackingStatus `json:"packingStatus"`
	RequestStatus model.RequestStatus `json:"requestStatus"`
}

// Key is the broker message key. Changes of one request share a partition.
func (m StatusChange) Key() string {
	return strconv.FormatUint(uint64(m.RequestID), 10)
}

// Validate rejects messages consumers could not act on.
func (m StatusChange) Validate() error {
	if m.RequestID == 0 {
		return fmt.Errorf("requestId is required")
	}
	switch m.PackingStatus {
	case model.PackingNotStarted, model.PackingInProgress, model.PackingReadyToCollect:
	default:
		return fmt.Errorf("unknown packingStatus %q", m.PackingStatus)
	}
	switch m.RequestStatus {
	case model.RequestInProgress, model.RequestReadyToCollect:
	default:
		return fmt.Errorf("unknown requestStatus %q", m.RequestStatus)
	}
	return nil
}

// Publisher delivers status changes to external consumers.
type Publisher interface {
	Publish(ctx context.Context, msg StatusChange) error
}
