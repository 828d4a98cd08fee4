package queue

import (
	"context"

	"kitchen_requests/internal/logger"
)

// LogPublisher only logs status changes. Used for local runs without a broker.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log.With("service", "LogPublisher")}
}

func (p *LogPublisher) Publish(_ context.Context, msg StatusChange) error {
	p.log.Info("status change",
		"request_id", msg.RequestID,
		"packing_status", msg.PackingStatus,
		"request_status", msg.RequestStatus,
	)
	return nil
}
