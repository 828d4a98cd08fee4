package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kitchen_requests/internal/logger"
	"kitchen_requests/internal/model"
)

// Outbox is the part of the store the relay drains.
type Outbox interface {
	PendingOutbox(ctx context.Context, createdBefore time.Time, limit int) ([]model.OutboxMessage, error)
	MarkOutboxDelivered(ctx context.Context, id uint) error
	MarkOutboxFailed(ctx context.Context, id uint, reason string) error
}

// Claimer keeps two relay instances from publishing the same row at once.
type Claimer interface {
	Claim(ctx context.Context, messageID uint) (bool, error)
	Release(ctx context.Context, messageID uint) error
}

// Relay republishes outbox rows whose post-commit publish did not succeed.
// A row is marked delivered only after the broker accepted it; on failure it stays
// pending and the batch stops so ordering per request is kept.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	claimer   Claimer
	log       *logger.Logger

	interval       time.Duration
	grace          time.Duration
	batch          int
	publishTimeout time.Duration
}

// NewRelay builds a relay. claimer may be nil when only one instance runs.
func NewRelay(outbox Outbox, publisher Publisher, claimer Claimer, log *logger.Logger,
	interval, grace time.Duration, batch int, publishTimeout time.Duration) *Relay {
	return &Relay{
		outbox:         outbox,
		publisher:      publisher,
		claimer:        claimer,
		log:            log.With("service", "OutboxRelay"),
		interval:       interval,
		grace:          grace,
		batch:          batch,
		publishTimeout: publishTimeout,
	}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("relay batch failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RelayOnce drains one batch and reports how many rows were delivered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	// Fresh rows belong to the request that wrote them; give it time to publish.
	msgs, err := r.outbox.PendingOutbox(ctx, time.Now().Add(-r.grace), r.batch)
	if err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}

	delivered := 0
	for _, m := range msgs {
		ok, err := r.processOne(ctx, m)
		if err != nil {
			return delivered, fmt.Errorf("outbox message id=%d: %w", m.ID, err)
		}
		if ok {
			delivered++
		}
	}
	return delivered, nil
}

func (r *Relay) processOne(ctx context.Context, m model.OutboxMessage) (bool, error) {
	msg, err := decodeStatusChange(m.Payload)
	if err != nil {
		// A row nobody can consume would block the outbox forever.
		r.log.Error("dropping malformed outbox message", "id", m.ID, "err", err)
		return false, r.outbox.MarkOutboxDelivered(ctx, m.ID)
	}

	if r.claimer != nil {
		claimed, err := r.claimer.Claim(ctx, m.ID)
		if err != nil {
			return false, fmt.Errorf("claim: %w", err)
		}
		if !claimed {
			return false, nil
		}
	}

	pubCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, msg); err != nil {
		if markErr := r.outbox.MarkOutboxFailed(ctx, m.ID, err.Error()); markErr != nil {
			r.log.Warn("record outbox failure", "id", m.ID, "err", markErr)
		}
		// A delivered row keeps its claim until it expires; a failed one is retried by
		// whichever instance gets to it first.
		if r.claimer != nil {
			if relErr := r.claimer.Release(context.WithoutCancel(ctx), m.ID); relErr != nil {
				r.log.Warn("release outbox claim", "id", m.ID, "err", relErr)
			}
		}
		return false, err
	}
	if err := r.outbox.MarkOutboxDelivered(ctx, m.ID); err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	return true, nil
}

func decodeStatusChange(payload []byte) (StatusChange, error) {
	var msg StatusChange
	if err := json.Unmarshal(payload, &msg); err != nil {
		return StatusChange{}, err
	}
	if err := msg.Validate(); err != nil {
		return StatusChange{}, err
	}
	return msg, nil
}
