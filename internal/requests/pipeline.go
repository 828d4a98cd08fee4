package requests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kitchen_requests/internal/logger"
	"kitchen_requests/internal/model"
	"kitchen_requests/internal/queue"
	"kitchen_requests/internal/store"
)

// Catalog resolves menu items. Ids that do not exist are absent from the result.
type Catalog interface {
	MenuItemsByID(ctx context.Context, ids []uint) ([]model.MenuItem, error)
}

// Announcer tells live stream subscribers that a request changed.
type Announcer interface {
	Announce(ctx context.Context, requestID uint) error
}

type NewRequest struct {
	CustomerID uint          `json:"customerId"`
	Items      []NewLineItem `json:"menuItems"`
}

type NewLineItem struct {
	MenuItemID uint `json:"menuItemId"`
	Quantity   int  `json:"quantity"`
}

// ProgressUpdate sets the prepared quantity of one line item. LineItemID is only
// needed when the request holds the same menu item more than once.
type ProgressUpdate struct {
	RequestID        uint
	MenuItemID       uint
	LineItemID       uint
	PreparedQuantity int
}

// Pipeline runs the request commands. Each command is one transaction; a status
// notification is recorded in the outbox inside it and published after commit.
type Pipeline struct {
	repo           store.Repository
	catalog        Catalog
	publisher      queue.Publisher
	announcer      Announcer
	log            *logger.Logger
	publishTimeout time.Duration
}

// NewPipeline wires the command pipeline. announcer may be nil.
func NewPipeline(repo store.Repository, catalog Catalog, publisher queue.Publisher, announcer Announcer,
	log *logger.Logger, publishTimeout time.Duration) *Pipeline {
	return &Pipeline{
		repo:           repo,
		catalog:        catalog,
		publisher:      publisher,
		announcer:      announcer,
		log:            log.With("service", "RequestPipeline"),
		publishTimeout: publishTimeout,
	}
}

// outcome is what a command hands from its transaction to the post-commit steps.
type outcome struct {
	view   RequestView
	outbox *model.OutboxMessage
	change queue.StatusChange
}

// CreateRequest validates the order against the catalog, stores it as NEW with
// nothing prepared and emits one NOT_STARTED notification.
func (p *Pipeline) CreateRequest(ctx context.Context, in NewRequest) (RequestView, error) {
	if in.CustomerID == 0 {
		return RequestView{}, invalid("customerId is required")
	}
	if len(in.Items) == 0 {
		return RequestView{}, invalid("a request needs at least one menu item")
	}
	ids := make([]uint, 0, len(in.Items))
	seen := make(map[uint]struct{}, len(in.Items))
	for _, it := range in.Items {
		if it.MenuItemID == 0 {
			return RequestView{}, invalid("menuItemId is required")
		}
		if it.Quantity <= 0 {
			return RequestView{}, invalid("quantity of menu item %d must be > 0, got %d", it.MenuItemID, it.Quantity)
		}
		if _, ok := seen[it.MenuItemID]; !ok {
			seen[it.MenuItemID] = struct{}{}
			ids = append(ids, it.MenuItemID)
		}
	}

	found, err := p.catalog.MenuItemsByID(ctx, ids)
	if err != nil {
		return RequestView{}, classify(err)
	}
	if len(found) != len(ids) {
		return RequestView{}, notFound(ResourceMenuItem, "not all request components were found")
	}
	names := menuNames(found)

	out, err := inTx(ctx, p.repo, p.log, "create_request", func(tx store.Repository) (outcome, error) {
		req := &model.Request{CustomerID: in.CustomerID, Status: model.RequestNew}
		items := make([]model.RequestLineItem, 0, len(in.Items))
		for _, it := range in.Items {
			items = append(items, model.RequestLineItem{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
		}
		if err := tx.InsertRequest(ctx, req, items); err != nil {
			return outcome{}, err
		}

		change := statusChange(req.ID, model.RequestNew)
		msg, err := appendOutbox(ctx, tx, change)
		if err != nil {
			return outcome{}, err
		}
		return outcome{view: newView(*req, req.LineItems, names), outbox: msg, change: change}, nil
	})
	if err != nil {
		return RequestView{}, err
	}

	p.afterCommit(ctx, out)
	return out.view, nil
}

// UpdateLineItemProgress is the apply-progress-and-reconcile step: it stores the new
// prepared quantity, recomputes the request status from all line items and records a
// notification only if the status changed. Concurrent updates of one request
// serialize on the request row lock.
func (p *Pipeline) UpdateLineItemProgress(ctx context.Context, in ProgressUpdate) (RequestView, error) {
	out, err := inTx(ctx, p.repo, p.log, "update_line_item_progress", func(tx store.Repository) (outcome, error) {
		item, err := tx.LineItem(ctx, in.RequestID, in.MenuItemID, in.LineItemID)
		if errors.Is(err, store.ErrNotFound) {
			return outcome{}, notFound(ResourceLineItem, "request %d has no menu item %d", in.RequestID, in.MenuItemID)
		}
		if err != nil {
			return outcome{}, err
		}
		if in.PreparedQuantity < 0 || in.PreparedQuantity > item.Quantity {
			return outcome{}, invalid("prepared quantity must be within [0, %d], got %d", item.Quantity, in.PreparedQuantity)
		}

		req, err := tx.LockRequest(ctx, in.RequestID)
		if errors.Is(err, store.ErrNotFound) {
			return outcome{}, notFound(ResourceRequest, "request %d", in.RequestID)
		}
		if err != nil {
			return outcome{}, err
		}
		if req.Status == model.RequestCollected {
			return outcome{}, invalid("request %d was already collected", req.ID)
		}

		// item was read before the lock; always write so a stale read cannot skip it.
		if err := tx.SetPreparedQuantity(ctx, item.ID, in.PreparedQuantity); err != nil {
			return outcome{}, err
		}

		items, err := tx.LineItems(ctx, req.ID)
		if err != nil {
			return outcome{}, err
		}
		next := Aggregate(items)

		var res outcome
		if next != req.Status {
			if err := tx.UpdateRequestStatus(ctx, req.ID, req.Status, next); err != nil {
				return outcome{}, err
			}
			req.Status = next
			res.change = statusChange(req.ID, next)
			if res.outbox, err = appendOutbox(ctx, tx, res.change); err != nil {
				return outcome{}, err
			}
		}

		menu, err := tx.MenuItemsByID(ctx, menuItemIDs(items))
		if err != nil {
			return outcome{}, err
		}
		res.view = newView(req, items, menuNames(menu))
		return res, nil
	})
	if err != nil {
		return RequestView{}, err
	}

	p.afterCommit(ctx, out)
	return out.view, nil
}

// afterCommit publishes the outcome's notification, if any, and announces the change
// to stream subscribers. Neither can fail the command: an unpublished notification
// stays in the outbox for the relay.
func (p *Pipeline) afterCommit(ctx context.Context, out outcome) {
	// The caller may go away; the notification must still be attempted.
	ctx = context.WithoutCancel(ctx)

	if out.outbox != nil {
		p.deliver(ctx, out.outbox.ID, out.change)
	}
	if p.announcer != nil {
		if err := p.announcer.Announce(ctx, out.view.RequestID); err != nil {
			p.log.Warn("announce request change", "request_id", out.view.RequestID, "err", err)
		}
	}
}

func (p *Pipeline) deliver(ctx context.Context, outboxID uint, change queue.StatusChange) {
	pubCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	if err := p.publisher.Publish(pubCtx, change); err != nil {
		p.log.Warn("publish status change, left for relay",
			"request_id", change.RequestID, "outbox_id", outboxID, "err", err)
		if err := p.repo.MarkOutboxFailed(ctx, outboxID, err.Error()); err != nil {
			p.log.Warn("record outbox failure", "outbox_id", outboxID, "err", err)
		}
		return
	}
	if err := p.repo.MarkOutboxDelivered(ctx, outboxID); err != nil {
		// The relay will publish it again; consumers tolerate duplicates.
		p.log.Warn("mark outbox delivered", "outbox_id", outboxID, "err", err)
	}
}

func appendOutbox(ctx context.Context, tx store.Repository, change queue.StatusChange) (*model.OutboxMessage, error) {
	payload, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("encode status change: %w", err)
	}
	msg := &model.OutboxMessage{Key: change.Key(), Payload: payload}
	if err := tx.AppendOutbox(ctx, msg); err != nil {
		return nil, fmt.Errorf("append outbox: %w", err)
	}
	return msg, nil
}

// inTx runs fn in one transaction and logs the outcome. Store failures are
// classified so callers can tell retryable ones apart.
func inTx[T any](ctx context.Context, repo store.Repository, log *logger.Logger, op string,
	fn func(tx store.Repository) (T, error)) (T, error) {
	start := time.Now()

	var out T
	err := repo.Transaction(ctx, func(tx store.Repository) error {
		var err error
		out, err = fn(tx)
		return err
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		var zero T
		err = classify(err)
		if errors.Is(err, ErrInvalidArgument) || IsNotFound(err) {
			log.Info(op+" rejected", "duration_ms", elapsed, "err", err)
		} else {
			log.Error(op+" failed", "duration_ms", elapsed, "err", err)
		}
		return zero, err
	}
	log.Debug(op, "duration_ms", elapsed)
	return out, nil
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrTransient), IsNotFound(err):
		return err
	case errors.Is(err, store.ErrStatusConflict), store.IsTransient(err):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	default:
		return err
	}
}
