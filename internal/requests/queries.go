package requests

import (
	"context"
	"errors"

	"kitchen_requests/internal/live"
	"kitchen_requests/internal/model"
	"kitchen_requests/internal/store"
)

// Queries serves the read side: single lookups, the active list and its live stream.
type Queries struct {
	repo store.Repository
	hub  *live.Hub
}

func NewQueries(repo store.Repository, hub *live.Hub) *Queries {
	return &Queries{repo: repo, hub: hub}
}

func (q *Queries) FindByID(ctx context.Context, id uint) (RequestView, error) {
	req, err := q.repo.Request(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return RequestView{}, notFound(ResourceRequest, "request %d", id)
	}
	if err != nil {
		return RequestView{}, classify(err)
	}
	views, err := q.project(ctx, []model.Request{req})
	if err != nil {
		return RequestView{}, err
	}
	return views[0], nil
}

// FetchActive returns every request that is not yet collected, ordered by id.
func (q *Queries) FetchActive(ctx context.Context) ([]RequestView, error) {
	reqs, err := q.repo.RequestsByStatus(ctx, model.ActiveStatuses...)
	if err != nil {
		return nil, classify(err)
	}
	return q.project(ctx, reqs)
}

// WatchActive emits the current active requests and then the latest projection of
// every active request that changes, until ctx ends or emit fails. It returns
// ErrSubscriberDropped when the caller consumed too slowly to keep up.
func (q *Queries) WatchActive(ctx context.Context, emit func(RequestView) error) error {
	// Subscribe before the snapshot so no change between the two is missed.
	sub := q.hub.Subscribe()
	defer q.hub.Unsubscribe(sub)

	snapshot, err := q.FetchActive(ctx)
	if err != nil {
		return err
	}
	for _, v := range snapshot {
		if err := emit(v); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case id, ok := <-sub.Updates():
			if !ok {
				if sub.Dropped() {
					return ErrSubscriberDropped
				}
				return nil
			}
			v, err := q.FindByID(ctx, id)
			if IsNotFound(err) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if !v.Status.Active() {
				continue
			}
			if err := emit(v); err != nil {
				return err
			}
		}
	}
}

// MenuItems lists the catalog.
func (q *Queries) MenuItems(ctx context.Context) ([]model.MenuItem, error) {
	items, err := q.repo.MenuItems(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return items, nil
}

func (q *Queries) project(ctx context.Context, reqs []model.Request) ([]RequestView, error) {
	views := make([]RequestView, 0, len(reqs))
	if len(reqs) == 0 {
		return views, nil
	}

	ids := make([]uint, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.ID)
	}
	items, err := q.repo.LineItems(ctx, ids...)
	if err != nil {
		return nil, classify(err)
	}
	menu, err := q.repo.MenuItemsByID(ctx, menuItemIDs(items))
	if err != nil {
		return nil, classify(err)
	}
	names := menuNames(menu)

	byRequest := make(map[uint][]model.RequestLineItem, len(reqs))
	for _, it := range items {
		byRequest[it.RequestID] = append(byRequest[it.RequestID], it)
	}
	for _, r := range reqs {
		views = append(views, newView(r, byRequest[r.ID], names))
	}
	return views, nil
}
