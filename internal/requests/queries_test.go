package requests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kitchen_requests/internal/live"
	"kitchen_requests/internal/logger"
	"kitchen_requests/internal/model"
	"kitchen_requests/internal/store/storetest"
)

func TestFetchActive_ScenarioD(t *testing.T) {
	f := newFixture(t)
	seeded := map[model.RequestStatus]uint{}
	for _, s := range []struct {
		status   model.RequestStatus
		prepared int
	}{
		{model.RequestNew, 0},
		{model.RequestReadyToCollect, 2},
		{model.RequestInProgress, 1},
		{model.RequestCollected, 2},
	} {
		req := storetest.SeedRequest(t, f.st, 1, s.status, storetest.Item{MenuItemID: 1, Quantity: 2, Prepared: s.prepared})
		seeded[s.status] = req.ID
	}

	views, err := f.q.FetchActive(context.Background())
	if err != nil {
		t.Fatalf("FetchActive: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("active: want=3 got=%d", len(views))
	}
	got := map[uint]bool{}
	for _, v := range views {
		got[v.RequestID] = true
		if len(v.MenuItems) != 1 || v.MenuItems[0].Name != "Burger" {
			t.Fatalf("request %d not joined with its line items: %+v", v.RequestID, v.MenuItems)
		}
	}
	for _, s := range model.ActiveStatuses {
		if !got[seeded[s]] {
			t.Fatalf("missing %s request %d", s, seeded[s])
		}
	}
	if got[seeded[model.RequestCollected]] {
		t.Fatalf("collected request returned")
	}
}

func TestFindByID(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, NewLineItem{MenuItemID: 2, Quantity: 2}, NewLineItem{MenuItemID: 3, Quantity: 1})
	f.update(t, created.RequestID, 2, 1)

	v, err := f.q.FindByID(context.Background(), created.RequestID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if v.Status != model.RequestInProgress || v.PreparedItemsCount != 1 || v.TotalItemsCount != 3 {
		t.Fatalf("view: got=%+v", v)
	}
	if v.MenuItems[0].Name != "Fries" || v.MenuItems[1].Name != "Cola" {
		t.Fatalf("names: got=%+v", v.MenuItems)
	}

	_, err = f.q.FindByID(context.Background(), created.RequestID+1)
	if !IsNotFound(err, ResourceRequest) {
		t.Fatalf("want REQUEST not found, got %v", err)
	}
}

func TestWatchActive_SnapshotThenChanges(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, NewLineItem{MenuItemID: 1, Quantity: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	views := make(chan RequestView, 8)
	done := make(chan error, 1)
	go func() {
		done <- f.q.WatchActive(ctx, func(v RequestView) error {
			views <- v
			return nil
		})
	}()

	v := receive(t, views)
	if v.RequestID != first.RequestID || v.Status != model.RequestNew {
		t.Fatalf("snapshot: got=%+v", v)
	}

	// Subscription is live once the snapshot arrived.
	f.update(t, first.RequestID, 1, 1)
	v = receive(t, views)
	if v.RequestID != first.RequestID || v.Status != model.RequestInProgress || v.PreparedItemsCount != 1 {
		t.Fatalf("change: got=%+v", v)
	}

	second := f.create(t, NewLineItem{MenuItemID: 3, Quantity: 1})
	v = receive(t, views)
	if v.RequestID != second.RequestID {
		t.Fatalf("new request: want=%d got=%d", second.RequestID, v.RequestID)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WatchActive after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("WatchActive did not stop")
	}
	if n := f.hub.Len(); n != 0 {
		t.Fatalf("subscribers left: %d", n)
	}
}

func TestWatchActive_SlowSubscriberDropped(t *testing.T) {
	f := newFixture(t)
	hub := live.NewHub(1, logger.Nop())
	defer hub.Close()
	q := NewQueries(f.st, hub)
	id := f.create(t, NewLineItem{MenuItemID: 1, Quantity: 1}).RequestID

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		done <- q.WatchActive(context.Background(), func(RequestView) error {
			once.Do(func() { close(entered) })
			<-release
			return nil
		})
	}()

	<-entered
	for i := 0; i < 3; i++ {
		hub.Broadcast(id)
	}
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrSubscriberDropped) {
			t.Fatalf("want ErrSubscriberDropped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("WatchActive did not stop")
	}
}

func TestWatchActive_EndsOnHubClose(t *testing.T) {
	f := newFixture(t)
	done := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		// No active requests: the snapshot is empty.
		close(ready)
		done <- f.q.WatchActive(context.Background(), func(RequestView) error { return nil })
	}()
	<-ready

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	f.hub.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("want nil on shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("WatchActive did not stop")
	}
}

func TestMenuItems(t *testing.T) {
	f := newFixture(t)
	items, err := f.q.MenuItems(context.Background())
	if err != nil {
		t.Fatalf("MenuItems: %v", err)
	}
	if len(items) != 3 || items[0].Name != "Burger" {
		t.Fatalf("menu: got=%+v", items)
	}
}

func receive(t *testing.T, ch <-chan RequestView) RequestView {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("no view received")
		return RequestView{}
	}
}
