package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"kitchen_requests/internal/config"
	"kitchen_requests/internal/live"
	"kitchen_requests/internal/logger"
	"kitchen_requests/internal/model"
	"kitchen_requests/internal/queue/queuetest"
	"kitchen_requests/internal/requests"
	"kitchen_requests/internal/store/storetest"
)

type envelope struct {
	Code     int             `json:"code"`
	Msg      string          `json:"msg"`
	Error    string          `json:"error"`
	Resource string          `json:"resource"`
	Data     json.RawMessage `json:"data"`
}

type testServer struct {
	engine *gin.Engine
	pub    *queuetest.Recorder
	hub    *live.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := storetest.Store(t)
	storetest.SeedMenu(t, st, model.MenuItem{ID: 1, Name: "Burger"}, model.MenuItem{ID: 2, Name: "Fries"})
	pub := &queuetest.Recorder{}
	hub := live.NewHub(16, logger.Nop())
	t.Cleanup(hub.Close)

	cfg := config.Defaults()
	cfg.StreamHeartbeat = 50 * time.Millisecond

	r := gin.New()
	Setup(r, Deps{
		Pipeline: requests.NewPipeline(st, st, pub, hub, logger.Nop(), time.Second),
		Queries:  requests.NewQueries(st, hub),
		Log:      logger.Nop(),
		Config:   cfg,
	})
	return &testServer{engine: r, pub: pub, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func decodeView(t *testing.T, raw json.RawMessage) requests.RequestView {
	t.Helper()
	var v requests.RequestView
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

const createBody = `{"customerId": 9, "menuItems": [{"menuItemId": 1, "quantity": 1}, {"menuItemId": 2, "quantity": 2}]}`

func TestPing(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/ping", "")
	if code != http.StatusOK || env.Msg != "pong" {
		t.Fatalf("ping: got %d %+v", code, env)
	}
}

func TestCreateAndGetRequest(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/requests", createBody)
	if code != http.StatusCreated {
		t.Fatalf("create: want=201 got=%d %+v", code, env)
	}
	created := decodeView(t, env.Data)
	if created.Status != model.RequestNew || created.TotalItemsCount != 3 || created.CustomerID != 9 {
		t.Fatalf("created: got=%+v", created)
	}

	code, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/requests/%d", created.RequestID), "")
	if code != http.StatusOK {
		t.Fatalf("get: want=200 got=%d", code)
	}
	got := decodeView(t, env.Data)
	if got.RequestID != created.RequestID || len(got.MenuItems) != 2 || got.MenuItems[1].Name != "Fries" {
		t.Fatalf("get: got=%+v", got)
	}

	code, env = s.do(t, http.MethodGet, "/api/requests", "")
	if code != http.StatusOK {
		t.Fatalf("list: want=200 got=%d", code)
	}
	var list []requests.RequestView
	if err := json.Unmarshal(env.Data, &list); err != nil || len(list) != 1 {
		t.Fatalf("list: got=%s err=%v", env.Data, err)
	}
}

func TestCreateRequest_Errors(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
	}{
		{"unknown menu item", `{"customerId": 1, "menuItems": [{"menuItemId": 77, "quantity": 1}]}`, http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{"zero quantity", `{"customerId": 1, "menuItems": [{"menuItemId": 1, "quantity": 0}]}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"no items", `{"customerId": 1, "menuItems": []}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"malformed", `{"customerId": `, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := s.do(t, http.MethodPost, "/api/requests", tc.body)
			if code != tc.wantCode || env.Error != tc.wantError || env.Code != tc.wantCode {
				t.Fatalf("want %d %s got %d %+v", tc.wantCode, tc.wantError, code, env)
			}
		})
	}
	if ev := s.pub.Events(); len(ev) != 0 {
		t.Fatalf("events: want none got=%+v", ev)
	}
}

func TestUpdateProgress(t *testing.T) {
	s := newTestServer(t)
	_, env := s.do(t, http.MethodPost, "/api/requests", createBody)
	id := decodeView(t, env.Data).RequestID
	path := func(menuItemID int) string { return fmt.Sprintf("/api/requests/%d/items/%d", id, menuItemID) }

	code, env := s.do(t, http.MethodPut, path(2), `{"preparedQuantity": 2}`)
	if code != http.StatusOK {
		t.Fatalf("update: want=200 got=%d %+v", code, env)
	}
	if v := decodeView(t, env.Data); v.Status != model.RequestInProgress || v.PreparedItemsCount != 2 {
		t.Fatalf("update: got=%+v", v)
	}

	code, env = s.do(t, http.MethodPut, path(1), `{"preparedQuantity": 1}`)
	if code != http.StatusOK {
		t.Fatalf("update: want=200 got=%d", code)
	}
	if v := decodeView(t, env.Data); v.Status != model.RequestReadyToCollect {
		t.Fatalf("update: want READY_TO_COLLECT got=%s", v.Status)
	}
	if n := len(s.pub.For(id)); n != 3 {
		t.Fatalf("events: want=3 got=%d", n)
	}

	cases := []struct {
		name      string
		path      string
		body      string
		wantCode  int
		wantError string
	}{
		{"over quantity", path(1), `{"preparedQuantity": 2}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"negative", path(1), `{"preparedQuantity": -1}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing quantity", path(1), `{}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown menu item", path(5), `{"preparedQuantity": 1}`, http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{"bad request id", "/api/requests/abc/items/1", `{"preparedQuantity": 1}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := s.do(t, http.MethodPut, tc.path, tc.body)
			if code != tc.wantCode || env.Error != tc.wantError {
				t.Fatalf("want %d %s got %d %+v", tc.wantCode, tc.wantError, code, env)
			}
		})
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/requests/404", "")
	if code != http.StatusNotFound || env.Error != "RESOURCE_NOT_FOUND" || env.Resource != "REQUEST" {
		t.Fatalf("want 404 REQUEST got %d %+v", code, env)
	}
}

func TestListMenuItems(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/menu-items", "")
	if code != http.StatusOK {
		t.Fatalf("menu: want=200 got=%d", code)
	}
	var items []model.MenuItem
	if err := json.Unmarshal(env.Data, &items); err != nil || len(items) != 2 {
		t.Fatalf("menu: got=%s err=%v", env.Data, err)
	}
}

type sseEvent struct {
	id, event, data string
}

// readEvent returns the next event, skipping heartbeat comments.
func readEvent(t *testing.T, sc *bufio.Scanner) sseEvent {
	t.Helper()
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.event != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id:"):
			ev.id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			ev.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return ev
}

func TestStreamActive(t *testing.T) {
	s := newTestServer(t)
	_, env := s.do(t, http.MethodPost, "/api/requests", createBody)
	id := decodeView(t, env.Data).RequestID

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/requests/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type: got=%s", ct)
	}
	sc := bufio.NewScanner(resp.Body)

	ev := readEvent(t, sc)
	if ev.event != StreamEvent || ev.id != fmt.Sprint(id) {
		t.Fatalf("snapshot event: got=%+v", ev)
	}
	var v requests.RequestView
	if err := json.Unmarshal([]byte(ev.data), &v); err != nil || v.Status != model.RequestNew {
		t.Fatalf("snapshot data: %s err=%v", ev.data, err)
	}

	code, _ := s.do(t, http.MethodPut, fmt.Sprintf("/api/requests/%d/items/1", id), `{"preparedQuantity": 1}`)
	if code != http.StatusOK {
		t.Fatalf("update: got %d", code)
	}
	ev = readEvent(t, sc)
	if err := json.Unmarshal([]byte(ev.data), &v); err != nil {
		t.Fatalf("update data: %v", err)
	}
	if v.RequestID != id || v.Status != model.RequestInProgress || v.PreparedItemsCount != 1 {
		t.Fatalf("update event: got=%+v", v)
	}
}
