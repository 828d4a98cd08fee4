package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"

	"kitchen_requests/internal/config"
	"kitchen_requests/internal/logger"
	"kitchen_requests/internal/middleware"
	"kitchen_requests/internal/requests"
)

// StreamEvent is the SSE event name of active request updates.
const StreamEvent = "request-status-events"

// Deps are the collaborators the HTTP layer needs. Redis may be nil, which disables
// the creation rate limit.
type Deps struct {
	Pipeline *requests.Pipeline
	Queries  *requests.Queries
	Redis    *rd.Client
	Log      *logger.Logger
	Config   config.AppConfig
}

// Setup registers every HTTP route.
func Setup(r *gin.Engine, d Deps) {
	r.Use(middleware.AccessLog(d.Log))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	create := []gin.HandlerFunc{createRequest(d.Pipeline)}
	if d.Redis != nil {
		limit := middleware.CreateRateLimit(d.Redis, d.Config.CreateRateLimit, d.Config.CreateRateWindow, d.Log)
		create = append([]gin.HandlerFunc{limit}, create...)
	}

	api := r.Group("/api")
	api.GET("/menu-items", listMenuItems(d.Queries))
	api.POST("/requests", create...)
	api.GET("/requests", listActive(d.Queries))
	api.GET("/requests/stream", streamActive(d.Queries, d.Config.StreamHeartbeat, d.Log))
	api.GET("/requests/:request_id", getRequest(d.Queries))
	api.PUT("/requests/:request_id/items/:menu_item_id", updateProgress(d.Pipeline))
}

func createRequest(p *requests.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body requests.NewRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err.Error())
			return
		}
		view, err := p.CreateRequest(c.Request.Context(), body)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": view})
	}
}

func listActive(q *requests.Queries) gin.HandlerFunc {
	return func(c *gin.Context) {
		views, err := q.FetchActive(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": views})
	}
}

func getRequest(q *requests.Queries) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "request_id")
		if !ok {
			return
		}
		view, err := q.FindByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": view})
	}
}

func updateProgress(p *requests.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID, ok := parseID(c, "request_id")
		if !ok {
			return
		}
		menuItemID, ok := parseID(c, "menu_item_id")
		if !ok {
			return
		}
		var body struct {
			PreparedQuantity *int `json:"preparedQuantity"`
			LineItemID       uint `json:"lineItemId"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err.Error())
			return
		}
		if body.PreparedQuantity == nil {
			badRequest(c, "preparedQuantity is required")
			return
		}

		view, err := p.UpdateLineItemProgress(c.Request.Context(), requests.ProgressUpdate{
			RequestID:        requestID,
			MenuItemID:       menuItemID,
			LineItemID:       body.LineItemID,
			PreparedQuantity: *body.PreparedQuantity,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": view})
	}
}

func listMenuItems(q *requests.Queries) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := q.MenuItems(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": items})
	}
}

// streamActive serves active requests as server-sent events: a snapshot first, then
// every change. A comment line is written on each heartbeat to keep proxies from
// closing an idle stream.
func streamActive(q *requests.Queries, heartbeat time.Duration, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		events := make(chan requests.RequestView)
		done := make(chan error, 1)
		go func() {
			done <- q.WatchActive(ctx, func(v requests.RequestView) error {
				select {
				case events <- v:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.Writer.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case v := <-events:
				c.Render(-1, sse.Event{
					Id:    strconv.FormatUint(uint64(v.RequestID), 10),
					Event: StreamEvent,
					Data:  v,
				})
				return true
			case <-ticker.C:
				_, _ = io.WriteString(w, ": heartbeat\n\n")
				return true
			case err := <-done:
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Info("active stream ended", "err", err)
				}
				return false
			}
		})
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, name+" is invalid")
		return 0, false
	}
	return uint(id), true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": msg, "error": "INVALID_ARGUMENT"})
}

// respondError maps pipeline and query errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var nf *requests.ResourceNotFoundError
	switch {
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{
			"code":     http.StatusNotFound,
			"msg":      err.Error(),
			"error":    "RESOURCE_NOT_FOUND",
			"resource": nf.Resource,
		})
	case errors.Is(err, requests.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": err.Error(), "error": "INVALID_ARGUMENT"})
	case errors.Is(err, requests.ErrTransient):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "msg": err.Error(), "error": "TRANSIENT_FAILURE"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "msg": "internal error", "error": "INTERNAL"})
	}
}
