// ABOUTME: API route handlers: pool status, per-bot detail, command execution.
// ABOUTME: Command replies reuse the chat dispatcher verbatim.

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/farmhand-dev/farmhand/internal/bot"
	"github.com/farmhand-dev/farmhand/internal/command"
	"github.com/farmhand-dev/farmhand/internal/store"
)

type response struct {
	Ok    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type botStatus struct {
	Name      string   `json:"name"`
	Running   bool     `json:"running"`
	Farming   []uint32 `json:"farming"`
	QueueLeft int      `json:"queue_left"`
}

type poolStatus struct {
	Bots        []botStatus `json:"bots"`
	Initialized int         `json:"initialized"`
	Running     int         `json:"running"`
}

type commandRequest struct {
	Bot     string `json:"bot"`
	Message string `json:"message"`
}

type commandResponse struct {
	Reply string `json:"reply"`
}

type activityEntry struct {
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityLog serves recorded per-bot activity. A nil log answers the
// activity route with not found.
type ActivityLog interface {
	Recent(ctx context.Context, bot string, limit int) ([]store.Activity, error)
}

// API exposes the bot pool over HTTP.
type API struct {
	registry   *bot.Registry
	dispatcher *command.Dispatcher
	activity   ActivityLog
}

// NewAPI creates the route handlers.
func NewAPI(registry *bot.Registry, dispatcher *command.Dispatcher, activity ActivityLog) *API {
	return &API{registry: registry, dispatcher: dispatcher, activity: activity}
}

// RegisterRoutes mounts all API routes on the router.
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/ping", a.ping)
	router.GET("/api/status", a.status)
	router.GET("/api/bot/:name", a.botDetail)
	router.GET("/api/bot/:name/activity", a.botActivity)
	router.POST("/api/command", a.runCommand)
}

func (a *API) ping(c *gin.Context) {
	c.JSON(http.StatusOK, response{Ok: true})
}

func (a *API) status(c *gin.Context) {
	bots := a.registry.Snapshot()
	out := poolStatus{
		Bots:        make([]botStatus, 0, len(bots)),
		Initialized: a.registry.Len(),
		Running:     a.registry.RunningCount(),
	}
	for _, b := range bots {
		out.Bots = append(out.Bots, describe(b))
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: out})
}

func (a *API) botDetail(c *gin.Context) {
	b, ok := a.registry.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, response{Ok: false, Error: "bot not found"})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: describe(b)})
}

func (a *API) botActivity(c *gin.Context) {
	if a.activity == nil {
		c.JSON(http.StatusNotFound, response{Ok: false, Error: "activity store not configured"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	records, err := a.activity.Recent(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, response{Ok: false, Error: "no activity recorded"})
			return
		}
		c.JSON(http.StatusInternalServerError, response{Ok: false, Error: err.Error()})
		return
	}

	out := make([]activityEntry, 0, len(records))
	for _, r := range records {
		out = append(out, activityEntry{Kind: r.Kind, Detail: r.Detail, CreatedAt: r.CreatedAt})
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: out})
}

func (a *API) runCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
		return
	}

	b, ok := a.registry.Get(req.Bot)
	if !ok {
		c.JSON(http.StatusNotFound, response{Ok: false, Error: "bot not found"})
		return
	}

	reply := a.dispatcher.Handle(c.Request.Context(), b, req.Message)
	c.JSON(http.StatusOK, response{Ok: true, Data: commandResponse{Reply: reply}})
}

func describe(b *bot.Bot) botStatus {
	farming := b.Farm().CurrentlyFarming()
	if farming == nil {
		farming = []uint32{}
	}
	return botStatus{
		Name:      b.Name(),
		Running:   b.KeepRunning(),
		Farming:   farming,
		QueueLeft: b.Farm().QueueCount(),
	}
}
