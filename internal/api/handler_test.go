// ABOUTME: Tests for the HTTP API routes over a real gin router.
// ABOUTME: Bots are real instances backed by quiet transport and farm stubs.

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmhand-dev/farmhand/internal/bot"
	"github.com/farmhand-dev/farmhand/internal/command"
	"github.com/farmhand-dev/farmhand/internal/config"
	"github.com/farmhand-dev/farmhand/internal/redeem"
	"github.com/farmhand-dev/farmhand/internal/store"
	"github.com/farmhand-dev/farmhand/internal/transport"
)

type quietClient struct {
	events chan transport.Event
}

func (q *quietClient) Connect() {}
func (q *quietClient) Disconnect() {}
func (q *quietClient) Connected() bool { return false }
func (q *quietClient) LogOn(transport.LogOnDetails) {}
func (q *quietClient) AcceptLoginKey(uint64) {}
func (q *quietClient) SendMachineAuthResponse(transport.MachineAuthResponse) {}
func (q *quietClient) PlayGames([]uint32) {}
func (q *quietClient) SetNickname(string) {}
func (q *quietClient) SetPresenceOnline() {}
func (q *quietClient) AddFriend(uint64) {}
func (q *quietClient) JoinChat(uint64) {}
func (q *quietClient) LeaveChat(uint64) {}
func (q *quietClient) SendChatMessage(uint64, string) {}
func (q *quietClient) SendMessage(uint64, string) {}
func (q *quietClient) ServerTime() int64 { return 0 }
func (q *quietClient) Events() <-chan transport.Event { return q.events }

func (q *quietClient) RedeemKey(ctx context.Context, key string) (*transport.PurchaseReceipt, error) {
	return &transport.PurchaseReceipt{Result: transport.PurchaseOK}, nil
}

func (q *quietClient) RequestFreeLicense(ctx context.Context, gameID uint32) (*transport.FreeLicenseResult, error) {
	return &transport.FreeLicenseResult{OK: true}, nil
}

type quietFarm struct {
	current []uint32
	queued  int
}

func (f *quietFarm) Start(context.Context) {}
func (f *quietFarm) Stop() {}
func (f *quietFarm) Restart(context.Context) {}
func (f *quietFarm) CurrentlyFarming() []uint32 { return f.current }
func (f *quietFarm) QueueCount() int { return f.queued }
func (f *quietFarm) SwitchToManualMode(context.Context, bool) bool { return false }

type fakeActivityLog struct {
	records map[string][]store.Activity
}

func (f *fakeActivityLog) Recent(ctx context.Context, bot string, limit int) ([]store.Activity, error) {
	records := f.records[bot]
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *bot.Registry, *fakeActivityLog) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := bot.NewRegistry(slog.Default())
	distributor := redeem.NewDistributor(registry, slog.Default())
	dispatcher := command.NewDispatcher(registry, distributor, slog.Default())
	activity := &fakeActivityLog{}

	router := gin.New()
	NewAPI(registry, dispatcher, activity).RegisterRoutes(router)
	return router, registry, activity
}

func addBot(t *testing.T, registry *bot.Registry, name string, farm *quietFarm) *bot.Bot {
	t.Helper()

	settings := config.DefaultBotSettings()
	settings.Enabled = true
	if farm == nil {
		farm = &quietFarm{}
	}

	b, err := bot.New(bot.Options{
		Name:     name,
		Settings: &settings,
		Paths:    config.PathsFor(t.TempDir(), name),
		Client:   &quietClient{events: make(chan transport.Event, 1)},
		Farm:     farm,
		Registry: registry,
		Logger:   slog.Default(),
	})
	require.NoError(t, err)
	return b
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Ok)
}

func TestStatus(t *testing.T) {
	router, registry, _ := newTestRouter(t)
	addBot(t, registry, "alpha", &quietFarm{current: []uint32{10, 20}, queued: 3})
	addBot(t, registry, "bravo", nil)

	w := doRequest(router, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Ok   bool       `json:"ok"`
		Data poolStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Ok)
	assert.Equal(t, 2, resp.Data.Initialized)
	assert.Equal(t, 0, resp.Data.Running)
	require.Len(t, resp.Data.Bots, 2)
	assert.Equal(t, "alpha", resp.Data.Bots[0].Name)
	assert.Equal(t, []uint32{10, 20}, resp.Data.Bots[0].Farming)
	assert.Equal(t, 3, resp.Data.Bots[0].QueueLeft)
}

func TestBotDetail(t *testing.T) {
	router, registry, _ := newTestRouter(t)
	addBot(t, registry, "alpha", nil)

	t.Run("known bot", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/bot/alpha", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown bot", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/bot/bravo", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestBotActivity(t *testing.T) {
	router, registry, activity := newTestRouter(t)
	addBot(t, registry, "alpha", nil)
	activity.records = map[string][]store.Activity{
		"alpha": {
			{Kind: store.KindLogon, Detail: "OK"},
			{Kind: store.KindTrade, Detail: "items=3 success=true"},
		},
	}

	t.Run("returns recorded entries", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/bot/alpha/activity", "")
		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Ok   bool            `json:"ok"`
			Data []activityEntry `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Ok)
		require.Len(t, resp.Data, 2)
		assert.Equal(t, store.KindLogon, resp.Data[0].Kind)
		assert.Equal(t, "items=3 success=true", resp.Data[1].Detail)
	})

	t.Run("limit query caps the result", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/bot/alpha/activity?limit=1", "")
		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Ok   bool            `json:"ok"`
			Data []activityEntry `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Data, 1)
	})

	t.Run("nothing recorded is a 404", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/bot/bravo/activity", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRunCommand(t *testing.T) {
	router, registry, _ := newTestRouter(t)
	addBot(t, registry, "alpha", nil)

	t.Run("dispatches and returns the reply", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/command", `{"bot":"alpha","message":"!status"}`)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Ok   bool            `json:"ok"`
			Data commandResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Data.Reply, "Bot alpha")
	})

	t.Run("unknown bot is a 404", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/command", `{"bot":"bravo","message":"!status"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/command", `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
