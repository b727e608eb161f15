// ABOUTME: Tests for the web session client against an httptest server.
// ABOUTME: Covers session init, the session header, inventory, trades, and linking.

package websession

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/farmhand-dev/farmhand/internal/guard"
)

// fakeService records requests and serves canned JSON per path.
type fakeService struct {
	mu        sync.Mutex
	requests  []string // "<method> <path>"
	headers   map[string]string
	responses map[string]any
	status    map[string]int
}

func newFakeService() *fakeService {
	return &fakeService{
		headers:   make(map[string]string),
		responses: make(map[string]any),
		status:    make(map[string]int),
	}
}

func (f *fakeService) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.headers[r.URL.Path] = r.Header.Get("X-Session-ID")
		response := f.responses[r.URL.Path]
		code := f.status[r.URL.Path]
		f.mu.Unlock()

		if code != 0 {
			w.WriteHeader(code)
			return
		}
		if response == nil {
			response = map[string]any{}
		}
		json.NewEncoder(w).Encode(response)
	})
}

func (f *fakeService) sessionHeader(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[path]
}

func newTestClient(t *testing.T) (*Client, *fakeService) {
	t.Helper()
	service := newFakeService()
	server := httptest.NewServer(service.handler())
	t.Cleanup(server.Close)
	return New(server.URL, slog.Default()), service
}

func TestInit(t *testing.T) {
	t.Run("stores the session id and sends it on later calls", func(t *testing.T) {
		client, service := newTestClient(t)
		service.responses["/auth/session"] = map[string]string{"session_id": "sess-1"}

		if err := client.Init(context.Background(), "nonce-1", "0"); err != nil {
			t.Fatalf("init: %v", err)
		}

		if err := client.MarkInventory(context.Background()); err != nil {
			t.Fatalf("mark inventory: %v", err)
		}
		if got := service.sessionHeader("/inventory/mark"); got != "sess-1" {
			t.Fatalf("expected session header on later calls, got %q", got)
		}
	})

	t.Run("empty session id is an error", func(t *testing.T) {
		client, service := newTestClient(t)
		service.responses["/auth/session"] = map[string]string{"session_id": ""}

		if err := client.Init(context.Background(), "nonce-1", "0"); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestGetTradableInventory(t *testing.T) {
	client, service := newTestClient(t)
	service.responses["/inventory/tradable"] = map[string]any{
		"items": []Item{
			{AppID: "753", ContextID: "6", AssetID: "111", Amount: "1"},
			{AppID: "753", ContextID: "6", AssetID: "222", Amount: "1"},
		},
	}

	items, err := client.GetTradableInventory(context.Background())
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if len(items) != 2 || items[0].AssetID != "111" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestSendTradeOffer(t *testing.T) {
	t.Run("accepted offer reports success", func(t *testing.T) {
		client, service := newTestClient(t)
		service.responses["/tradeoffer/new"] = map[string]string{"tradeofferid": "987"}

		ok, err := client.SendTradeOffer(context.Background(), []Item{{AssetID: "111"}}, 42, "tok")
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if !ok {
			t.Fatal("expected success")
		}
	})

	t.Run("missing offer id reports rejection", func(t *testing.T) {
		client, service := newTestClient(t)
		service.responses["/tradeoffer/new"] = map[string]string{"tradeofferid": ""}

		ok, err := client.SendTradeOffer(context.Background(), []Item{{AssetID: "111"}}, 42, "")
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if ok {
			t.Fatal("expected rejection")
		}
	})
}

func TestDoJSONErrors(t *testing.T) {
	client, service := newTestClient(t)
	service.status["/group/join"] = http.StatusForbidden

	if err := client.JoinGroup(context.Background(), 99); err == nil {
		t.Fatal("expected an error for a non-2xx status")
	}
}

func TestLinkSession(t *testing.T) {
	client, service := newTestClient(t)
	client.SetCredentials("alpha", "hunter2")

	service.responses["/twofactor/login"] = map[string]string{"result": "ok"}
	service.responses["/twofactor/add"] = map[string]any{
		"result": "awaiting_finalization",
		"token":  "link-token",
		"authenticator": map[string]any{
			"shared_secret":   "c2VjcmV0",
			"revocation_code": "R12345",
		},
	}
	service.responses["/twofactor/finalize"] = map[string]string{"result": "success"}

	session := client.NewLinkSession("alpha", "hunter2")
	ctx := context.Background()

	login, err := session.Login(ctx, "")
	if err != nil || login != guard.LoginOK {
		t.Fatalf("login: %v %v", login, err)
	}

	link, authenticator, err := session.AddAuthenticator(ctx, "")
	if err != nil || link != guard.LinkAwaitingFinalization {
		t.Fatalf("add: %v %v", link, err)
	}
	if authenticator.RevocationCode != "R12345" {
		t.Fatalf("unexpected authenticator %+v", authenticator)
	}

	finalize, err := session.Finalize(ctx, "12345")
	if err != nil || finalize != guard.FinalizeSuccess {
		t.Fatalf("finalize: %v %v", finalize, err)
	}
}
