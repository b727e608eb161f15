// ABOUTME: HTTP client for the remote service's web session surface.
// ABOUTME: Covers session init, inventory, trade offers, groups, and confirmations.

package websession

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/farmhand-dev/farmhand/internal/guard"
)

// Item is one tradable inventory asset. Field names follow the service's
// wire format, which transmits numeric identifiers as strings.
type Item struct {
	AppID      string `json:"appid"`
	ContextID  string `json:"contextid"`
	AssetID    string `json:"assetid"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     string `json:"amount"`
}

// Client talks to the web session surface for one account. All calls are
// safe for concurrent use; session state is guarded by a mutex.
type Client struct {
	baseURL string
	logger  *slog.Logger

	http *http.Client

	// inventoryLimiter paces inventory fetches so bulk operations don't
	// trip server-side request throttling.
	inventoryLimiter *rate.Limiter

	mu        sync.RWMutex
	sessionID string
	login     string
	password  string
}

// New creates a web session client for the given service base URL.
func New(baseURL string, logger *slog.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil // suppress default logging

	return &Client{
		baseURL:          baseURL,
		logger:           logger,
		http:             retryClient.StandardClient(),
		inventoryLimiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
	}
}

// SetCredentials stores the account credentials used by link sessions and
// session refresh.
func (c *Client) SetCredentials(login, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.login = login
	c.password = password
}

// Init establishes the web session from a fresh logon nonce and the parental
// PIN. It must succeed before any other call; the bot restarts its whole
// session when it fails.
func (c *Client) Init(ctx context.Context, nonce, parentalPIN string) error {
	payload := map[string]string{
		"nonce":        nonce,
		"parental_pin": parentalPIN,
	}

	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/session", payload, &resp); err != nil {
		return fmt.Errorf("initializing web session: %w", err)
	}
	if resp.SessionID == "" {
		return fmt.Errorf("initializing web session: empty session id")
	}

	c.mu.Lock()
	c.sessionID = resp.SessionID
	c.mu.Unlock()

	c.logger.Debug("web session initialized")
	return nil
}

// GetTradableInventory fetches the account's tradable items. Calls are rate
// limited; the limiter wait may suspend the caller.
func (c *Client) GetTradableInventory(ctx context.Context) ([]Item, error) {
	if err := c.inventoryLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp struct {
		Items []Item `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/inventory/tradable", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching inventory: %w", err)
	}

	return resp.Items, nil
}

// SendTradeOffer submits a trade offer giving the listed items to the
// partner. Returns false when the service rejects the offer.
func (c *Client) SendTradeOffer(ctx context.Context, items []Item, partnerID uint64, token string) (bool, error) {
	payload := map[string]any{
		"partner_id":    partnerID,
		"items_to_give": items,
	}
	if token != "" {
		payload["trade_token"] = token
	}

	var resp struct {
		TradeOfferID string `json:"tradeofferid"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/tradeoffer/new", payload, &resp); err != nil {
		return false, fmt.Errorf("sending trade offer: %w", err)
	}

	return resp.TradeOfferID != "", nil
}

// PendingTradeOffers returns how many incoming offers await a decision.
func (c *Client) PendingTradeOffers(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/tradeoffer/pending", nil, &resp); err != nil {
		return 0, fmt.Errorf("fetching pending offers: %w", err)
	}
	return resp.Count, nil
}

// JoinGroup joins the account to a community group.
func (c *Client) JoinGroup(ctx context.Context, groupID uint64) error {
	payload := map[string]uint64{"group_id": groupID}
	if err := c.doJSON(ctx, http.MethodPost, "/group/join", payload, nil); err != nil {
		return fmt.Errorf("joining group: %w", err)
	}
	return nil
}

// MarkInventory flags the inventory as seen, clearing the new-items badge.
func (c *Client) MarkInventory(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/inventory/mark", nil, nil); err != nil {
		return fmt.Errorf("marking inventory: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.RLock()
	if c.sessionID != "" {
		req.Header.Set("X-Session-ID", c.sessionID)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// DeactivateAuthenticator removes the linked authenticator from the account.
// Implements guard.Deactivator.
func (c *Client) DeactivateAuthenticator(ctx context.Context, a *guard.Authenticator) error {
	payload := map[string]string{"revocation_code": a.RevocationCode}
	if err := c.doJSON(ctx, http.MethodPost, "/twofactor/remove", payload, nil); err != nil {
		return fmt.Errorf("deactivating authenticator: %w", err)
	}
	return nil
}

// RefreshSession refreshes the mobile session used for confirmations.
func (c *Client) RefreshSession(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", nil, nil); err != nil {
		return fmt.Errorf("refreshing session: %w", err)
	}
	return nil
}

// FetchConfirmations lists pending mobile confirmations.
func (c *Client) FetchConfirmations(ctx context.Context) ([]guard.Confirmation, error) {
	var resp struct {
		Confirmations []struct {
			ID          uint64 `json:"id"`
			Nonce       uint64 `json:"nonce"`
			Description string `json:"description"`
		} `json:"confirmations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/twofactor/confirmations", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching confirmations: %w", err)
	}

	confirmations := make([]guard.Confirmation, 0, len(resp.Confirmations))
	for _, conf := range resp.Confirmations {
		confirmations = append(confirmations, guard.Confirmation{
			ID:          conf.ID,
			Nonce:       conf.Nonce,
			Description: conf.Description,
		})
	}
	return confirmations, nil
}

// AcceptConfirmation approves one pending confirmation.
func (c *Client) AcceptConfirmation(ctx context.Context, conf guard.Confirmation) error {
	payload := map[string]uint64{"id": conf.ID, "nonce": conf.Nonce}
	if err := c.doJSON(ctx, http.MethodPost, "/twofactor/confirmations/accept", payload, nil); err != nil {
		return fmt.Errorf("accepting confirmation: %w", err)
	}
	return nil
}
