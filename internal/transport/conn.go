// ABOUTME: TCP wire client speaking newline-delimited JSON frames.
// ABOUTME: A reader goroutine turns inbound frames into Events; requests correlate by id.

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const dialTimeout = 10 * time.Second

// frame is the wire envelope. Requests carry an id echoed back in the
// matching response frame; server-pushed frames have id zero.
type frame struct {
	Type string          `json:"type"`
	ID   uint64          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Conn is the production Client over a TCP connection.
type Conn struct {
	addr   string
	logger *slog.Logger

	events chan Event

	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder

	// userInitiated marks the next disconnect as locally requested.
	userInitiated atomic.Bool

	// timeOffset is server unix time minus local unix time, learned at logon.
	timeOffset atomic.Int64

	nextID  atomic.Uint64
	pending sync.Map // request id -> chan json.RawMessage
}

// NewConn creates a client for the given transport endpoint. No connection
// is made until Connect.
func NewConn(addr string, logger *slog.Logger) *Conn {
	return &Conn{
		addr:   addr,
		logger: logger,
		events: make(chan Event, 64),
	}
}

// Connect dials the endpoint. The outcome is delivered as a ConnectedEvent.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
	if err != nil {
		c.events <- ConnectedEvent{OK: false, Reason: err.Error()}
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.userInitiated.Store(false)
	c.mu.Unlock()

	go c.readLoop(conn)
	c.events <- ConnectedEvent{OK: true}
}

// Disconnect closes the connection; the reader emits the DisconnectedEvent.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	c.userInitiated.Store(true)
	conn.Close()
}

// Connected reports whether a connection is established.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Events delivers transport callbacks in arrival order.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// ServerTime returns the service-synchronized unix time.
func (c *Conn) ServerTime() int64 {
	return time.Now().Unix() + c.timeOffset.Load()
}

func (c *Conn) LogOn(details LogOnDetails) {
	c.send("logon", 0, map[string]any{
		"username":        details.Username,
		"password":        details.Password,
		"auth_code":       details.AuthCode,
		"two_factor_code": details.TwoFactorCode,
		"login_key":       details.LoginKey,
		"login_id":        details.LoginID,
		"sentry_hash":     details.SentryHash,
		"remember_login":  details.RememberLogin,
	})
}

func (c *Conn) AcceptLoginKey(uniqueID uint64) {
	c.send("accept_login_key", 0, map[string]any{"unique_id": uniqueID})
}

func (c *Conn) SendMachineAuthResponse(resp MachineAuthResponse) {
	c.send("machine_auth_response", 0, map[string]any{
		"job_id":        resp.JobID,
		"file_name":     resp.FileName,
		"offset":        resp.Offset,
		"bytes_written": resp.BytesWritten,
		"file_size":     resp.FileSize,
		"hash":          resp.Hash,
	})
}

func (c *Conn) PlayGames(gameIDs []uint32) {
	c.send("play_games", 0, map[string]any{"game_ids": gameIDs})
}

func (c *Conn) SetNickname(nickname string) {
	c.send("set_nickname", 0, map[string]any{"nickname": nickname})
}

func (c *Conn) SetPresenceOnline() {
	c.send("set_presence", 0, map[string]any{"state": "online"})
}

func (c *Conn) AddFriend(userID uint64) {
	c.send("add_friend", 0, map[string]any{"user_id": userID})
}

func (c *Conn) JoinChat(chatID uint64) {
	c.send("join_chat", 0, map[string]any{"chat_id": chatID})
}

func (c *Conn) LeaveChat(chatID uint64) {
	c.send("leave_chat", 0, map[string]any{"chat_id": chatID})
}

func (c *Conn) SendChatMessage(chatID uint64, message string) {
	c.send("chat_message", 0, map[string]any{"chat_id": chatID, "message": message})
}

func (c *Conn) SendMessage(userID uint64, message string) {
	c.send("direct_message", 0, map[string]any{"user_id": userID, "message": message})
}

// RedeemKey submits a code and blocks until the matching response frame.
func (c *Conn) RedeemKey(ctx context.Context, key string) (*PurchaseReceipt, error) {
	raw, err := c.request(ctx, "redeem_key", map[string]any{"key": key})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result int      `json:"result"`
		Items  []string `json:"items"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing redemption response: %w", err)
	}
	return &PurchaseReceipt{Result: PurchaseResult(resp.Result), Items: resp.Items}, nil
}

// RequestFreeLicense requests a no-cost license for the given game.
func (c *Conn) RequestFreeLicense(ctx context.Context, gameID uint32) (*FreeLicenseResult, error) {
	raw, err := c.request(ctx, "free_license", map[string]any{"game_id": gameID})
	if err != nil {
		return nil, err
	}

	var resp struct {
		OK              bool     `json:"ok"`
		GrantedApps     []uint32 `json:"granted_apps"`
		GrantedPackages []uint32 `json:"granted_packages"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing free license response: %w", err)
	}
	return &FreeLicenseResult{OK: resp.OK, GrantedApps: resp.GrantedApps, GrantedPackages: resp.GrantedPackages}, nil
}

func (c *Conn) send(frameType string, id uint64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("encoding frame payload", "type", frameType, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc == nil {
		c.logger.Warn("dropping frame on closed connection", "type", frameType)
		return
	}
	if err := c.enc.Encode(frame{Type: frameType, ID: id, Data: data}); err != nil {
		c.logger.Warn("writing frame", "type", frameType, "error", err)
	}
}

func (c *Conn) request(ctx context.Context, frameType string, payload any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan json.RawMessage, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	c.send(frameType, id, payload)

	select {
	case raw := <-ch:
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		var f frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			c.logger.Warn("discarding malformed frame", "error", err)
			continue
		}

		if f.ID != 0 {
			if ch, ok := c.pending.Load(f.ID); ok {
				ch.(chan json.RawMessage) <- f.Data
			}
			continue
		}

		if ev := c.decodeEvent(f); ev != nil {
			c.events <- ev
		}
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.enc = nil
	}
	c.mu.Unlock()
	conn.Close()

	c.events <- DisconnectedEvent{UserInitiated: c.userInitiated.Load()}
}

func (c *Conn) decodeEvent(f frame) Event {
	switch f.Type {
	case "logged_on":
		var d struct {
			Result     int    `json:"result"`
			Nonce      string `json:"nonce"`
			ServerTime int64  `json:"server_time"`
		}
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		if d.ServerTime != 0 {
			c.timeOffset.Store(d.ServerTime - time.Now().Unix())
		}
		return LoggedOnEvent{Result: LogonResult(d.Result), Nonce: d.Nonce}
	case "logged_off":
		var d struct {
			Result int `json:"result"`
		}
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		return LoggedOffEvent{Result: LogoffResult(d.Result)}
	case "login_key":
		var d struct {
			UniqueID uint64 `json:"unique_id"`
			LoginKey string `json:"login_key"`
		}
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		return LoginKeyEvent{UniqueID: d.UniqueID, LoginKey: d.LoginKey}
	case "machine_auth":
		var d struct {
			JobID    uint64 `json:"job_id"`
			FileName string `json:"file_name"`
			Offset   int64  `json:"offset"`
			Data     []byte `json:"data"`
		}
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		return MachineAuthEvent{JobID: d.JobID, FileName: d.FileName, Offset: d.Offset, Data: d.Data}
	case "chat_message":
		var d struct {
			SenderID   uint64 `json:"sender_id"`
			ChatRoomID uint64 `json:"chat_room_id"`
			Message    string `json:"message"`
		}
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		return ChatMessageEvent{SenderID: d.SenderID, ChatRoomID: d.ChatRoomID, Message: d.Message}
	case "chat_invite":
		var d struct {
			PatronID   uint64 `json:"patron_id"`
			ChatRoomID uint64 `json:"chat_room_id"`
		}
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		return ChatInviteEvent{PatronID: d.PatronID, ChatRoomID: d.ChatRoomID}
	case "friend_request":
		var d struct {
			UserID uint64 `json:"user_id"`
		}
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		return FriendRequestEvent{UserID: d.UserID}
	case "purchase_response":
		var d struct {
			Result int `json:"result"`
		}
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		return PurchaseResponseEvent{Result: PurchaseResult(d.Result)}
	default:
		c.logger.Debug("ignoring unknown frame", "type", f.Type)
	}
	return nil
}
