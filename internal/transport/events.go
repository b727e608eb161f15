// ABOUTME: Tagged event variants delivered by the transport client.
// ABOUTME: Each bot consumes these on its own dispatch loop, one at a time.

package transport

// Event is the closed set of transport callbacks. Every variant embeds
// nothing and carries only the data the core needs; handlers treat an
// unexpected variant as a no-op.
type Event interface {
	isEvent()
}

// ConnectedEvent reports the outcome of a Connect call.
type ConnectedEvent struct {
	OK bool
	// Reason describes the failure when OK is false.
	Reason string
}

// DisconnectedEvent reports a dropped or closed connection.
type DisconnectedEvent struct {
	// UserInitiated is true when the disconnect was requested locally.
	UserInitiated bool
}

// LoggedOnEvent reports the outcome of a LogOn call.
type LoggedOnEvent struct {
	Result LogonResult
	// Nonce is the web-session logon nonce, set when Result is LogonOK.
	Nonce string
}

// LoggedOffEvent reports a server-side logoff.
type LoggedOffEvent struct {
	Result LogoffResult
}

// LoginKeyEvent delivers a reusable login key. Receipt must be acknowledged
// via AcceptLoginKey or the server keeps resending it.
type LoginKeyEvent struct {
	UniqueID uint64
	LoginKey string
}

// MachineAuthEvent asks the client to persist a sentry-file fragment and
// answer with a whole-file hash.
type MachineAuthEvent struct {
	JobID    uint64
	FileName string
	Offset   int64
	Data     []byte
}

// ChatMessageEvent delivers a text message. ChatRoomID is zero for direct
// messages; SenderID identifies the author in both cases.
type ChatMessageEvent struct {
	SenderID   uint64
	ChatRoomID uint64
	Message    string
}

// ChatInviteEvent delivers an invitation to a group chat.
type ChatInviteEvent struct {
	PatronID   uint64
	ChatRoomID uint64
}

// FriendRequestEvent reports an incoming friend request.
type FriendRequestEvent struct {
	UserID uint64
}

// PurchaseResponseEvent reports an asynchronous purchase outcome pushed by
// the server outside a RedeemKey call.
type PurchaseResponseEvent struct {
	Result PurchaseResult
}

func (ConnectedEvent) isEvent()        {}
func (DisconnectedEvent) isEvent()     {}
func (LoggedOnEvent) isEvent()         {}
func (LoggedOffEvent) isEvent()        {}
func (LoginKeyEvent) isEvent()         {}
func (MachineAuthEvent) isEvent()      {}
func (ChatMessageEvent) isEvent()      {}
func (ChatInviteEvent) isEvent()       {}
func (FriendRequestEvent) isEvent()    {}
func (PurchaseResponseEvent) isEvent() {}
