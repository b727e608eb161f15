// ABOUTME: Collaborator boundary for the remote service's wire transport.
// ABOUTME: Defines the client interface, logon details, and request/response payloads.

package transport

import "context"

// Client is the transport collaborator owned by each bot. Implementations
// handle framing, encryption, and the login packet exchange; the core only
// drives connect/disconnect/logon and consumes events from Events().
type Client interface {
	// Connect begins a connection attempt. The outcome arrives as a
	// ConnectedEvent; a failed attempt will not produce further events
	// until Connect is called again.
	Connect()

	// Disconnect tears down the current connection. The resulting
	// DisconnectedEvent carries UserInitiated=true.
	Disconnect()

	// Connected reports whether a connection is currently established.
	Connected() bool

	// LogOn issues a logon request on an established connection.
	LogOn(details LogOnDetails)

	// AcceptLoginKey acknowledges receipt of a reusable login key so the
	// server stops resending it.
	AcceptLoginKey(uniqueID uint64)

	// SendMachineAuthResponse answers a machine-auth update with the
	// written byte count, file size, and whole-file hash.
	SendMachineAuthResponse(resp MachineAuthResponse)

	// PlayGames announces the set of games the account is playing.
	// An empty or nil slice resets presence to "playing nothing".
	PlayGames(gameIDs []uint32)

	SetNickname(nickname string)
	SetPresenceOnline()
	AddFriend(userID uint64)

	JoinChat(chatID uint64)
	LeaveChat(chatID uint64)
	SendChatMessage(chatID uint64, message string)
	SendMessage(userID uint64, message string)

	// RedeemKey submits a redemption code for the account and blocks until
	// the service answers with a purchase receipt.
	RedeemKey(ctx context.Context, key string) (*PurchaseReceipt, error)

	// RequestFreeLicense requests a no-cost license for the given game.
	RequestFreeLicense(ctx context.Context, gameID uint32) (*FreeLicenseResult, error)

	// ServerTime returns the service-synchronized unix time, used for
	// time-bucket code generation.
	ServerTime() int64

	// Events delivers transport callbacks in arrival order. The channel is
	// closed when the client is torn down for good.
	Events() <-chan Event
}

// LogOnDetails carries everything a logon request needs.
type LogOnDetails struct {
	Username       string
	Password       string
	AuthCode       string // one-time mailed guard code
	TwoFactorCode  string // time-bucket authenticator code
	LoginKey       string // reusable token from a previous session
	LoginID        uint32 // must be identical across all bots in a deployment
	SentryHash     []byte // whole-file hash of the persisted sentry file
	RememberLogin  bool
}

// MachineAuthResponse acknowledges a sentry-file fragment write.
type MachineAuthResponse struct {
	JobID        uint64
	FileName     string
	Offset       int64
	BytesWritten int
	FileSize     int
	Hash         []byte
}

// PurchaseReceipt is the service's answer to a key redemption.
type PurchaseReceipt struct {
	Result PurchaseResult
	Items  []string // granted item names, may be empty
}

// FreeLicenseResult is the service's answer to a free-license request.
type FreeLicenseResult struct {
	OK              bool
	GrantedApps     []uint32
	GrantedPackages []uint32
}
