// ABOUTME: Closed result enumerations for logon, logoff, and purchase outcomes.
// ABOUTME: String forms are user-visible in status replies and redemption reports.

package transport

// LogonResult enumerates the outcomes of a logon request.
type LogonResult int

const (
	LogonOK LogonResult = iota
	LogonAccountDenied
	LogonNeedTwoFactor
	LogonInvalidPassword
	LogonNoConnection
	LogonServiceUnavailable
	LogonTimeout
	LogonTryAnotherServer
	LogonRateLimitExceeded
	LogonAccountDisabled
)

func (r LogonResult) String() string {
	switch r {
	case LogonOK:
		return "OK"
	case LogonAccountDenied:
		return "AccountLogonDenied"
	case LogonNeedTwoFactor:
		return "NeedTwoFactor"
	case LogonInvalidPassword:
		return "InvalidPassword"
	case LogonNoConnection:
		return "NoConnection"
	case LogonServiceUnavailable:
		return "ServiceUnavailable"
	case LogonTimeout:
		return "Timeout"
	case LogonTryAnotherServer:
		return "TryAnotherCM"
	case LogonRateLimitExceeded:
		return "RateLimitExceeded"
	case LogonAccountDisabled:
		return "AccountDisabled"
	}
	return "Unknown"
}

// LogoffResult enumerates server-side logoff reasons.
type LogoffResult int

const (
	LogoffUnknown LogoffResult = iota
	LogoffAlreadyLoggedInElsewhere
	LogoffLoggedInElsewhere
	LogoffSessionReplaced
)

func (r LogoffResult) String() string {
	switch r {
	case LogoffAlreadyLoggedInElsewhere:
		return "AlreadyLoggedInElsewhere"
	case LogoffLoggedInElsewhere:
		return "LoggedInElsewhere"
	case LogoffSessionReplaced:
		return "LogonSessionReplaced"
	}
	return "Unknown"
}

// Elsewhere reports whether the logoff means the account is in use from
// another session.
func (r LogoffResult) Elsewhere() bool {
	switch r {
	case LogoffAlreadyLoggedInElsewhere, LogoffLoggedInElsewhere, LogoffSessionReplaced:
		return true
	}
	return false
}

// PurchaseResult enumerates the outcomes of a key redemption.
type PurchaseResult int

const (
	PurchaseOK PurchaseResult = iota
	PurchaseAlreadyOwned
	PurchaseBaseGameRequired
	PurchaseOnCooldown
	PurchaseRegionLocked
	PurchaseDuplicatedKey
	PurchaseInvalidKey
	PurchaseTimeout
	PurchaseUnknown
)

func (r PurchaseResult) String() string {
	switch r {
	case PurchaseOK:
		return "OK"
	case PurchaseAlreadyOwned:
		return "AlreadyOwned"
	case PurchaseBaseGameRequired:
		return "BaseGameRequired"
	case PurchaseOnCooldown:
		return "OnCooldown"
	case PurchaseRegionLocked:
		return "RegionLocked"
	case PurchaseDuplicatedKey:
		return "DuplicatedKey"
	case PurchaseInvalidKey:
		return "InvalidKey"
	case PurchaseTimeout:
		return "Timeout"
	}
	return "Unknown"
}
