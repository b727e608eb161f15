// ABOUTME: Interactive linking and delinking of a local authenticator.
// ABOUTME: Ports the two-loop login/add flow with persist-before-finalize semantics.

package guard

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/farmhand-dev/farmhand/internal/input"
)

// LoginResult enumerates interactive web-login outcomes during linking.
type LoginResult int

const (
	LoginOK LoginResult = iota
	LoginNeedEmail
	LoginBadCredentials
	LoginFailure
)

// LinkResult enumerates authenticator-add outcomes.
type LinkResult int

const (
	LinkAwaitingFinalization LinkResult = iota
	LinkMustProvidePhoneNumber
	LinkFailure
)

// FinalizeResult enumerates finalization outcomes.
type FinalizeResult int

const (
	FinalizeSuccess FinalizeResult = iota
	FinalizeBadSMSCode
	FinalizeFailure
)

// LinkSession is one linking attempt against the web collaborator. The
// session keeps its own cookies and tokens between calls.
type LinkSession interface {
	// Login attempts the interactive login; emailCode is empty on the
	// first call and carries the prompted guard code on retries.
	Login(ctx context.Context, emailCode string) (LoginResult, error)

	// AddAuthenticator requests a new authenticator; phoneNumber is empty
	// unless a prior call demanded one.
	AddAuthenticator(ctx context.Context, phoneNumber string) (LinkResult, *Authenticator, error)

	// Finalize completes linking with the SMS code sent to the account's
	// phone.
	Finalize(ctx context.Context, smsCode string) (FinalizeResult, error)

	// Deactivate reverts a partially linked authenticator.
	Deactivate(ctx context.Context) error
}

// Link runs the interactive linking flow and persists the new authenticator
// to path. On any failure after the authenticator was provisionally created,
// it is deactivated best-effort and the file removed.
func Link(ctx context.Context, session LinkSession, prompter input.Prompter, path, botName string, logger *slog.Logger) (*Authenticator, error) {
	logger.Info("linking new local authenticator")

	emailCode := ""
	for {
		result, err := session.Login(ctx, emailCode)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		if result == LoginOK {
			break
		}
		if result == LoginNeedEmail {
			emailCode = prompter.Request(botName, input.KindGuardCode)
			continue
		}
		return nil, fmt.Errorf("login failed with result %d", result)
	}

	var authenticator *Authenticator
	phoneNumber := ""
	for {
		result, a, err := session.AddAuthenticator(ctx, phoneNumber)
		if err != nil {
			return nil, fmt.Errorf("adding authenticator: %w", err)
		}
		if result == LinkAwaitingFinalization {
			authenticator = a
			break
		}
		if result == LinkMustProvidePhoneNumber {
			phoneNumber = prompter.Request(botName, input.KindPhoneNumber)
			continue
		}
		return nil, fmt.Errorf("adding authenticator failed with result %d", result)
	}

	// The secret must hit disk before finalization; a crash between the two
	// would otherwise orphan the account's second factor.
	if err := authenticator.Save(path); err != nil {
		return nil, fmt.Errorf("persisting authenticator: %w", err)
	}

	smsCode := prompter.Request(botName, input.KindSMSCode)
	result, err := session.Finalize(ctx, smsCode)
	if err != nil || result != FinalizeSuccess {
		if derr := session.Deactivate(ctx); derr != nil {
			logger.Warn("deactivating failed authenticator", "error", derr)
		}
		if rerr := os.Remove(path); rerr != nil {
			logger.Warn("removing authenticator file", "error", rerr)
		}
		if err != nil {
			return nil, fmt.Errorf("finalizing authenticator: %w", err)
		}
		return nil, fmt.Errorf("finalizing authenticator failed with result %d", result)
	}

	logger.Info("successfully linked local authenticator")
	prompter.Announce(botName, "Authenticator revocation code", authenticator.RevocationCode)

	return authenticator, nil
}

// Deactivator removes a linked authenticator from the account remotely.
type Deactivator interface {
	DeactivateAuthenticator(ctx context.Context, a *Authenticator) error
}

// Delink deactivates the authenticator remotely and removes its file.
// In-memory state is already considered cleared by the caller, so a failed
// file delete is logged but not fatal.
func Delink(ctx context.Context, d Deactivator, a *Authenticator, path string, logger *slog.Logger) bool {
	if a == nil {
		return false
	}

	ok := true
	if err := d.DeactivateAuthenticator(ctx, a); err != nil {
		logger.Warn("deactivating authenticator", "error", err)
		ok = false
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("removing authenticator file", "error", err)
	}

	return ok
}
