// ABOUTME: Web-backed link session implementing the guard linking flow.
// ABOUTME: One session per linking attempt; cookies and tokens live in the struct.

package websession

import (
	"context"
	"fmt"
	"net/http"

	"github.com/farmhand-dev/farmhand/internal/guard"
)

// LinkSession is one authenticator-linking attempt. It implements
// guard.LinkSession against the web surface.
type LinkSession struct {
	client   *Client
	login    string
	password string

	// token identifies the provisional authenticator between add and
	// finalize calls.
	token string
}

// NewLinkSession starts a linking attempt for the given credentials.
func (c *Client) NewLinkSession(login, password string) guard.LinkSession {
	return &LinkSession{client: c, login: login, password: password}
}

// Login performs the interactive web login step.
func (s *LinkSession) Login(ctx context.Context, emailCode string) (guard.LoginResult, error) {
	payload := map[string]string{
		"login":    s.login,
		"password": s.password,
	}
	if emailCode != "" {
		payload["email_code"] = emailCode
	}

	var resp struct {
		Result string `json:"result"`
	}
	if err := s.client.doJSON(ctx, http.MethodPost, "/twofactor/login", payload, &resp); err != nil {
		return guard.LoginFailure, err
	}

	switch resp.Result {
	case "ok":
		return guard.LoginOK, nil
	case "need_email":
		return guard.LoginNeedEmail, nil
	case "bad_credentials":
		return guard.LoginBadCredentials, nil
	}
	return guard.LoginFailure, fmt.Errorf("unexpected login result %q", resp.Result)
}

// AddAuthenticator requests a new authenticator for the account.
func (s *LinkSession) AddAuthenticator(ctx context.Context, phoneNumber string) (guard.LinkResult, *guard.Authenticator, error) {
	payload := map[string]string{}
	if phoneNumber != "" {
		payload["phone_number"] = phoneNumber
	}

	var resp struct {
		Result        string `json:"result"`
		Token         string `json:"token"`
		Authenticator struct {
			SharedSecret   string `json:"shared_secret"`
			IdentitySecret string `json:"identity_secret"`
			DeviceID       string `json:"device_id"`
			RevocationCode string `json:"revocation_code"`
			Serial         uint64 `json:"serial_number"`
			AccountName    string `json:"account_name"`
		} `json:"authenticator"`
	}
	if err := s.client.doJSON(ctx, http.MethodPost, "/twofactor/add", payload, &resp); err != nil {
		return guard.LinkFailure, nil, err
	}

	switch resp.Result {
	case "awaiting_finalization":
		s.token = resp.Token
		return guard.LinkAwaitingFinalization, &guard.Authenticator{
			SharedSecret:   resp.Authenticator.SharedSecret,
			IdentitySecret: resp.Authenticator.IdentitySecret,
			DeviceID:       resp.Authenticator.DeviceID,
			RevocationCode: resp.Authenticator.RevocationCode,
			Serial:         resp.Authenticator.Serial,
			AccountName:    resp.Authenticator.AccountName,
		}, nil
	case "must_provide_phone_number":
		return guard.LinkMustProvidePhoneNumber, nil, nil
	}
	return guard.LinkFailure, nil, fmt.Errorf("unexpected link result %q", resp.Result)
}

// Finalize completes linking with the SMS code.
func (s *LinkSession) Finalize(ctx context.Context, smsCode string) (guard.FinalizeResult, error) {
	payload := map[string]string{
		"token":    s.token,
		"sms_code": smsCode,
	}

	var resp struct {
		Result string `json:"result"`
	}
	if err := s.client.doJSON(ctx, http.MethodPost, "/twofactor/finalize", payload, &resp); err != nil {
		return guard.FinalizeFailure, err
	}

	switch resp.Result {
	case "success":
		return guard.FinalizeSuccess, nil
	case "bad_sms_code":
		return guard.FinalizeBadSMSCode, nil
	}
	return guard.FinalizeFailure, fmt.Errorf("unexpected finalize result %q", resp.Result)
}

// Deactivate reverts the provisional authenticator after a failed finalize.
func (s *LinkSession) Deactivate(ctx context.Context) error {
	payload := map[string]string{"token": s.token}
	return s.client.doJSON(ctx, http.MethodPost, "/twofactor/cancel", payload, nil)
}
