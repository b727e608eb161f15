// ABOUTME: Local authenticator state and time-bucket code generation.
// ABOUTME: Secrets persist as a JSON file next to the bot's other credential files.

package guard

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
)

// codeAlphabet is the service's code character set; codes avoid easily
// confused characters, so this is not a plain base-N encoding.
const codeAlphabet = "23456789BCDFGHJKMNPQRTVWXY"

// codeLength is the number of characters in a generated code.
const codeLength = 5

// codePeriod is the validity bucket for generated codes, in seconds.
const codePeriod = 30

// Authenticator holds the secrets of a linked local authenticator.
// The structure is opaque to the rest of the core; only this package and
// the web session collaborator interpret it.
type Authenticator struct {
	SharedSecret   string `json:"shared_secret"`
	IdentitySecret string `json:"identity_secret"`
	DeviceID       string `json:"device_id"`
	RevocationCode string `json:"revocation_code"`
	Serial         uint64 `json:"serial_number"`
	AccountName    string `json:"account_name"`
}

// Load reads a persisted authenticator. A missing file is not an error for
// callers; they should check os.IsNotExist on the wrapped error.
func Load(path string) (*Authenticator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading authenticator file: %w", err)
	}

	var a Authenticator
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing authenticator file: %w", err)
	}

	return &a, nil
}

// Save persists the authenticator. Losing this file after linking locks the
// account out of its second factor, so it is written before finalization.
func (a *Authenticator) Save(path string) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding authenticator: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing authenticator file: %w", err)
	}

	return nil
}

// GenerateCode derives the current time-bucket code from the
// service-synchronized unix time.
func (a *Authenticator) GenerateCode(serverTime int64) string {
	secret, err := base64.StdEncoding.DecodeString(a.SharedSecret)
	if err != nil {
		return ""
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(serverTime/codePeriod))

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	start := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[start:start+4]) & 0x7fffffff

	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeAlphabet[value%uint32(len(codeAlphabet))]
		value /= uint32(len(codeAlphabet))
	}

	return string(code)
}

// CodeValidity returns how many seconds the code generated at serverTime
// remains valid, for operator display only.
func CodeValidity(serverTime int64) int64 {
	return codePeriod - serverTime%codePeriod
}

// Confirmation is a pending mobile confirmation awaiting approval.
type Confirmation struct {
	ID          uint64
	Nonce       uint64
	Description string
}
