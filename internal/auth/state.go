package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrStateInvalid = errors.New("auth: invalid state")
	ErrStateExpired = errors.New("auth: state expired")
)

// stateMaxAge is the window a signed state stays acceptable.
const stateMaxAge = 600 * time.Second

// StatePayload is the signed content of an OAuth2 state parameter.
// Field order matches the canonical (sorted-key) JSON encoding. V
// carries the PKCE verifier so a callback arriving without its
// session cookie can still complete the exchange.
type StatePayload struct {
	N string `json:"n"`
	T int64  `json:"t"`
	V string `json:"v,omitempty"`
}

// MakeState builds base64url(payload) + "." + base64url(HMAC-SHA256).
func MakeState(key []byte, verifier string, now time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	payload := StatePayload{
		N: base64.RawURLEncoding.EncodeToString(nonce),
		T: now.Unix(),
		V: verifier,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(raw)
	return base64.RawURLEncoding.EncodeToString(raw) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifyState checks the signature and the age bound and returns the
// payload. The signature check is constant time.
func VerifyState(key []byte, state string, now time.Time) (StatePayload, error) {
	dot := strings.IndexByte(state, '.')
	if dot < 0 {
		return StatePayload{}, ErrStateInvalid
	}

	raw, err := base64.RawURLEncoding.DecodeString(state[:dot])
	if err != nil {
		return StatePayload{}, ErrStateInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(state[dot+1:])
	if err != nil {
		return StatePayload{}, ErrStateInvalid
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(raw)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return StatePayload{}, ErrStateInvalid
	}

	var payload StatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return StatePayload{}, ErrStateInvalid
	}
	if now.Sub(time.Unix(payload.T, 0)) > stateMaxAge {
		return StatePayload{}, ErrStateExpired
	}
	return payload, nil
}
