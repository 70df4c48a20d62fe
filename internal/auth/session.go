package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Sbussiso/OpenSentry/internal/crypto"
)

// SessionCookie carries the signed session token.
const SessionCookie = "opensentry_session"

// sessionTTL bounds how long a login survives without re-auth.
const sessionTTL = 7 * 24 * time.Hour

// Session is the per-request authentication state. It lives entirely
// in a signed cookie; there is no server-side session map.
type Session struct {
	LoggedIn       bool   `json:"logged_in,omitempty"`
	User           string `json:"user,omitempty"`
	OAuth2Fallback bool   `json:"oauth2_fallback,omitempty"`
	OAuth2State    string `json:"oauth2_state,omitempty"`
	CodeVerifier   string `json:"code_verifier,omitempty"`
	Next           string `json:"next,omitempty"`
	Tokens         string `json:"tokens,omitempty"`
}

type sessionClaims struct {
	Session
	jwt.RegisteredClaims
}

// Sessions signs and verifies session cookies (HS256) and seals
// OAuth2 token sets so they never appear in the cookie as plaintext.
type Sessions struct {
	signingKey []byte
	sealKey    []byte
}

func NewSessions(secret string) *Sessions {
	return &Sessions{
		signingKey: []byte(secret),
		sealKey:    crypto.DeriveKey(secret),
	}
}

// Read returns the session carried by the request, or a zero session
// when the cookie is absent, expired, or fails verification.
func (s *Sessions) Read(r *http.Request) Session {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return Session{}
	}

	token, err := jwt.ParseWithClaims(c.Value, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !token.Valid {
		return Session{}
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok {
		return Session{}
	}
	return claims.Session
}

// Write replaces the session cookie.
func (s *Sessions) Write(w http.ResponseWriter, sess Session) error {
	now := time.Now().UTC()
	claims := sessionClaims{
		Session: sess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// SealTokens encrypts a token set for cookie storage.
func (s *Sessions) SealTokens(ts TokenSet) (string, error) {
	data, err := json.Marshal(ts)
	if err != nil {
		return "", err
	}
	return crypto.Seal(s.sealKey, data)
}

// OpenTokens decrypts a sealed token set.
func (s *Sessions) OpenTokens(blob string) (TokenSet, error) {
	data, err := crypto.Open(s.sealKey, blob)
	if err != nil {
		return TokenSet{}, err
	}
	var ts TokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return TokenSet{}, errors.Join(crypto.ErrDecryption, err)
	}
	return ts, nil
}

// StateKey exposes the signing key for OAuth2 state HMACs.
func (s *Sessions) StateKey() []byte { return s.signingKey }
