package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const exchangeTimeout = 5 * time.Second

// TokenSet is the subset of the token response retained in the
// session. Anything else the provider returns is discarded.
type TokenSet struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// AuthorizeURL builds the PKCE authorization redirect.
func AuthorizeURL(md Metadata, clientID, redirectURI, scope, state, challenge string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", scope)
	q.Set("state", state)
	q.Set("code_challenge_method", "S256")
	q.Set("code_challenge", challenge)

	sep := "?"
	if strings.Contains(md.AuthorizationEndpoint, "?") {
		sep = "&"
	}
	return md.AuthorizationEndpoint + sep + q.Encode()
}

// ExchangeForm carries the authorization-code grant parameters.
type ExchangeForm struct {
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
}

// Exchange redeems an authorization code at the token endpoint. The
// returned error text is suitable for the 502 response body: either
// "Token exchange failed: <status>" or the transport error.
func Exchange(ctx context.Context, tokenEndpoint string, form ExchangeForm) (TokenSet, error) {
	v := url.Values{}
	v.Set("grant_type", "authorization_code")
	v.Set("code", form.Code)
	v.Set("redirect_uri", form.RedirectURI)
	v.Set("client_id", form.ClientID)
	v.Set("code_verifier", form.CodeVerifier)
	if form.ClientSecret != "" {
		v.Set("client_secret", form.ClientSecret)
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(v.Encode()))
	if err != nil {
		return TokenSet{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := (&http.Client{Timeout: exchangeTimeout}).Do(req)
	if err != nil {
		return TokenSet{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenSet{}, fmt.Errorf("Token exchange failed: %d", resp.StatusCode)
	}

	var ts TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&ts); err != nil {
		return TokenSet{}, err
	}
	return ts, nil
}
