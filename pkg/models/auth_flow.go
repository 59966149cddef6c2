package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// OAuthState is the CSRF payload round-tripped through the provider's
// authorization page in the state query parameter.
type OAuthState struct {
	State  string `json:"state"`
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
}

// Encode returns base64url(JSON(state)) with padding.
func (s OAuthState) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal oauth state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeOAuthState parses an encoded state, with or without padding.
func DecodeOAuthState(encoded string) (OAuthState, error) {
	var s OAuthState

	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return s, fmt.Errorf("state is not base64url: %w", err)
		}
	}

	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("state is not a json object: %w", err)
	}
	if s.State == "" {
		return s, fmt.Errorf("state token is empty")
	}

	return s, nil
}

// Credential is the token endpoint response, kept as the provider returned it.
type Credential map[string]any

// ParseCredential decodes a credential blob. It must be a JSON object.
func ParseCredential(raw string) (Credential, error) {
	var c Credential
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("credential is not a json object: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("credential is null")
	}
	return c, nil
}

// AccessToken returns the access_token field, or "" when absent or not a string.
func (c Credential) AccessToken() string {
	token, _ := c["access_token"].(string)
	return token
}

// CallbackResult identifies whose authorization a callback completed.
type CallbackResult struct {
	Provider Provider `json:"provider"`
	OrgID    string   `json:"org_id"`
	UserID   string   `json:"user_id"`
}
