package bridge

import (
	"bytes"
	"encoding/json"
	"time"
)

// Profile is the normalized user profile returned by a strategy.
type Profile struct {
	ID          string         `json:"id"`
	Username    string         `json:"username,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
	Name        *ProfileName   `json:"name,omitempty"`
	FirstName   string         `json:"firstName,omitempty"`
	LastName    string         `json:"lastName,omitempty"`
	Emails      []ProfileEmail `json:"emails,omitempty"`
	Email       string         `json:"email,omitempty"`
	Raw         map[string]any `json:"_json,omitempty"`
}

// ProfileName is the structured name some providers return.
type ProfileName struct {
	GivenName  string `json:"givenName,omitempty"`
	MiddleName string `json:"middleName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
}

func (n *ProfileName) isZero() bool {
	return n == nil || (n.GivenName == "" && n.MiddleName == "" && n.FamilyName == "")
}

// ProfileEmail is one email entry. Providers send either a plain string or
// an object with a value field.
type ProfileEmail struct {
	Value    string `json:"value"`
	Type     string `json:"type,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

func (e *ProfileEmail) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Value)
	}

	type alias ProfileEmail
	var out alias
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*e = ProfileEmail(out)
	return nil
}

// Tokens are the provider credentials of a user for one strategy.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}
