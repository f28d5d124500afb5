package session

import (
	"encoding/json"
)

// Backend endpoints used by the controller.
const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
	PathRefresh  = "/auth/refresh"
	PathLogout   = "/auth/logout"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// authResponse is the data payload of login, register and refresh.
type authResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken OptionalString `json:"refreshToken"`
	User         *Profile       `json:"user,omitempty"`
}

// OptionalString distinguishes an omitted JSON field (Set is false) from an
// explicit null or string (Set is true; null decodes to "").
type OptionalString struct {
	Value string
	Set   bool
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = ""
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
