package session

import "errors"

var (
	// ErrNoRefreshToken is returned by Refresh, without any network call,
	// when no refresh token can be found.
	ErrNoRefreshToken = errors.New("session: no active session")

	// ErrInvalidToken is returned when the backend hands out an access token
	// that cannot be decoded or is already expired.
	ErrInvalidToken = errors.New("session: unusable access token")
)
