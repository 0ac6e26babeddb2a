package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

// authorizeBearer checks the static API token. An empty configured
// token disables auth entirely, which is the expected mode for a
// loopback-only daemon.
func authorizeBearer(header, token string) *authError {
	if token == "" {
		return nil
	}
	if header == "" {
		return &authError{status: http.StatusUnauthorized, code: "unauthorized", message: "missing Authorization header"}
	}
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return &authError{status: http.StatusUnauthorized, code: "unauthorized", message: "Authorization header must be a bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
		return &authError{status: http.StatusUnauthorized, code: "unauthorized", message: "invalid token"}
	}
	return nil
}
