// Package rpc is the request/response boundary between the dashboard and the
// backend that owns bookings, users and notifications.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	CodeNotFound     = "not_found"
	CodeInvalid      = "invalid_argument"
	CodeInternal     = "internal"
	CodeUnauthorized = "unauthorized"
)

// Client executes a named procedure. params is encoded as JSON; the JSON
// result is decoded into out when out is non-nil.
type Client interface {
	Call(ctx context.Context, procedure string, params any, out any) error
}

// Error is an error reported by the backend itself. Its Message is safe to
// show to an administrator.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Errorf builds a backend-reported error.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError reports whether err carries a backend-reported error.
func AsError(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// DecodeParams unmarshals raw procedure params into dst. Empty params leave
// dst untouched.
func DecodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return Errorf(CodeInvalid, "invalid parameters: %v", err)
	}
	return nil
}
