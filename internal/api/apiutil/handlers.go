package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ablego/ablego/internal/rpc"
)

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON body of every failed admin API request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteError writes message as an ErrorResponse.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if err := WriteJSON(w, status, ErrorResponse{Error: message}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write error response")
	}
}

// HandleError maps err to a status and writes it. Backend-reported errors keep
// their message and code. FieldErrors and HandlerErrors are reported as given.
// Anything else is logged and reported as fallback with 502, since the
// dashboard itself holds no data of its own.
func HandleError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	logger := log.Ctx(r.Context())

	var fieldErr FieldError
	var handlerErr HandlerError
	switch {
	case errors.As(err, &fieldErr):
		WriteError(w, r, http.StatusBadRequest, fieldErr.Error())
		return
	case errors.As(err, &handlerErr):
		if handlerErr.Err != nil {
			logger.Warn().Err(handlerErr.Err).Int("status", handlerErr.Status).Msg(handlerErr.Message)
		}
		WriteError(w, r, handlerErr.Status, handlerErr.Message)
		return
	}

	if rpcErr, ok := rpc.AsError(err); ok {
		body := ErrorResponse{Error: rpcErr.Message, Code: rpcErr.Code}
		if body.Error == "" {
			body.Error = fallback
		}
		if writeErr := WriteJSON(w, StatusForCode(rpcErr.Code), body); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write error response")
		}
		return
	}

	logger.Error().Err(err).Msg(fallback)
	WriteError(w, r, http.StatusBadGateway, fallback)
}

// StatusForCode maps a backend error code to the status returned to admin
// clients. A backend rejecting our API key is a gateway failure, not the
// admin's.
func StatusForCode(code string) int {
	switch code {
	case rpc.CodeNotFound:
		return http.StatusNotFound
	case rpc.CodeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
