package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	APIKeyHeader = "X-Backend-Key"
	// ChangeStreamPath serves backend change notifications to remote
	// dashboards as a WebSocket stream.
	ChangeStreamPath = "/rpc/changes"
	maxRequestBytes  = 1 << 20
)

// RequireAPIKey rejects requests whose APIKeyHeader does not match apiKey. An
// empty apiKey disables the check.
func RequireAPIKey(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(APIKeyHeader)), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, Errorf(CodeUnauthorized, "invalid api key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewHandler exposes the dispatcher as POST /rpc/{procedure}. An empty apiKey
// disables the key check.
func NewHandler(d *Dispatcher, apiKey string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /rpc/{procedure}", RequireAPIKey(apiKey, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.Ctx(r.Context())

		procedure := r.PathValue("procedure")
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, Errorf(CodeInvalid, "failed to read request body"))
			return
		}
		if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
			writeError(w, http.StatusBadRequest, Errorf(CodeInvalid, "request body is not valid JSON"))
			return
		}

		result, err := d.Invoke(r.Context(), procedure, body)
		if err != nil {
			rpcErr, ok := AsError(err)
			if !ok {
				logger.Error().Err(err).Str("procedure", procedure).Msg("RPC invocation failed")
				rpcErr = &Error{Code: CodeInternal, Message: "internal error"}
			}
			writeError(w, statusForCode(rpcErr.Code), rpcErr)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(result); err != nil {
			logger.Warn().Err(err).Str("procedure", procedure).Msg("Failed to write RPC response")
		}
	})))
	return mux
}

func statusForCode(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalid:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, rpcErr *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rpcErr)
}

// HTTPClient calls procedures on a remote backend over HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a client for baseURL. A nil httpClient gets a client
// with a 15 second timeout.
func NewHTTPClient(baseURL, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// Call implements Client. Backend failures come back as *Error; transport and
// decoding failures are returned as ordinary errors.
func (c *HTTPClient) Call(ctx context.Context, procedure string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", procedure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+procedure, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", procedure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", procedure, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes*8))
	if err != nil {
		return fmt.Errorf("read %s response: %w", procedure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var rpcErr Error
		if err := json.Unmarshal(payload, &rpcErr); err != nil || rpcErr.Message == "" {
			return fmt.Errorf("call %s: unexpected status %d", procedure, resp.StatusCode)
		}
		return &rpcErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s result: %w", procedure, err)
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
var _ Client = (*Dispatcher)(nil)

