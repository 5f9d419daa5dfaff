package apiutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ablego/ablego/internal/rpc"
)

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Status string `json:"status"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "valid", payload: `{"status":"confirmed"}`},
		{name: "unknown field", payload: `{"status":"confirmed","extra":1}`, wantErr: true},
		{name: "trailing object", payload: `{"status":"confirmed"}{}`, wantErr: true},
		{name: "not json", payload: `status=confirmed`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			var dst body
			err := DecodeJSON(req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
		wantCode    string
	}{
		{
			name:        "field error",
			err:         FieldError{Field: "days", Reason: "must be greater than 0"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "days must be greater than 0",
		},
		{
			name:        "handler error",
			err:         HandlerError{Status: http.StatusConflict, Message: "Already done", Err: errors.New("dup")},
			wantStatus:  http.StatusConflict,
			wantMessage: "Already done",
		},
		{
			name:        "backend not found",
			err:         fmt.Errorf("load: %w", rpc.Errorf(rpc.CodeNotFound, "booking not found")),
			wantStatus:  http.StatusNotFound,
			wantMessage: "booking not found",
			wantCode:    rpc.CodeNotFound,
		},
		{
			name:        "backend internal",
			err:         rpc.Errorf(rpc.CodeInternal, ""),
			wantStatus:  http.StatusBadGateway,
			wantMessage: "Failed to load",
			wantCode:    rpc.CodeInternal,
		},
		{
			name:        "transport failure",
			err:         errors.New("dial tcp: connection refused"),
			wantStatus:  http.StatusBadGateway,
			wantMessage: "Failed to load",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, "Failed to load")

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.wantMessage || body.Code != tt.wantCode {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestIntQuery(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{query: "", want: 30},
		{query: "days=7", want: 7},
		{query: "days=0", wantErr: true},
		{query: "days=-3", wantErr: true},
		{query: "days=seven", wantErr: true},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		got, err := IntQuery(req, "days", 30)
		if (err != nil) != tt.wantErr {
			t.Fatalf("IntQuery(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("IntQuery(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestDateQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?date_from=2025-03-01&date_to=2025-03-15&bad=03/15/2025", nil)

	from, err := DateQuery(req, "date_from", false)
	if err != nil {
		t.Fatalf("date_from: %v", err)
	}
	if want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC); !from.Equal(want) {
		t.Fatalf("expected %v, got %v", want, from)
	}

	to, err := DateQuery(req, "date_to", true)
	if err != nil {
		t.Fatalf("date_to: %v", err)
	}
	if want := time.Date(2025, 3, 15, 23, 59, 59, 999999999, time.UTC); !to.Equal(want) {
		t.Fatalf("expected end of day %v, got %v", want, to)
	}

	missing, err := DateQuery(req, "absent", false)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for an absent date, got %v, %v", missing, err)
	}

	if _, err := DateQuery(req, "bad", false); err == nil {
		t.Fatal("expected an error for a non ISO date")
	}
}
