package apiutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

func ParsePositiveIntField(raw string, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, FieldError{Field: field, Reason: "must be greater than 0"}
	}
	return value, nil
}

// IntQuery returns the positive integer query parameter key, or fallback when
// it is absent.
func IntQuery(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	return ParsePositiveIntField(raw, key)
}

// DateQuery parses a YYYY-MM-DD query parameter. An absent parameter yields
// nil. With endOfDay the result is the last instant of that day, so a range
// ending on a date includes it.
func DateQuery(r *http.Request, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return nil, FieldError{Field: key, Reason: "must be a date in YYYY-MM-DD format"}
	}
	if endOfDay {
		parsed = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	return &parsed, nil
}

// PathID returns the non-empty path value name.
func PathID(r *http.Request, name string) (string, error) {
	id := strings.TrimSpace(r.PathValue(name))
	if id == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return id, nil
}
