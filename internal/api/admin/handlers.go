// internal/api/admin/handlers.go
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ablego/ablego/internal/admindashboard"
	"github.com/ablego/ablego/internal/api/apiutil"
	"github.com/ablego/ablego/internal/rpc"
)

const (
	requestTimeout     = 20 * time.Second
	defaultPeriodDays  = 30
	msgDashboardFailed = "Failed to load dashboard"
	msgOverviewFailed  = "Failed to load overview"
)

// Handlers serves the admin dashboard JSON API over one shared store.
type Handlers struct {
	store     *admindashboard.Store
	service   *admindashboard.Service
	formatter *admindashboard.Formatter
	changes   http.Handler
}

// NewHandlers wires the endpoints. changes serves the WebSocket change stream;
// when nil the route answers 503.
func NewHandlers(store *admindashboard.Store, service *admindashboard.Service, formatter *admindashboard.Formatter, changes http.Handler) *Handlers {
	return &Handlers{
		store:     store,
		service:   service,
		formatter: formatter,
		changes:   changes,
	}
}

// RegisterRoutes adds every admin endpoint to mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/admin/dashboard", h.HandleDashboard)
	mux.HandleFunc("POST /api/v1/admin/dashboard/statistics", h.HandleLoadStatistics)
	mux.HandleFunc("POST /api/v1/admin/dashboard/analytics/bookings", h.HandleLoadBookingAnalytics)
	mux.HandleFunc("POST /api/v1/admin/dashboard/analytics/users", h.HandleLoadUserAnalytics)
	mux.HandleFunc("PUT /api/v1/admin/dashboard/auto-refresh", h.HandleAutoRefresh)
	mux.HandleFunc("DELETE /api/v1/admin/dashboard/error", h.HandleClearError)
	mux.HandleFunc("POST /api/v1/admin/notifications/load", h.HandleLoadNotifications)
	mux.HandleFunc("POST /api/v1/admin/notifications/{id}/read", h.HandleMarkNotificationRead)
	mux.HandleFunc("GET /api/v1/admin/search/bookings", h.HandleSearchBookings)
	mux.HandleFunc("GET /api/v1/admin/search/users", h.HandleSearchUsers)
	mux.HandleFunc("POST /api/v1/admin/bookings/{id}/status", h.HandleUpdateBookingStatus)
	mux.HandleFunc("POST /api/v1/admin/users/{id}/status", h.HandleUpdateUserStatus)
	mux.HandleFunc("GET /api/v1/admin/overview", h.HandleOverview)
	mux.HandleFunc("GET /api/v1/admin/changes", h.HandleChanges)
}

// HandleDashboard returns the current dashboard view for GET /api/v1/admin/dashboard.
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, r, http.StatusOK)
}

// HandleLoadStatistics reloads statistics for POST /api/v1/admin/dashboard/statistics.
func (h *Handlers) HandleLoadStatistics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	h.respondLoad(w, r, h.store.LoadDashboardStatistics(ctx))
}

// HandleLoadBookingAnalytics loads the daily booking series for
// POST /api/v1/admin/dashboard/analytics/bookings. days defaults to 30.
func (h *Handlers) HandleLoadBookingAnalytics(w http.ResponseWriter, r *http.Request) {
	days, err := apiutil.IntQuery(r, "days", defaultPeriodDays)
	if err != nil {
		apiutil.HandleError(w, r, err, msgDashboardFailed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	h.respondLoad(w, r, h.store.LoadBookingAnalytics(ctx, days))
}

// HandleLoadUserAnalytics loads per-role user counts for POST /api/v1/admin/dashboard/analytics/users.
func (h *Handlers) HandleLoadUserAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	h.respondLoad(w, r, h.store.LoadUserAnalytics(ctx))
}

// HandleLoadNotifications reloads the admin feed for POST /api/v1/admin/notifications/load.
func (h *Handlers) HandleLoadNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	h.respondLoad(w, r, h.store.LoadNotifications(ctx))
}

// HandleSearchBookings runs a booking search for GET /api/v1/admin/search/bookings.
// It accepts term, status, date_from, date_to and limit.
func (h *Handlers) HandleSearchBookings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := admindashboard.BookingSearchParams{
		Term:   strings.TrimSpace(query.Get("term")),
		Status: strings.TrimSpace(query.Get("status")),
	}

	var err error
	if params.Limit, err = apiutil.IntQuery(r, "limit", 0); err != nil {
		apiutil.HandleError(w, r, err, msgDashboardFailed)
		return
	}
	if params.DateFrom, err = apiutil.DateQuery(r, "date_from", false); err != nil {
		apiutil.HandleError(w, r, err, msgDashboardFailed)
		return
	}
	if params.DateTo, err = apiutil.DateQuery(r, "date_to", true); err != nil {
		apiutil.HandleError(w, r, err, msgDashboardFailed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	h.respondLoad(w, r, h.store.SearchBookings(ctx, params))
}

// HandleSearchUsers runs a user search for GET /api/v1/admin/search/users.
func (h *Handlers) HandleSearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := admindashboard.UserSearchParams{
		Term: strings.TrimSpace(query.Get("term")),
		Role: strings.TrimSpace(query.Get("role")),
	}

	var err error
	if params.Limit, err = apiutil.IntQuery(r, "limit", 0); err != nil {
		apiutil.HandleError(w, r, err, msgDashboardFailed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	h.respondLoad(w, r, h.store.SearchUsers(ctx, params))
}

// HandleMarkNotificationRead marks one notification read for POST /api/v1/admin/notifications/{id}/read.
func (h *Handlers) HandleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	h.respondMutation(w, r, h.store.MarkNotificationRead(ctx, id))
}

type bookingStatusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateBookingStatus changes a booking's status for POST /api/v1/admin/bookings/{id}/status.
func (h *Handlers) HandleUpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req bookingStatusRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		apiutil.HandleError(w, r, apiutil.FieldError{Field: "status", Reason: "is required"}, msgDashboardFailed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	h.respondMutation(w, r, h.store.UpdateBookingStatus(ctx, id, status))
}

type userStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

// HandleUpdateUserStatus activates or deactivates a user for POST /api/v1/admin/users/{id}/status.
func (h *Handlers) HandleUpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req userStatusRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.IsActive == nil {
		apiutil.HandleError(w, r, apiutil.FieldError{Field: "is_active", Reason: "is required"}, msgDashboardFailed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	h.respondMutation(w, r, h.store.UpdateUserStatus(ctx, id, *req.IsActive))
}

type autoRefreshRequest struct {
	Enabled bool `json:"enabled"`
}

// HandleAutoRefresh toggles periodic reloads for PUT /api/v1/admin/dashboard/auto-refresh.
func (h *Handlers) HandleAutoRefresh(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req autoRefreshRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.store.SetAutoRefresh(req.Enabled); err != nil {
		switch {
		case errors.Is(err, admindashboard.ErrStoreClosed), errors.Is(err, admindashboard.ErrNoScheduler):
			apiutil.WriteError(w, r, http.StatusServiceUnavailable, "Auto-refresh is unavailable")
		default:
			logger.Error().Err(err).Bool("enabled", req.Enabled).Msg("Failed to change auto-refresh")
			apiutil.WriteError(w, r, http.StatusInternalServerError, "Failed to change auto-refresh")
		}
		return
	}
	h.writeView(w, r, http.StatusOK)
}

// HandleClearError dismisses the current error for DELETE /api/v1/admin/dashboard/error.
func (h *Handlers) HandleClearError(w http.ResponseWriter, r *http.Request) {
	h.store.ClearError()
	h.writeView(w, r, http.StatusOK)
}

type overviewView struct {
	*admindashboard.Overview
	FormattedRevenue string `json:"formatted_revenue"`
}

// HandleOverview returns the combined overview for GET /api/v1/admin/overview.
func (h *Handlers) HandleOverview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	overview, err := h.service.Overview(ctx)
	if err != nil {
		apiutil.HandleError(w, r, err, msgOverviewFailed)
		return
	}

	view := overviewView{
		Overview:         overview,
		FormattedRevenue: h.formatter.FormatRevenue(overview.Revenue),
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, view); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write overview")
	}
}

// HandleChanges upgrades GET /api/v1/admin/changes to the WebSocket change stream.
func (h *Handlers) HandleChanges(w http.ResponseWriter, r *http.Request) {
	if h.changes == nil {
		apiutil.WriteError(w, r, http.StatusServiceUnavailable, "Change stream is unavailable")
		return
	}
	h.changes.ServeHTTP(w, r)
}

// respondLoad writes the dashboard view after a load. A failed load reports
// the message the store recorded, with a status derived from err.
func (h *Handlers) respondLoad(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		h.writeView(w, r, http.StatusOK)
		return
	}

	message := h.store.Snapshot().Error
	if message == "" {
		message = msgDashboardFailed
	}

	status := http.StatusBadGateway
	code := ""
	switch {
	case errors.Is(err, admindashboard.ErrInvalidPeriod):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		if rpcErr, ok := rpc.AsError(err); ok {
			status = apiutil.StatusForCode(rpcErr.Code)
			code = rpcErr.Code
		}
	}

	if writeErr := apiutil.WriteJSON(w, status, apiutil.ErrorResponse{Error: message, Code: code}); writeErr != nil {
		log.Ctx(r.Context()).Error().Err(writeErr).Msg("Failed to write error response")
	}
}

type mutationResponse struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Dashboard *dashboardView `json:"dashboard"`
}

// respondMutation reports the outcome with the refreshed view. A rejected
// command answers 422 with the store's error message.
func (h *Handlers) respondMutation(w http.ResponseWriter, r *http.Request, ok bool) {
	state := h.store.Snapshot()
	view := h.buildView(state)

	status := http.StatusOK
	resp := mutationResponse{Success: ok, Dashboard: &view}
	if !ok {
		status = http.StatusUnprocessableEntity
		resp.Error = state.Error
	}
	if err := apiutil.WriteJSON(w, status, resp); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write mutation response")
	}
}

func (h *Handlers) writeView(w http.ResponseWriter, r *http.Request, status int) {
	view := h.buildView(h.store.Snapshot())
	if err := apiutil.WriteJSON(w, status, view); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write dashboard view")
	}
}
