package admin

import (
	"time"

	"github.com/ablego/ablego/internal/admindashboard"
)

type dashboardView struct {
	Statistics       *admindashboard.DashboardStatistics `json:"statistics"`
	TotalBookings    int64                               `json:"total_bookings"`
	FormattedRevenue string                              `json:"formatted_revenue,omitempty"`
	BookingAnalytics *admindashboard.BookingAnalytics    `json:"booking_analytics"`
	UserAnalytics    *admindashboard.UserAnalytics       `json:"user_analytics"`
	Search           *searchView                         `json:"search"`
	Notifications    *admindashboard.NotificationFeed    `json:"notifications"`
	Loading          bool                                `json:"loading"`
	Error            string                              `json:"error,omitempty"`
	LastUpdated      *time.Time                          `json:"last_updated,omitempty"`
	AutoRefresh      bool                                `json:"auto_refresh"`
}

// searchView tags the search slot so clients can tell booking results from
// user results.
type searchView struct {
	Kind    string                      `json:"kind"`
	Total   int64                       `json:"total"`
	Results admindashboard.SearchResult `json:"results"`
}

func (h *Handlers) buildView(state admindashboard.State) dashboardView {
	view := dashboardView{
		Statistics:       state.Statistics,
		BookingAnalytics: state.BookingAnalytics,
		UserAnalytics:    state.UserAnalytics,
		Notifications:    state.Notifications,
		Loading:          state.Loading,
		Error:            state.Error,
		AutoRefresh:      state.AutoRefresh,
	}
	if state.Statistics != nil {
		view.TotalBookings = admindashboard.TotalBookings(state.Statistics.Bookings)
		view.FormattedRevenue = h.formatter.FormatRevenue(state.Statistics.Revenue)
	}
	if state.Search != nil {
		view.Search = &searchView{
			Kind:    state.Search.Kind(),
			Total:   state.Search.Total(),
			Results: state.Search,
		}
	}
	if !state.LastUpdated.IsZero() {
		lastUpdated := state.LastUpdated
		view.LastUpdated = &lastUpdated
	}
	return view
}
