package admindashboard

import "testing"

func TestTotalBookings(t *testing.T) {
	counts := BookingCounts{Pending: 2, Confirmed: 1, InProgress: 3, Completed: 5, Cancelled: 4}
	if got := TotalBookings(counts); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
	if got := TotalBookings(BookingCounts{}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestFormatRevenue(t *testing.T) {
	tests := []struct {
		symbol string
		locale string
		amount float64
		want   string
	}{
		{symbol: "£", locale: "en-GB", amount: 137.5, want: "£137.50"},
		{symbol: "£", locale: "en-GB", amount: 0, want: "£0.00"},
		{symbol: "£", locale: "en-GB", amount: 1234567.891, want: "£1,234,567.89"},
		{symbol: "£", locale: "en-GB", amount: -12.5, want: "-£12.50"},
		{symbol: "£", locale: "??", amount: 2500, want: "£2,500.00"},
	}

	for _, tt := range tests {
		f := NewFormatter(tt.symbol, tt.locale)
		if got := f.FormatRevenue(tt.amount); got != tt.want {
			t.Errorf("FormatRevenue(%v) with %s = %q, want %q", tt.amount, tt.locale, got, tt.want)
		}
	}
}
