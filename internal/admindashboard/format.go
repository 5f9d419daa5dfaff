package admindashboard

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TotalBookings sums every status bucket.
func TotalBookings(c BookingCounts) int64 {
	return c.Pending + c.Confirmed + c.InProgress + c.Completed + c.Cancelled
}

// Formatter renders money for the configured locale.
type Formatter struct {
	symbol  string
	printer *message.Printer
}

// NewFormatter falls back to British English when locale does not parse.
func NewFormatter(symbol, locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.BritishEnglish
	}
	return &Formatter{symbol: symbol, printer: message.NewPrinter(tag)}
}

// FormatRevenue renders amount with two decimals and locale digit grouping,
// e.g. £1,234.50.
func (f *Formatter) FormatRevenue(amount float64) string {
	if amount < 0 {
		return "-" + f.symbol + f.printer.Sprintf("%.2f", -amount)
	}
	return f.symbol + f.printer.Sprintf("%.2f", amount)
}
