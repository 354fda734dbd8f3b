package performance

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is the closed set of reporting periods. The HTTP layer parses
// the incoming string once; the core only ever sees the typed value.
type Timeframe string

const (
	Timeframe1M  Timeframe = "1M"
	Timeframe3M  Timeframe = "3M"
	Timeframe6M  Timeframe = "6M"
	Timeframe1Y  Timeframe = "1Y"
	TimeframeYTD Timeframe = "YTD"
	TimeframeAll Timeframe = "ALL"
)

// ParseTimeframe validates a timeframe token. Both the short tokens and the
// spelled-out forms are accepted; the empty string defaults to ALL.
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1M", "ONE-MONTH", "ONE_MONTH":
		return Timeframe1M, nil
	case "3M", "THREE-MONTHS", "THREE_MONTHS":
		return Timeframe3M, nil
	case "6M", "SIX-MONTHS", "SIX_MONTHS":
		return Timeframe6M, nil
	case "1Y", "ONE-YEAR", "ONE_YEAR":
		return Timeframe1Y, nil
	case "YTD", "YEAR-TO-DATE", "YEAR_TO_DATE":
		return TimeframeYTD, nil
	case "ALL", "ALL-TIME", "ALL_TIME", "":
		return TimeframeAll, nil
	}
	return "", fmt.Errorf("invalid timeframe: %q", s)
}

// StartDate resolves the timeframe window start relative to now. ALL resolves
// against the portfolio's earliest transaction date; if there is none, now is
// returned and the window is empty.
func (tf Timeframe) StartDate(now, earliestTx time.Time) time.Time {
	now = Day(now)
	var start time.Time
	switch tf {
	case Timeframe1M:
		start = now.AddDate(0, -1, 0)
	case Timeframe3M:
		start = now.AddDate(0, -3, 0)
	case Timeframe6M:
		start = now.AddDate(0, -6, 0)
	case Timeframe1Y:
		start = now.AddDate(-1, 0, 0)
	case TimeframeYTD:
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default: // ALL
		if earliestTx.IsZero() {
			return now
		}
		return Day(earliestTx)
	}

	// Never start before the portfolio existed.
	if !earliestTx.IsZero() && start.Before(Day(earliestTx)) {
		start = Day(earliestTx)
	}
	return start
}
