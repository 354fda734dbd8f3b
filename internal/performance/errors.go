package performance

import (
	"errors"
	"fmt"
)

// ErrPortfolioNotFound is returned when a portfolio does not exist or the
// caller does not own it. Not retryable.
var ErrPortfolioNotFound = errors.New("portfolio not found")

// ErrSnapshotsExist is returned by EnsureSnapshotsExist when snapshots are
// already present in the requested range and force was not set. The caller
// must explicitly force a recompute; partial recomputes are not allowed.
var ErrSnapshotsExist = errors.New("snapshots already exist for this range, use force to recompute")

// MissingDataError signals that a required price series is absent even after
// the lookback window was exhausted. It is never silently substituted with
// zero; the ticker and reason travel to the caller.
type MissingDataError struct {
	Ticker string
	Reason string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing market data for %s: %s", e.Ticker, e.Reason)
}

// IsMissingData reports whether err is a MissingDataError.
func IsMissingData(err error) bool {
	var mde *MissingDataError
	return errors.As(err, &mde)
}
