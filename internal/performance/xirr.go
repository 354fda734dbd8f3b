package performance

import (
	"fmt"
	"math"
)

// XIRR solver constants. The rate is clamped at the lower bound each step so
// Newton-Raphson cannot diverge toward the undefined region below -100%.
const (
	xirrMaxIterations = 100
	xirrTolerance     = 1e-4
	xirrDefaultGuess  = 0.10
	xirrMinRate       = -0.99
	daysPerYear       = 365.25
)

// XIRRResult carries the solved rate plus convergence diagnostics. A
// non-converged result is best-effort, not an error; callers surface it as a
// warning annotation.
type XIRRResult struct {
	Rate       float64
	Converged  bool
	Iterations int
}

// XIRR computes the internal rate of return for irregularly dated cash flows
// using Newton-Raphson. Flows must be in chronological order with at least
// two entries; the first flow's date is t=0. A guess of 0 uses the default.
func XIRR(flows []CashFlow, guess float64) (XIRRResult, error) {
	if len(flows) < 2 {
		return XIRRResult{}, fmt.Errorf("xirr requires at least 2 cash flows, got %d", len(flows))
	}
	if guess == 0 {
		guess = xirrDefaultGuess
	}

	epoch := flows[0].Date
	years := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.Date.Sub(epoch).Hours() / 24 / daysPerYear
	}

	rate := guess
	for i := 0; i < xirrMaxIterations; i++ {
		var f, df float64
		for j, flow := range flows {
			t := years[j]
			v := math.Pow(1+rate, t)
			f += flow.Amount / v
			df += -t * flow.Amount / math.Pow(1+rate, t+1)
		}

		if df == 0 {
			// Flat derivative, Newton step undefined. Return what we have.
			return XIRRResult{Rate: rate, Converged: false, Iterations: i}, nil
		}

		next := rate - f/df
		if next < xirrMinRate {
			next = xirrMinRate
		}

		if math.Abs(next-rate) < xirrTolerance {
			return XIRRResult{Rate: next, Converged: true, Iterations: i + 1}, nil
		}
		rate = next
	}

	return XIRRResult{Rate: rate, Converged: false, Iterations: xirrMaxIterations}, nil
}
