package performance

import "time"

// Cash-flow classification. A cash-instrument transaction is external
// (capital entering or leaving the portfolio) only when no other transaction
// in the ledger shares its exact timestamp and moves an asset. A cash entry
// paired with an asset trade at the same instant is the settlement leg of
// that trade and stays internal.

// ExternalCashFlows extracts the external cash movements from a full
// transaction list, oldest first. Amounts follow the IRR sign convention:
// deposits are negative (money invested), withdrawals positive (money
// returned). Pure function, no side effects.
func ExternalCashFlows(txs []Transaction) []CashFlow {
	// Index asset-trade timestamps once; the classifier is called with the
	// whole ledger and must stay linear.
	assetAt := make(map[time.Time]bool, len(txs))
	for _, tx := range txs {
		if !tx.IsCash() {
			assetAt[tx.TransactionAt] = true
		}
	}

	var flows []CashFlow
	for _, tx := range txs {
		if !tx.IsCash() || assetAt[tx.TransactionAt] {
			continue
		}
		amount := tx.Amount()
		switch tx.Type {
		case Buy, Deposit:
			flows = append(flows, CashFlow{Date: tx.TransactionAt, Amount: -amount})
		case Sell, Withdrawal:
			flows = append(flows, CashFlow{Date: tx.TransactionAt, Amount: amount})
		}
	}
	return flows
}

// NetExternalFlowOn sums the external cash flow dated on the given calendar
// day, signed from the portfolio's point of view: deposits positive,
// withdrawals negative. This is the netCashFlow recorded on snapshots.
func NetExternalFlowOn(txs []Transaction, on time.Time) float64 {
	on = Day(on)
	var net float64
	for _, f := range ExternalCashFlows(txs) {
		if Day(f.Date).Equal(on) {
			// Flip the IRR convention back to portfolio-relative signs.
			net -= f.Amount
		}
	}
	return net
}

// FirstExternalDeposit returns the date of the earliest external deposit, or
// the zero time when the portfolio never received outside capital. Return on
// zero invested capital is undefined, so callers clamp windows to this date.
func FirstExternalDeposit(txs []Transaction) time.Time {
	var first time.Time
	for _, f := range ExternalCashFlows(txs) {
		if f.Amount < 0 && (first.IsZero() || f.Date.Before(first)) {
			first = f.Date
		}
	}
	return first
}
