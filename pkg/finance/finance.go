// Package finance derives totals and aggregates from loan transactions.
// Every function is pure; callers filter before summarizing.
package finance

import (
	"slices"
	"strings"

	"github.com/mcclellann/kasbon/pkg/models"
	"github.com/mcclellann/kasbon/pkg/period"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TotalDue returns principal plus rate percent interest. No rounding is applied.
func TotalDue(principal, rate decimal.Decimal) decimal.Decimal {
	return principal.Add(principal.Mul(rate).Div(hundred))
}

// Summary aggregates a set of transactions.
type Summary struct {
	TotalPrincipal  decimal.Decimal `json:"totalModal"`
	TotalReceivable decimal.Decimal `json:"totalPiutang"`
	ProjectedProfit decimal.Decimal `json:"profitProjection"`
	TotalPaid       decimal.Decimal `json:"totalPaid"`
	Outstanding     decimal.Decimal `json:"outstanding"`
}

// Add folds one transaction into the summary.
func (s Summary) Add(t models.LoanTransaction) Summary {
	return Summary{
		TotalPrincipal:  s.TotalPrincipal.Add(t.TotalPrincipal),
		TotalReceivable: s.TotalReceivable.Add(t.TotalDue),
		ProjectedProfit: s.ProjectedProfit.Add(t.TotalDue.Sub(t.TotalPrincipal)),
		TotalPaid:       s.TotalPaid.Add(t.PaidAmount),
		Outstanding:     s.Outstanding.Add(t.TotalDue.Sub(t.PaidAmount)),
	}
}

// Summarize sums txs. An empty input yields all zeros.
func Summarize(txs []models.LoanTransaction) Summary {
	var s Summary
	for _, t := range txs {
		s = s.Add(t)
	}
	return s
}

// PeriodSummary is the recap for one due month.
type PeriodSummary struct {
	Period       string `json:"period"`
	Transactions int    `json:"transactions"`
	Borrowers    int    `json:"borrowers"`
	Summary
}

// SummarizeByPeriod groups txs by due month, ordered chronologically.
func SummarizeByPeriod(txs []models.LoanTransaction) []PeriodSummary {
	byPeriod := make(map[string]*PeriodSummary)
	borrowers := make(map[string]map[string]struct{})
	var order []string
	for _, t := range txs {
		ps, ok := byPeriod[t.DueMonth]
		if !ok {
			ps = &PeriodSummary{Period: t.DueMonth}
			byPeriod[t.DueMonth] = ps
			borrowers[t.DueMonth] = make(map[string]struct{})
			order = append(order, t.DueMonth)
		}
		ps.Transactions++
		ps.Summary = ps.Summary.Add(t)
		borrowers[t.DueMonth][t.BorrowerID] = struct{}{}
	}

	period.Sort(order)
	out := make([]PeriodSummary, 0, len(order))
	for _, p := range order {
		ps := byPeriod[p]
		ps.Borrowers = len(borrowers[p])
		out = append(out, *ps)
	}
	return out
}

// Filter selects transactions for display and reporting. Zero fields match everything.
type Filter struct {
	Period       string
	Category     models.Category
	BorrowerID   string
	Search       string // case-insensitive borrower name substring
	PriorityOnly bool
	Arrear       *bool
	ActiveOnly   bool
}

// Match reports whether t passes the filter.
func (f Filter) Match(t models.LoanTransaction) bool {
	if f.Period != "" && t.DueMonth != f.Period {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.BorrowerID != "" && t.BorrowerID != f.BorrowerID {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(t.BorrowerName), strings.ToLower(f.Search)) {
		return false
	}
	if f.PriorityOnly && !t.IsPriority {
		return false
	}
	if f.Arrear != nil && t.IsArrear != *f.Arrear {
		return false
	}
	if f.ActiveOnly && !t.Active() {
		return false
	}
	return true
}

// Apply returns the transactions matching f, preserving order.
func (f Filter) Apply(txs []models.LoanTransaction) []models.LoanTransaction {
	return slices.DeleteFunc(slices.Clone(txs), func(t models.LoanTransaction) bool { return !f.Match(t) })
}
