package finance

import (
	"github.com/mcclellann/kasbon/pkg/models"
	"github.com/shopspring/decimal"
)

// LimitCheck is the soft credit-limit warning shown before issuing a loan.
type LimitCheck struct {
	Borrower           models.Borrower `json:"borrower"`
	CurrentPrincipal   decimal.Decimal `json:"currentPrincipal"` // Active principal across all categories
	NewPrincipal       decimal.Decimal `json:"newPrincipal"`
	ProjectedPrincipal decimal.Decimal `json:"projectedPrincipal"`
	OverLimit          bool            `json:"overLimit"`
	Remaining          decimal.Decimal `json:"remainingLimit"`
	CurrentDueInPeriod decimal.Decimal `json:"currentDueInPeriod"` // Unpaid due in the category's active period
	NewLoanDue         decimal.Decimal `json:"newLoanDue"`
	TotalPaymentDue    decimal.Decimal `json:"totalPaymentDue"`
}

// CheckLimit projects a new loan of amount in cat against the borrower's
// limit. It never blocks; ok is false only when the borrower is unknown.
func CheckLimit(s models.State, borrowerID string, amount decimal.Decimal, cat models.Category) (LimitCheck, bool) {
	b, ok := s.FindBorrower(borrowerID)
	if !ok {
		return LimitCheck{}, false
	}

	activePeriod := s.Config.ActivePeriod(cat)
	c := LimitCheck{Borrower: b, NewPrincipal: amount}
	for _, t := range s.Transactions {
		if t.BorrowerID != borrowerID || !t.Active() {
			continue
		}
		c.CurrentPrincipal = c.CurrentPrincipal.Add(t.TotalPrincipal)
		if t.Category == cat && t.DueMonth == activePeriod {
			c.CurrentDueInPeriod = c.CurrentDueInPeriod.Add(t.Remaining())
		}
	}

	c.ProjectedPrincipal = c.CurrentPrincipal.Add(amount)
	c.OverLimit = c.ProjectedPrincipal.GreaterThan(b.Limit)
	c.Remaining = b.Limit.Sub(c.CurrentPrincipal)
	c.NewLoanDue = TotalDue(amount, s.Config.InterestRate(cat))
	c.TotalPaymentDue = c.CurrentDueInPeriod.Add(c.NewLoanDue)
	return c, true
}
