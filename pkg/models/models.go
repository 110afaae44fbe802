package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Snapshots written by earlier clients carry amounts as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Category is the loan cycle a transaction belongs to.
type Category string

const (
	CategoryGaji  Category = "Gaji"  // salary cycle
	CategoryRemon Category = "Remon" // remuneration cycle
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryGaji, CategoryRemon}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c == CategoryGaji || c == CategoryRemon
}

// Status is the repayment state of a LoanTransaction.
type Status string

const (
	StatusUnpaid  Status = "Belum Lunas"
	StatusPartial Status = "Cicil"
	StatusPaid    Status = "Lunas"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusUnpaid || s == StatusPartial || s == StatusPaid
}

// DeriveStatus applies the repayment rule: paid in full is Lunas, anything
// above zero is Cicil, otherwise Belum Lunas.
func DeriveStatus(paid, due decimal.Decimal) Status {
	switch {
	case paid.GreaterThanOrEqual(due):
		return StatusPaid
	case paid.GreaterThan(decimal.Zero):
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

type Borrower struct {
	ID    string          `json:"id" validate:"required"`
	Name  string          `json:"name" validate:"required"`
	Limit decimal.Decimal `json:"limit" validate:"gte=0"` // Soft cap on outstanding principal
}

type Installment struct {
	ID     string          `json:"id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
	Note   string          `json:"note,omitempty"`
}

// LoanEntry records one disbursement merged into a LoanTransaction.
type LoanEntry struct {
	ID           string          `json:"id" validate:"required"`
	BorrowerID   string          `json:"borrowerId" validate:"required"`
	Category     Category        `json:"category" validate:"category"`
	Amount       decimal.Decimal `json:"amount" validate:"gte=0"` // Principal
	InterestRate decimal.Decimal `json:"interestRate" validate:"gte=0"`
	TotalDue     decimal.Decimal `json:"totalDue" validate:"gte=0"` // Amount with interest
	Date         time.Time       `json:"date"`
}

// LoanTransaction is a borrower's running balance for one category and period.
type LoanTransaction struct {
	ID             string          `json:"id" validate:"required"`
	BorrowerID     string          `json:"borrowerId" validate:"required"`
	BorrowerName   string          `json:"borrowerName"`
	Category       Category        `json:"category" validate:"category"`
	TotalPrincipal decimal.Decimal `json:"totalPrincipal" validate:"gte=0"`
	TotalDue       decimal.Decimal `json:"totalDue" validate:"gte=0"`
	PaidAmount     decimal.Decimal `json:"paidAmount" validate:"gte=0"`
	Status         Status          `json:"status" validate:"loanstatus"`
	Entries        []LoanEntry     `json:"entries" validate:"dive"`
	Installments   []Installment   `json:"installments" validate:"dive"`
	DueMonth       string          `json:"dueMonth"` // e.g. "Maret 2026"
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	IsArrear       bool            `json:"isArrear,omitempty"`   // Manually entered legacy debt
	IsPriority     bool            `json:"isPriority,omitempty"` // Display and filtering only
}

// Active reports whether the transaction still has an open balance.
func (t LoanTransaction) Active() bool {
	return t.Status != StatusPaid
}

// Remaining is the amount still owed. It is negative on overpayment.
func (t LoanTransaction) Remaining() decimal.Decimal {
	return t.TotalDue.Sub(t.PaidAmount)
}

// Clone returns a copy that shares no slices with t.
func (t LoanTransaction) Clone() LoanTransaction {
	c := t
	c.Entries = slices.Clone(t.Entries)
	c.Installments = slices.Clone(t.Installments)
	return c
}

type AppConfig struct {
	ActiveCycle Category `json:"activeCycle"`

	ActiveMonthGaji  string          `json:"activeMonthGaji"`
	InterestRateGaji decimal.Decimal `json:"interestRateGaji"`

	ActiveMonthRemon  string          `json:"activeMonthRemon"`
	InterestRateRemon decimal.Decimal `json:"interestRateRemon"`

	GoogleScriptURL string `json:"googleScriptUrl,omitempty"`
	EnableAutoSync  bool   `json:"enableAutoSync,omitempty"`

	Version         int      `json:"version,omitempty"`
	AvailableMonths []string `json:"availableMonths,omitempty"`
}

// CurrentVersion is the config schema version written by this build.
const CurrentVersion = 4

// DefaultConfig returns the first-run configuration.
func DefaultConfig() AppConfig {
	return AppConfig{
		ActiveCycle:       CategoryGaji,
		ActiveMonthGaji:   "Maret 2026",
		InterestRateGaji:  decimal.NewFromInt(20),
		ActiveMonthRemon:  "Maret 2026",
		InterestRateRemon: decimal.NewFromInt(10),
		Version:           CurrentVersion,
		AvailableMonths:   []string{"Maret 2026", "April 2026", "Mei 2026"},
	}
}

// ActivePeriod returns the period label new loans of cat are billed to.
func (c AppConfig) ActivePeriod(cat Category) string {
	if cat == CategoryGaji {
		return c.ActiveMonthGaji
	}
	return c.ActiveMonthRemon
}

// InterestRate returns the default rate for cat, as a percentage.
func (c AppConfig) InterestRate(cat Category) decimal.Decimal {
	if cat == CategoryGaji {
		return c.InterestRateGaji
	}
	return c.InterestRateRemon
}

// State is the whole application snapshot. It is persisted as one blob.
type State struct {
	Borrowers    []Borrower        `json:"borrowers"`
	Transactions []LoanTransaction `json:"transactions"`
	Config       AppConfig         `json:"config"`
}

// InitialState is the state of a fresh installation.
func InitialState() State {
	return State{
		Borrowers:    []Borrower{},
		Transactions: []LoanTransaction{},
		Config:       DefaultConfig(),
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := State{
		Borrowers: slices.Clone(s.Borrowers),
		Config:    s.Config,
	}
	if s.Transactions != nil {
		c.Transactions = make([]LoanTransaction, len(s.Transactions))
		for i, t := range s.Transactions {
			c.Transactions[i] = t.Clone()
		}
	}
	c.Config.AvailableMonths = slices.Clone(s.Config.AvailableMonths)
	return c
}

// FindBorrower looks up a borrower by id.
func (s State) FindBorrower(id string) (Borrower, bool) {
	for _, b := range s.Borrowers {
		if b.ID == id {
			return b, true
		}
	}
	return Borrower{}, false
}

// FindTransaction returns the index of the transaction with the given id, or -1.
func (s State) FindTransaction(id string) int {
	for i, t := range s.Transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// BorrowerName resolves a borrower id to a name, falling back to the
// denormalized name on the borrower's transactions when the borrower was deleted.
func (s State) BorrowerName(id string) string {
	if b, ok := s.FindBorrower(id); ok {
		return b.Name
	}
	for _, t := range s.Transactions {
		if t.BorrowerID == id {
			return t.BorrowerName
		}
	}
	return ""
}
