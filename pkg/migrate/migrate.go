// Package migrate upgrades persisted snapshots to the current state shape.
package migrate

import (
	"encoding/json"
	"fmt"

	"github.com/mcclellann/kasbon/pkg/models"
	"github.com/mcclellann/kasbon/pkg/period"
	"github.com/shopspring/decimal"
)

// legacyVersion is assumed for snapshots written before versions were recorded.
const legacyVersion = 3

var defaultMonths = []string{"Maret 2026", "April 2026"}

// legacyConfig accepts the single month/rate fields written by the first
// release alongside the current per-category fields.
type legacyConfig struct {
	models.AppConfig
	ActiveMonth  string           `json:"activeMonth"`
	InterestRate *decimal.Decimal `json:"interestRate"`
}

type snapshot struct {
	Borrowers    []models.Borrower        `json:"borrowers"`
	Transactions []models.LoanTransaction `json:"transactions"`
	Config       *legacyConfig            `json:"config"`
}

// Migrate decodes a stored snapshot of any known shape and normalizes it.
func Migrate(raw []byte) (models.State, error) {
	s, err := Decode(raw)
	if err != nil {
		return models.State{}, err
	}
	return Normalize(s), nil
}

// Decode reads a snapshot, folding legacy config fields into their
// per-category replacements. Missing sections take their first-run values.
func Decode(raw []byte) (models.State, error) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return models.State{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	s := models.InitialState()
	if snap.Borrowers != nil {
		s.Borrowers = snap.Borrowers
	}
	if snap.Transactions != nil {
		s.Transactions = snap.Transactions
	}
	if snap.Config == nil {
		return s, nil
	}

	c := snap.Config.AppConfig
	if c.ActiveMonthGaji == "" && snap.Config.ActiveMonth != "" {
		c.ActiveMonthGaji = snap.Config.ActiveMonth
		c.ActiveMonthRemon = snap.Config.ActiveMonth
	}
	if c.InterestRateGaji.IsZero() && snap.Config.InterestRate != nil && !snap.Config.InterestRate.IsZero() {
		c.InterestRateGaji = *snap.Config.InterestRate
		c.InterestRateRemon = models.DefaultConfig().InterestRateRemon
	}
	s.Config = c
	return s, nil
}

// Normalize fills fields that older snapshots lack and rebuilds the list of
// known periods. It does not modify s, and Normalize(Normalize(s)) equals
// Normalize(s).
func Normalize(s models.State) models.State {
	s = s.Clone()
	if s.Borrowers == nil {
		s.Borrowers = []models.Borrower{}
	}
	if s.Transactions == nil {
		s.Transactions = []models.LoanTransaction{}
	}

	c := &s.Config
	if c.Version == 0 {
		c.Version = legacyVersion
	}
	if !c.ActiveCycle.Valid() {
		c.ActiveCycle = models.CategoryGaji
	}

	dueMonths := make([]string, 0, len(s.Transactions))
	for i := range s.Transactions {
		t := &s.Transactions[i]
		if t.DueMonth == "" {
			t.DueMonth = c.ActivePeriod(t.Category)
		}
		if !t.Status.Valid() {
			t.Status = models.DeriveStatus(t.PaidAmount, t.TotalDue)
		}
		if t.Entries == nil {
			t.Entries = []models.LoanEntry{}
		}
		if t.Installments == nil {
			t.Installments = []models.Installment{}
		}
		dueMonths = append(dueMonths, t.DueMonth)
	}

	months := period.Union(c.AvailableMonths, []string{c.ActiveMonthGaji, c.ActiveMonthRemon}, dueMonths)
	if len(months) == 0 {
		months = append(months, defaultMonths...)
	}
	period.Sort(months)
	c.AvailableMonths = months
	return s
}
