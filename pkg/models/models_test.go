package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDeriveStatus(t *testing.T) {
	due := decimal.NewFromInt(960000)
	tests := []struct {
		paid int64
		want Status
	}{
		{0, StatusUnpaid},
		{1, StatusPartial},
		{500000, StatusPartial},
		{959999, StatusPartial},
		{960000, StatusPaid},
		{1000000, StatusPaid},
		{-5, StatusUnpaid},
	}
	for _, tt := range tests {
		if got := DeriveStatus(decimal.NewFromInt(tt.paid), due); got != tt.want {
			t.Errorf("DeriveStatus(%d, %s) = %q, want %q", tt.paid, due, got, tt.want)
		}
	}
}

func TestDeriveStatus_ZeroDue(t *testing.T) {
	// A zeroed-out debt counts as settled.
	if got := DeriveStatus(decimal.Zero, decimal.Zero); got != StatusPaid {
		t.Errorf("Expected %q for zero due, got %q", StatusPaid, got)
	}
}

func TestCloneSharesNoSlices(t *testing.T) {
	s := InitialState()
	s.Transactions = append(s.Transactions, LoanTransaction{
		ID:           "tx1",
		Entries:      []LoanEntry{{ID: "e1"}},
		Installments: []Installment{{ID: "i1"}},
	})

	c := s.Clone()
	c.Transactions[0].Entries[0].ID = "changed"
	c.Transactions[0].Installments[0].ID = "changed"
	c.Config.AvailableMonths[0] = "changed"

	if s.Transactions[0].Entries[0].ID != "e1" {
		t.Error("Clone shares entries with the original")
	}
	if s.Transactions[0].Installments[0].ID != "i1" {
		t.Error("Clone shares installments with the original")
	}
	if s.Config.AvailableMonths[0] != "Maret 2026" {
		t.Error("Clone shares available months with the original")
	}
}

func TestStateJSONUsesNumbers(t *testing.T) {
	s := InitialState()
	s.Borrowers = append(s.Borrowers, Borrower{ID: "b1", Name: "Budi", Limit: decimal.NewFromInt(1000000)})

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Failed to marshal state: %v", err)
	}
	if !strings.Contains(string(data), `"limit":1000000`) {
		t.Errorf("Expected limit as a JSON number, got %s", data)
	}

	var back State
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Failed to unmarshal state: %v", err)
	}
	if !back.Borrowers[0].Limit.Equal(decimal.NewFromInt(1000000)) {
		t.Errorf("Expected limit 1000000, got %s", back.Borrowers[0].Limit)
	}
}

func TestDecodeLegacyTransaction(t *testing.T) {
	raw := `{"id":"x","borrowerId":"b","borrowerName":"Ani","category":"Remon","totalPrincipal":100000,
	"totalDue":110000,"paidAmount":0,"status":"Belum Lunas","entries":[],"installments":[],
	"dueMonth":"April 2026","createdAt":"2026-03-02T08:15:00.000Z","updatedAt":"2026-03-02T08:15:00.000Z"}`

	var tx LoanTransaction
	if err := json.Unmarshal([]byte(raw), &tx); err != nil {
		t.Fatalf("Failed to decode transaction: %v", err)
	}
	if tx.Status != StatusUnpaid || tx.Category != CategoryRemon {
		t.Errorf("Unexpected status/category: %q/%q", tx.Status, tx.Category)
	}
	if !tx.CreatedAt.Equal(time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)) {
		t.Errorf("Unexpected createdAt %s", tx.CreatedAt)
	}
	if tx.IsArrear || tx.IsPriority {
		t.Error("Expected absent flags to decode as false")
	}
}

func TestValidate(t *testing.T) {
	valid := LoanTransaction{
		ID:         "tx1",
		BorrowerID: "b1",
		Category:   CategoryGaji,
		TotalDue:   decimal.NewFromInt(10),
		Status:     StatusUnpaid,
	}
	if err := Validate(valid); err != nil {
		t.Errorf("Expected valid transaction, got %v", err)
	}

	bad := valid
	bad.Category = "Bonus"
	if err := Validate(bad); err == nil {
		t.Error("Expected error for unknown category")
	}

	bad = valid
	bad.Status = "Selesai"
	if err := Validate(bad); err == nil {
		t.Error("Expected error for unknown status")
	}

	bad = valid
	bad.PaidAmount = decimal.NewFromInt(-1)
	if err := Validate(bad); err == nil {
		t.Error("Expected error for negative paid amount")
	}

	if err := Validate(Borrower{ID: "b1"}); err == nil {
		t.Error("Expected error for borrower without a name")
	}
}

func TestConfigPerCategory(t *testing.T) {
	c := DefaultConfig()
	c.ActiveMonthRemon = "April 2026"
	if c.ActivePeriod(CategoryGaji) != "Maret 2026" || c.ActivePeriod(CategoryRemon) != "April 2026" {
		t.Errorf("Unexpected active periods %q/%q", c.ActivePeriod(CategoryGaji), c.ActivePeriod(CategoryRemon))
	}
	if !c.InterestRate(CategoryGaji).Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected Gaji rate 20, got %s", c.InterestRate(CategoryGaji))
	}
	if !c.InterestRate(CategoryRemon).Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected Remon rate 10, got %s", c.InterestRate(CategoryRemon))
	}
}

func TestBorrowerNameFallsBackToTransactions(t *testing.T) {
	s := InitialState()
	s.Transactions = []LoanTransaction{{ID: "tx1", BorrowerID: "gone", BorrowerName: "Sari"}}
	if got := s.BorrowerName("gone"); got != "Sari" {
		t.Errorf("Expected orphaned name Sari, got %q", got)
	}
	if got := s.BorrowerName("nobody"); got != "" {
		t.Errorf("Expected empty name, got %q", got)
	}
}
