package finance

import (
	"testing"

	"github.com/mcclellann/kasbon/pkg/models"
	"github.com/shopspring/decimal"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func tx(id, borrower string, cat models.Category, principal, due, paid int64, month string) models.LoanTransaction {
	return models.LoanTransaction{
		ID:             id,
		BorrowerID:     borrower,
		BorrowerName:   "Name " + borrower,
		Category:       cat,
		TotalPrincipal: d(principal),
		TotalDue:       d(due),
		PaidAmount:     d(paid),
		Status:         models.DeriveStatus(d(paid), d(due)),
		DueMonth:       month,
	}
}

func TestTotalDue(t *testing.T) {
	tests := []struct {
		principal, rate decimal.Decimal
		want            decimal.Decimal
	}{
		{d(500000), d(20), d(600000)},
		{d(300000), d(20), d(360000)},
		{d(100000), d(10), d(110000)},
		{d(0), d(20), d(0)},
		{d(12345), d(10), decimal.RequireFromString("13579.5")},
	}
	for _, tt := range tests {
		if got := TotalDue(tt.principal, tt.rate); !got.Equal(tt.want) {
			t.Errorf("TotalDue(%s, %s) = %s, want %s", tt.principal, tt.rate, got, tt.want)
		}
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if s := Summarize(nil); !summaryEqual(s, Summary{}) {
		t.Errorf("Expected all-zero summary, got %+v", s)
	}
	s := Summarize([]models.LoanTransaction{})
	if !s.TotalPrincipal.IsZero() || !s.Outstanding.IsZero() {
		t.Errorf("Expected all-zero summary, got %+v", s)
	}
}

func TestSummarize(t *testing.T) {
	txs := []models.LoanTransaction{
		tx("t1", "b1", models.CategoryGaji, 800000, 960000, 500000, "Maret 2026"),
		tx("t2", "b2", models.CategoryRemon, 100000, 110000, 110000, "Maret 2026"),
		tx("t3", "b1", models.CategoryRemon, 200000, 220000, 0, "April 2026"),
	}
	want := Summary{
		TotalPrincipal:  d(1100000),
		TotalReceivable: d(1290000),
		ProjectedProfit: d(190000),
		TotalPaid:       d(610000),
		Outstanding:     d(680000),
	}
	if got := Summarize(txs); !summaryEqual(got, want) {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	reversed := []models.LoanTransaction{txs[2], txs[0], txs[1]}
	if got := Summarize(reversed); !summaryEqual(got, want) {
		t.Errorf("Summary depends on order: %+v", got)
	}
}

func TestSummarizeOverpaymentGoesNegative(t *testing.T) {
	s := Summarize([]models.LoanTransaction{tx("t1", "b1", models.CategoryGaji, 100, 120, 150, "Maret 2026")})
	if !s.Outstanding.Equal(d(-30)) {
		t.Errorf("Expected outstanding -30, got %s", s.Outstanding)
	}
}

func TestSummarizeByPeriod(t *testing.T) {
	txs := []models.LoanTransaction{
		tx("t1", "b1", models.CategoryGaji, 100, 120, 0, "April 2026"),
		tx("t2", "b2", models.CategoryGaji, 100, 120, 0, "Maret 2026"),
		tx("t3", "b1", models.CategoryRemon, 100, 110, 0, "April 2026"),
	}
	got := SummarizeByPeriod(txs)
	if len(got) != 2 {
		t.Fatalf("Expected 2 periods, got %d", len(got))
	}
	if got[0].Period != "Maret 2026" || got[1].Period != "April 2026" {
		t.Errorf("Unexpected order %q, %q", got[0].Period, got[1].Period)
	}
	if got[1].Transactions != 2 || got[1].Borrowers != 1 {
		t.Errorf("Expected 2 transactions from 1 borrower in April, got %d/%d", got[1].Transactions, got[1].Borrowers)
	}
	if !got[1].TotalReceivable.Equal(d(230)) {
		t.Errorf("Expected April receivable 230, got %s", got[1].TotalReceivable)
	}
}

func TestFilter(t *testing.T) {
	arrear := tx("t3", "b3", models.CategoryGaji, 50, 50, 0, "-")
	arrear.IsArrear = true
	priority := tx("t2", "b2", models.CategoryRemon, 100, 110, 110, "Maret 2026")
	priority.IsPriority = true
	txs := []models.LoanTransaction{
		tx("t1", "b1", models.CategoryGaji, 100, 120, 0, "Maret 2026"),
		priority,
		arrear,
	}

	yes := true
	no := false
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"zero filter", Filter{}, []string{"t1", "t2", "t3"}},
		{"period", Filter{Period: "Maret 2026"}, []string{"t1", "t2"}},
		{"category", Filter{Category: models.CategoryGaji}, []string{"t1", "t3"}},
		{"priority", Filter{PriorityOnly: true}, []string{"t2"}},
		{"arrears", Filter{Arrear: &yes}, []string{"t3"}},
		{"regular", Filter{Arrear: &no}, []string{"t1", "t2"}},
		{"active", Filter{ActiveOnly: true}, []string{"t1", "t3"}},
		{"search", Filter{Search: "name B2"}, []string{"t2"}},
		{"borrower", Filter{BorrowerID: "b1"}, []string{"t1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(txs)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %d transactions", tt.want, len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("Expected %s at %d, got %s", id, i, got[i].ID)
				}
			}
		})
	}
	if len(txs) != 3 || txs[0].ID != "t1" {
		t.Error("Filter modified its input")
	}
}

func TestCheckLimit(t *testing.T) {
	s := models.InitialState()
	s.Borrowers = []models.Borrower{{ID: "b1", Name: "Budi", Limit: d(1000000)}}
	s.Transactions = []models.LoanTransaction{
		tx("t1", "b1", models.CategoryGaji, 500000, 600000, 100000, "Maret 2026"),
		tx("t2", "b1", models.CategoryRemon, 200000, 220000, 0, "Maret 2026"),
		tx("t3", "b1", models.CategoryGaji, 900000, 1080000, 1080000, "Februari 2026"),
	}

	c, ok := CheckLimit(s, "b1", d(400000), models.CategoryGaji)
	if !ok {
		t.Fatal("Expected borrower to be found")
	}
	if !c.CurrentPrincipal.Equal(d(700000)) {
		t.Errorf("Expected current principal 700000, got %s", c.CurrentPrincipal)
	}
	if !c.ProjectedPrincipal.Equal(d(1100000)) || !c.OverLimit {
		t.Errorf("Expected projected 1100000 over limit, got %s/%v", c.ProjectedPrincipal, c.OverLimit)
	}
	if !c.Remaining.Equal(d(300000)) {
		t.Errorf("Expected remaining 300000, got %s", c.Remaining)
	}
	if !c.CurrentDueInPeriod.Equal(d(500000)) {
		t.Errorf("Expected current due 500000, got %s", c.CurrentDueInPeriod)
	}
	if !c.NewLoanDue.Equal(d(480000)) || !c.TotalPaymentDue.Equal(d(980000)) {
		t.Errorf("Expected new due 480000 and total 980000, got %s/%s", c.NewLoanDue, c.TotalPaymentDue)
	}

	c, _ = CheckLimit(s, "b1", d(300000), models.CategoryRemon)
	if c.OverLimit {
		t.Error("Expected exactly-at-limit loan not to warn")
	}

	if _, ok := CheckLimit(s, "missing", d(1), models.CategoryGaji); ok {
		t.Error("Expected unknown borrower to report not found")
	}
}

func TestFormatIDR(t *testing.T) {
	tests := map[string]decimal.Decimal{
		"Rp 0":           d(0),
		"Rp 950":         d(950),
		"Rp 1.000":       d(1000),
		"Rp 1.250.000":   d(1250000),
		"Rp 13.580":      decimal.RequireFromString("13579.5"),
		"-Rp 30.000":     d(-30000),
		"Rp 100.000.000": d(100000000),
	}
	for want, in := range tests {
		if got := FormatIDR(in); got != want {
			t.Errorf("FormatIDR(%s) = %q, want %q", in, got, want)
		}
	}
}

func summaryEqual(a, b Summary) bool {
	return a.TotalPrincipal.Equal(b.TotalPrincipal) &&
		a.TotalReceivable.Equal(b.TotalReceivable) &&
		a.ProjectedProfit.Equal(b.ProjectedProfit) &&
		a.TotalPaid.Equal(b.TotalPaid) &&
		a.Outstanding.Equal(b.Outstanding)
}
