// Package report turns the ledger into CSV reports and spreadsheet rows
// back into ledger actions.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/mcclellann/kasbon/pkg/models"
)

var exportHeader = []string{"Nama", "Total Pinjaman", "Total Tagihan", "Terbayar", "Sisa", "Status", "Tanggal"}

// WriteCSV writes one row per transaction.
func WriteCSV(w io.Writer, txs []models.LoanTransaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, t := range txs {
		row := []string{
			t.BorrowerName,
			t.TotalPrincipal.String(),
			t.TotalDue.String(),
			t.PaidAmount.String(),
			t.Remaining().String(),
			string(t.Status),
			t.CreatedAt.Format("2/1/2006"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFilename names the report after the active cycle's period.
func ExportFilename(cfg models.AppConfig) string {
	label := strings.Join(strings.Fields(cfg.ActivePeriod(cfg.ActiveCycle)), "-")
	return fmt.Sprintf("laporan-pinjaman-%s.csv", label)
}
