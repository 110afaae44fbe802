package finance

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatIDR renders an amount as whole rupiah with Indonesian thousands
// separators, e.g. "Rp 1.250.000". Amounts are rounded half away from zero.
func FormatIDR(d decimal.Decimal) string {
	r := d.Round(0)
	p := message.NewPrinter(language.Indonesian)
	if r.IsNegative() {
		return p.Sprintf("-Rp %d", r.Neg().IntPart())
	}
	return p.Sprintf("Rp %d", r.IntPart())
}
