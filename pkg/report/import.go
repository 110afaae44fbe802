package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/kasbon/pkg/ledger"
	"github.com/mcclellann/kasbon/pkg/models"
	"github.com/mcclellann/kasbon/pkg/period"
	"github.com/shopspring/decimal"
)

// DefaultImportLimit is the limit given to borrowers created by a history
// import.
var DefaultImportLimit = decimal.NewFromInt(3000000)

var ErrMissingColumn = errors.New("missing required column")

// Importer translates CSV rows into ledger actions. It never touches the
// state itself; the caller dispatches the returned actions in order.
type Importer struct {
	NewID func() string
	Now   func() time.Time
}

func NewImporter() *Importer {
	return &Importer{NewID: uuid.NewString, Now: time.Now}
}

// table is a CSV body indexed by header name.
type table struct {
	cols map[string]int
	rows [][]string
}

func readTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	t := &table{cols: make(map[string]int)}
	if len(records) == 0 {
		return t, nil
	}
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, ok := t.cols[h]; !ok {
			t.cols[h] = i
		}
	}
	t.rows = records[1:]
	return t, nil
}

func (t *table) has(names ...string) bool {
	for _, n := range names {
		if _, ok := t.cols[n]; ok {
			return true
		}
	}
	return false
}

// get returns the first non-empty cell among the aliased columns.
func (t *table) get(row []string, names ...string) string {
	for _, n := range names {
		i, ok := t.cols[n]
		if !ok || i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			return v
		}
	}
	return ""
}

// ParseBorrowers reads a borrower list with columns Nama and Limit. Rows
// missing either value are skipped.
func (im *Importer) ParseBorrowers(r io.Reader) ([]ledger.AddBorrower, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if !t.has("Nama") || !t.has("Limit") {
		return nil, fmt.Errorf("%w: Nama, Limit", ErrMissingColumn)
	}
	var out []ledger.AddBorrower
	for _, row := range t.rows {
		name, limitRaw := t.get(row, "Nama"), t.get(row, "Limit")
		if name == "" || limitRaw == "" {
			continue
		}
		limit, err := decimal.NewFromString(limitRaw)
		if err != nil || limit.IsNegative() {
			limit = decimal.Zero
		}
		if limit.IsZero() {
			continue
		}
		out = append(out, ledger.AddBorrower{Borrower: models.Borrower{
			ID:    im.NewID(),
			Name:  name,
			Limit: limit,
		}})
	}
	return out, nil
}

// HistoryOptions are chosen once per import and apply to every row.
type HistoryOptions struct {
	Category models.Category `validate:"category"`
	Period   string          `validate:"required"`
}

var (
	colName   = []string{"Nama", "nama", "Name"}
	colDate   = []string{"Tanggal Pinjam", "tanggal pinjam", "Date"}
	colAmount = []string{"Jumlah Pinjam", "jumlah pinjam", "Nominal"}
	colTotal  = []string{"Total Ganti", "total ganti", "Total"}
	colNote   = []string{"Keterangan", "keterangan"}
)

// ParseHistory reads past loans and returns the actions that record them:
// AddBorrower for names not yet known, AddArrearManual per row and, when the
// period is new, an UpdateConfig adding it to the known months.
func (im *Importer) ParseHistory(r io.Reader, state models.State, opts HistoryOptions) ([]ledger.Action, error) {
	if err := models.Validate(opts); err != nil {
		return nil, err
	}
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if !t.has(colName...) || !t.has(colAmount...) {
		return nil, fmt.Errorf("%w: Nama, Jumlah Pinjam", ErrMissingColumn)
	}

	borrowers := im.newResolver(state)
	now := im.Now().UTC()
	var actions []ledger.Action
	for _, row := range t.rows {
		name := t.get(row, colName...)
		amount, err := decimal.NewFromString(t.get(row, colAmount...))
		if name == "" || err != nil || !amount.IsPositive() {
			continue
		}
		total, err := decimal.NewFromString(t.get(row, colTotal...))
		if err != nil {
			total = amount
		}
		if total.IsNegative() {
			continue
		}
		note := t.get(row, colNote...)
		if note == "" {
			note = string(models.StatusPaid)
		}

		borrowerID := borrowers.resolve(name, &actions)

		paid := decimal.Zero
		status := models.StatusUnpaid
		if isPaidNote(note) {
			paid = total
			status = models.StatusPaid
		}
		date := parseDate(t.get(row, colDate...), opts.Period, now)

		actions = append(actions, ledger.AddArrearManual{Transaction: models.LoanTransaction{
			ID:             im.NewID(),
			BorrowerID:     borrowerID,
			BorrowerName:   name,
			Category:       opts.Category,
			TotalPrincipal: amount,
			TotalDue:       total,
			PaidAmount:     paid,
			Status:         status,
			Entries: []models.LoanEntry{{
				ID:           im.NewID(),
				BorrowerID:   borrowerID,
				Category:     opts.Category,
				Amount:       amount,
				InterestRate: decimal.Zero,
				TotalDue:     total,
				Date:         date,
			}},
			Installments: []models.Installment{},
			DueMonth:     opts.Period,
			CreatedAt:    date,
			UpdatedAt:    now,
			IsArrear:     status != models.StatusPaid,
		}})
	}

	if len(actions) > 0 {
		actions = appendMonths(actions, state, []string{opts.Period})
	}
	return actions, nil
}

var (
	colCategory    = []string{"Kategori", "kategori"}
	colArrearTotal = []string{"Nominal", "nominal", "Amount", "Total"}
	colMonth       = []string{"Bulan", "bulan", "Month"}
)

// NoMonth is the due month of an arrear whose month is unknown.
const NoMonth = "-"

// ParseArrears reads outstanding debts with columns Nama, Kategori, Nominal
// and Bulan. Each row becomes an unpaid arrear without interest; the
// category is Remon when the cell mentions it and Gaji otherwise.
func (im *Importer) ParseArrears(r io.Reader, state models.State) ([]ledger.Action, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if !t.has(colName...) || !t.has(colArrearTotal...) {
		return nil, fmt.Errorf("%w: Nama, Nominal", ErrMissingColumn)
	}

	borrowers := im.newResolver(state)
	now := im.Now().UTC()
	var (
		actions []ledger.Action
		months  []string
	)
	for _, row := range t.rows {
		name := t.get(row, colName...)
		amount, err := decimal.NewFromString(t.get(row, colArrearTotal...))
		if name == "" || err != nil || !amount.IsPositive() {
			continue
		}
		category := models.CategoryGaji
		if strings.Contains(strings.ToLower(t.get(row, colCategory...)), "remon") {
			category = models.CategoryRemon
		}
		month := t.get(row, colMonth...)
		if month == "" {
			month = NoMonth
		}
		if _, ok := labelStart(month); ok {
			months = append(months, month)
		}

		borrowerID := borrowers.resolve(name, &actions)
		actions = append(actions, ledger.AddArrearManual{Transaction: models.LoanTransaction{
			ID:             im.NewID(),
			BorrowerID:     borrowerID,
			BorrowerName:   name,
			Category:       category,
			TotalPrincipal: amount,
			TotalDue:       amount,
			PaidAmount:     decimal.Zero,
			Status:         models.StatusUnpaid,
			Entries:        []models.LoanEntry{},
			Installments:   []models.Installment{},
			DueMonth:       month,
			CreatedAt:      now,
			UpdatedAt:      now,
			IsArrear:       true,
		}})
	}
	return appendMonths(actions, state, months), nil
}

// resolver maps borrower names, case-insensitively, to ids and creates
// borrowers for names it has not seen.
type resolver struct {
	im    *Importer
	known map[string]string
}

func (im *Importer) newResolver(state models.State) *resolver {
	known := make(map[string]string, len(state.Borrowers))
	for _, b := range state.Borrowers {
		key := strings.ToLower(b.Name)
		if _, ok := known[key]; !ok {
			known[key] = b.ID
		}
	}
	return &resolver{im: im, known: known}
}

func (r *resolver) resolve(name string, actions *[]ledger.Action) string {
	key := strings.ToLower(name)
	if id, ok := r.known[key]; ok {
		return id
	}
	id := r.im.NewID()
	r.known[key] = id
	*actions = append(*actions, ledger.AddBorrower{Borrower: models.Borrower{
		ID:    id,
		Name:  name,
		Limit: DefaultImportLimit,
	}})
	return id
}

// appendMonths adds an UpdateConfig when labels holds months not yet known.
func appendMonths(actions []ledger.Action, state models.State, labels []string) []ledger.Action {
	if !slices.ContainsFunc(labels, func(l string) bool { return !slices.Contains(state.Config.AvailableMonths, l) }) {
		return actions
	}
	months := period.Union(state.Config.AvailableMonths, labels)
	period.Sort(months)
	return append(actions, ledger.UpdateConfig{Patch: ledger.ConfigPatch{AvailableMonths: months}})
}

func isPaidNote(note string) bool {
	n := strings.ToLower(note)
	return strings.Contains(n, "lunas") && !strings.Contains(n, "belum")
}

// spreadsheetEpoch is day zero of spreadsheet serial dates.
var spreadsheetEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// parseDate accepts yyyy-mm-dd, RFC 3339 or a spreadsheet serial number. An
// empty value means the first day of the period; anything else unreadable
// means now.
func parseDate(raw, label string, now time.Time) time.Time {
	if raw == "" {
		return periodStart(label, now)
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		return spreadsheetEpoch.Add(time.Duration(serial * float64(24*time.Hour))).Round(time.Second)
	}
	return now
}

func periodStart(label string, now time.Time) time.Time {
	if t, ok := labelStart(label); ok {
		return t
	}
	return now
}

// labelStart returns the first day of a "<Bulan> <year>" label.
func labelStart(label string) (time.Time, bool) {
	name, yearStr, _ := strings.Cut(label, " ")
	month := slices.Index(period.MonthNames, name)
	year, err := strconv.Atoi(yearStr)
	if month < 0 || err != nil || year <= 0 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, time.UTC)
	return t, period.Label(t) == label
}
