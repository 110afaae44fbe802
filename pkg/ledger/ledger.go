package ledger

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/kasbon/pkg/finance"
	"github.com/mcclellann/kasbon/pkg/models"
	"github.com/shopspring/decimal"
)

// ManualAdjustmentNote marks the synthetic installment written when a paid
// amount is edited directly.
const ManualAdjustmentNote = "Penyesuaian Manual (Edit)"

var (
	ErrBorrowerNotFound    = errors.New("borrower not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInstallmentNotFound = errors.New("installment not found")
	ErrUnknownAction       = errors.New("unknown action")
)

// IsNotFound reports whether err is caused by an unknown id. The state
// returned alongside such an error is the unchanged input.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBorrowerNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrInstallmentNotFound)
}

// Ledger applies actions to states. It holds no state of its own: Apply
// never modifies its input and the returned state shares no mutable
// backing arrays with it that a later Apply could overwrite.
type Ledger struct {
	now   func() time.Time
	newID func() string
}

type Option func(*Ledger)

// WithClock sets the time source used for entry dates and timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDs sets the generator for new entity ids.
func WithIDs(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// NewLedger creates a Ledger using the wall clock and random UUIDs unless overridden.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Apply returns the state that results from applying a to s. When a refers
// to an id that does not exist, s is returned unchanged with an error
// matching IsNotFound.
func (l *Ledger) Apply(s models.State, a Action) (models.State, error) {
	switch a := a.(type) {
	case AddBorrower:
		return l.addBorrower(s, a), nil
	case DeleteBorrower:
		return deleteBorrower(s, a)
	case UpdateBorrower:
		return updateBorrower(s, a)
	case AddLoan:
		return l.addLoan(s, a)
	case MakePayment:
		return l.makePayment(s, a)
	case DeletePayment:
		return l.deletePayment(s, a)
	case UpdateTransaction:
		return l.editBalance(s, a.ID, a.TotalPrincipal, a.TotalDue, a.PaidAmount, a.IsPriority, nil)
	case UpdateArrear:
		return l.editBalance(s, a.ID, a.TotalPrincipal, a.TotalDue, a.PaidAmount, a.IsPriority, func(t *models.LoanTransaction) {
			t.CreatedAt = a.CreatedAt
			t.DueMonth = a.DueMonth
		})
	case MoveLoanCategory:
		return l.moveLoanCategory(s, a)
	case AddArrearManual:
		return l.addArrearManual(s, a), nil
	case DeleteTransaction:
		return deleteTransaction(s, a)
	case DeleteTransactionsBatch:
		return deleteTransactionsBatch(s, a), nil
	case UpdateConfig:
		return updateConfig(s, a), nil
	case LoadState:
		return a.State.Clone(), nil
	default:
		return s, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
}

func (l *Ledger) addBorrower(s models.State, a AddBorrower) models.State {
	b := a.Borrower
	if b.ID == "" {
		b.ID = l.newID()
	}
	s.Borrowers = append(slices.Clone(s.Borrowers), b)
	return s
}

func deleteBorrower(s models.State, a DeleteBorrower) (models.State, error) {
	i := slices.IndexFunc(s.Borrowers, func(b models.Borrower) bool { return b.ID == a.ID })
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrBorrowerNotFound, a.ID)
	}
	// Transactions keep their borrowerId; orphans resolve by their stored name.
	s.Borrowers = slices.Delete(slices.Clone(s.Borrowers), i, i+1)
	return s, nil
}

func updateBorrower(s models.State, a UpdateBorrower) (models.State, error) {
	i := slices.IndexFunc(s.Borrowers, func(b models.Borrower) bool { return b.ID == a.ID })
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrBorrowerNotFound, a.ID)
	}
	s.Borrowers = slices.Clone(s.Borrowers)
	s.Borrowers[i].Name = a.Name
	s.Borrowers[i].Limit = a.Limit

	txs := slices.Clone(s.Transactions)
	for j := range txs {
		if txs[j].BorrowerID == a.ID {
			txs[j].BorrowerName = a.Name
		}
	}
	s.Transactions = txs
	return s, nil
}

func (l *Ledger) addLoan(s models.State, a AddLoan) (models.State, error) {
	b, ok := s.FindBorrower(a.BorrowerID)
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrBorrowerNotFound, a.BorrowerID)
	}

	now := l.now()
	entry := models.LoanEntry{
		ID:           l.newID(),
		BorrowerID:   a.BorrowerID,
		Category:     a.Category,
		Amount:       a.Amount,
		InterestRate: a.Rate,
		TotalDue:     finance.TotalDue(a.Amount, a.Rate),
		Date:         now,
	}
	activeMonth := s.Config.ActivePeriod(a.Category)

	i := slices.IndexFunc(s.Transactions, func(t models.LoanTransaction) bool {
		return t.BorrowerID == a.BorrowerID && t.Category == a.Category && t.Active()
	})
	if i >= 0 {
		t := s.Transactions[i].Clone()
		t.Entries = append(t.Entries, entry)
		t.TotalPrincipal = t.TotalPrincipal.Add(entry.Amount)
		t.TotalDue = t.TotalDue.Add(entry.TotalDue)
		t.Status = models.DeriveStatus(t.PaidAmount, t.TotalDue)
		// Open debt from an earlier period moves to the current one.
		t.DueMonth = activeMonth
		t.UpdatedAt = now
		if a.IsPriority != nil {
			t.IsPriority = *a.IsPriority
		}
		return replaceTransaction(s, i, t), nil
	}

	t := models.LoanTransaction{
		ID:             l.newID(),
		BorrowerID:     a.BorrowerID,
		BorrowerName:   b.Name,
		Category:       a.Category,
		TotalPrincipal: entry.Amount,
		TotalDue:       entry.TotalDue,
		PaidAmount:     decimal.Zero,
		Status:         models.StatusUnpaid,
		Entries:        []models.LoanEntry{entry},
		Installments:   []models.Installment{},
		DueMonth:       activeMonth,
		CreatedAt:      now,
		UpdatedAt:      now,
		IsPriority:     a.IsPriority != nil && *a.IsPriority,
	}
	return prependTransaction(s, t), nil
}

func (l *Ledger) makePayment(s models.State, a MakePayment) (models.State, error) {
	i := s.FindTransaction(a.TransactionID)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrTransactionNotFound, a.TransactionID)
	}

	now := l.now()
	date := a.Date
	if date.IsZero() {
		date = now
	}

	t := s.Transactions[i].Clone()
	t.PaidAmount = t.PaidAmount.Add(a.Amount)
	t.Status = models.DeriveStatus(t.PaidAmount, t.TotalDue)
	t.Installments = append(t.Installments, models.Installment{
		ID:     l.newID(),
		Amount: a.Amount,
		Date:   date,
		Note:   a.Note,
	})
	t.UpdatedAt = now
	return replaceTransaction(s, i, t), nil
}

func (l *Ledger) deletePayment(s models.State, a DeletePayment) (models.State, error) {
	i := s.FindTransaction(a.TransactionID)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrTransactionNotFound, a.TransactionID)
	}
	j := slices.IndexFunc(s.Transactions[i].Installments, func(in models.Installment) bool { return in.ID == a.InstallmentID })
	if j < 0 {
		return s, fmt.Errorf("%w: %s in transaction %s", ErrInstallmentNotFound, a.InstallmentID, a.TransactionID)
	}

	t := s.Transactions[i].Clone()
	t.PaidAmount = t.PaidAmount.Sub(t.Installments[j].Amount)
	t.Installments = slices.Delete(t.Installments, j, j+1)
	t.Status = models.DeriveStatus(t.PaidAmount, t.TotalDue)
	t.UpdatedAt = l.now()
	return replaceTransaction(s, i, t), nil
}

// editBalance is the direct edit path shared by UpdateTransaction and
// UpdateArrear. A changed paid amount discards the installment history.
func (l *Ledger) editBalance(s models.State, id string, principal, due decimal.Decimal, paid *decimal.Decimal, priority *bool, extra func(*models.LoanTransaction)) (models.State, error) {
	i := s.FindTransaction(id)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}

	now := l.now()
	t := s.Transactions[i].Clone()
	if paid != nil && !paid.Equal(t.PaidAmount) {
		t.PaidAmount = *paid
		if paid.IsZero() {
			t.Installments = []models.Installment{}
		} else {
			t.Installments = []models.Installment{{
				ID:     l.newID(),
				Amount: *paid,
				Date:   now,
				Note:   ManualAdjustmentNote,
			}}
		}
	}
	t.TotalPrincipal = principal
	t.TotalDue = due
	t.Status = models.DeriveStatus(t.PaidAmount, t.TotalDue)
	t.UpdatedAt = now
	if priority != nil {
		t.IsPriority = *priority
	}
	if extra != nil {
		extra(&t)
	}
	return replaceTransaction(s, i, t), nil
}

// moveLoanCategory does not merge into an active transaction of the target
// category, so a borrower can briefly hold two active loans there.
func (l *Ledger) moveLoanCategory(s models.State, a MoveLoanCategory) (models.State, error) {
	i := s.FindTransaction(a.ID)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrTransactionNotFound, a.ID)
	}
	t := s.Transactions[i].Clone()
	t.Category = a.NewCategory
	t.DueMonth = s.Config.ActivePeriod(a.NewCategory)
	t.UpdatedAt = l.now()
	return replaceTransaction(s, i, t), nil
}

func (l *Ledger) addArrearManual(s models.State, a AddArrearManual) models.State {
	now := l.now()
	in := a.Transaction.Clone()

	i := slices.IndexFunc(s.Transactions, func(t models.LoanTransaction) bool {
		return t.IsArrear && t.BorrowerID == in.BorrowerID && t.Active()
	})
	if i >= 0 {
		t := s.Transactions[i].Clone()
		t.TotalPrincipal = t.TotalPrincipal.Add(in.TotalPrincipal)
		t.TotalDue = t.TotalDue.Add(in.TotalDue)
		t.Entries = append(t.Entries, in.Entries...)
		t.Status = models.DeriveStatus(t.PaidAmount, t.TotalDue)
		t.UpdatedAt = now
		return replaceTransaction(s, i, t)
	}

	if in.ID == "" {
		in.ID = l.newID()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = now
	}
	if in.Entries == nil {
		in.Entries = []models.LoanEntry{}
	}
	if in.Installments == nil {
		in.Installments = []models.Installment{}
	}
	in.Status = models.DeriveStatus(in.PaidAmount, in.TotalDue)
	return prependTransaction(s, in)
}

func deleteTransaction(s models.State, a DeleteTransaction) (models.State, error) {
	i := s.FindTransaction(a.ID)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrTransactionNotFound, a.ID)
	}
	s.Transactions = slices.Delete(slices.Clone(s.Transactions), i, i+1)
	return s, nil
}

func deleteTransactionsBatch(s models.State, a DeleteTransactionsBatch) models.State {
	s.Transactions = slices.DeleteFunc(slices.Clone(s.Transactions), func(t models.LoanTransaction) bool {
		return slices.Contains(a.IDs, t.ID)
	})
	return s
}

func updateConfig(s models.State, a UpdateConfig) models.State {
	p := a.Patch
	c := s.Config
	if p.ActiveCycle != nil {
		c.ActiveCycle = *p.ActiveCycle
	}
	if p.ActiveMonthGaji != nil {
		c.ActiveMonthGaji = *p.ActiveMonthGaji
	}
	if p.InterestRateGaji != nil {
		c.InterestRateGaji = *p.InterestRateGaji
	}
	if p.ActiveMonthRemon != nil {
		c.ActiveMonthRemon = *p.ActiveMonthRemon
	}
	if p.InterestRateRemon != nil {
		c.InterestRateRemon = *p.InterestRateRemon
	}
	if p.GoogleScriptURL != nil {
		c.GoogleScriptURL = *p.GoogleScriptURL
	}
	if p.EnableAutoSync != nil {
		c.EnableAutoSync = *p.EnableAutoSync
	}
	if p.Version != nil {
		c.Version = *p.Version
	}
	if p.AvailableMonths != nil {
		c.AvailableMonths = slices.Clone(p.AvailableMonths)
	}
	s.Config = c
	return s
}

func replaceTransaction(s models.State, i int, t models.LoanTransaction) models.State {
	txs := slices.Clone(s.Transactions)
	txs[i] = t
	s.Transactions = txs
	return s
}

// prependTransaction puts t first; newest transactions are listed first.
func prependTransaction(s models.State, t models.LoanTransaction) models.State {
	txs := make([]models.LoanTransaction, 0, len(s.Transactions)+1)
	txs = append(txs, t)
	s.Transactions = append(txs, s.Transactions...)
	return s
}
