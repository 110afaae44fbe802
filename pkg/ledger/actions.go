package ledger

import (
	"time"

	"github.com/mcclellann/kasbon/pkg/models"
	"github.com/shopspring/decimal"
)

// Action is a command applied to the state by Ledger.Apply.
type Action interface {
	// Type returns the wire name of the action, e.g. "ADD_LOAN".
	Type() string
}

const (
	TypeAddBorrower             = "ADD_BORROWER"
	TypeDeleteBorrower          = "DELETE_BORROWER"
	TypeUpdateBorrower          = "UPDATE_BORROWER"
	TypeAddLoan                 = "ADD_LOAN"
	TypeMakePayment             = "MAKE_PAYMENT"
	TypeDeletePayment           = "DELETE_PAYMENT"
	TypeUpdateTransaction       = "UPDATE_TRANSACTION"
	TypeUpdateArrear            = "UPDATE_ARREAR"
	TypeMoveLoanCategory        = "MOVE_LOAN_CATEGORY"
	TypeAddArrearManual         = "ADD_ARREAR_MANUAL"
	TypeDeleteTransaction       = "DELETE_TRANSACTION"
	TypeDeleteTransactionsBatch = "DELETE_TRANSACTIONS_BATCH"
	TypeUpdateConfig            = "UPDATE_CONFIG"
	TypeLoadState               = "LOAD_STATE"
)

type AddBorrower struct {
	Borrower models.Borrower `json:"borrower"`
}

type DeleteBorrower struct {
	ID string `json:"id" validate:"required"`
}

// UpdateBorrower renames a borrower and changes the limit. The new name is
// copied onto every transaction of the borrower.
type UpdateBorrower struct {
	ID    string          `json:"id" validate:"required"`
	Name  string          `json:"name" validate:"required"`
	Limit decimal.Decimal `json:"limit" validate:"gte=0"`
}

// AddLoan disburses Amount to a borrower at Rate percent interest.
type AddLoan struct {
	BorrowerID string          `json:"borrowerId" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Rate       decimal.Decimal `json:"rate" validate:"gte=0"`
	Category   models.Category `json:"category" validate:"category"`
	IsPriority *bool           `json:"isPriority,omitempty"`
}

type MakePayment struct {
	TransactionID string          `json:"transactionId" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Date          time.Time       `json:"date"`
	Note          string          `json:"note,omitempty"`
}

type DeletePayment struct {
	TransactionID string `json:"transactionId" validate:"required"`
	InstallmentID string `json:"installmentId" validate:"required"`
}

// UpdateTransaction edits balances directly. A PaidAmount that differs from
// the current one replaces the installment log.
type UpdateTransaction struct {
	ID             string           `json:"id" validate:"required"`
	TotalPrincipal decimal.Decimal  `json:"totalPrincipal" validate:"gte=0"`
	TotalDue       decimal.Decimal  `json:"totalDue" validate:"gte=0"`
	IsPriority     *bool            `json:"isPriority,omitempty"`
	PaidAmount     *decimal.Decimal `json:"paidAmount,omitempty"`
}

// UpdateArrear is UpdateTransaction for arrears, which also carry an
// editable creation date and due month.
type UpdateArrear struct {
	ID             string           `json:"id" validate:"required"`
	TotalPrincipal decimal.Decimal  `json:"totalPrincipal" validate:"gte=0"`
	TotalDue       decimal.Decimal  `json:"totalDue" validate:"gte=0"`
	CreatedAt      time.Time        `json:"createdAt"`
	DueMonth       string           `json:"dueMonth"`
	IsPriority     *bool            `json:"isPriority,omitempty"`
	PaidAmount     *decimal.Decimal `json:"paidAmount,omitempty"`
}

type MoveLoanCategory struct {
	ID          string          `json:"id" validate:"required"`
	NewCategory models.Category `json:"newCategory" validate:"category"`
}

type AddArrearManual struct {
	Transaction models.LoanTransaction `json:"transaction"`
}

type DeleteTransaction struct {
	ID string `json:"id" validate:"required"`
}

type DeleteTransactionsBatch struct {
	IDs []string `json:"ids"`
}

// ConfigPatch holds the config fields to overwrite. Nil fields are left as is.
type ConfigPatch struct {
	ActiveCycle       *models.Category `json:"activeCycle,omitempty"`
	ActiveMonthGaji   *string          `json:"activeMonthGaji,omitempty"`
	InterestRateGaji  *decimal.Decimal `json:"interestRateGaji,omitempty"`
	ActiveMonthRemon  *string          `json:"activeMonthRemon,omitempty"`
	InterestRateRemon *decimal.Decimal `json:"interestRateRemon,omitempty"`
	GoogleScriptURL   *string          `json:"googleScriptUrl,omitempty"`
	EnableAutoSync    *bool            `json:"enableAutoSync,omitempty"`
	Version           *int             `json:"version,omitempty"`
	AvailableMonths   []string         `json:"availableMonths,omitempty"`
}

type UpdateConfig struct {
	Patch ConfigPatch `json:"patch"`
}

type LoadState struct {
	State models.State `json:"state"`
}

func (AddBorrower) Type() string             { return TypeAddBorrower }
func (DeleteBorrower) Type() string          { return TypeDeleteBorrower }
func (UpdateBorrower) Type() string          { return TypeUpdateBorrower }
func (AddLoan) Type() string                 { return TypeAddLoan }
func (MakePayment) Type() string             { return TypeMakePayment }
func (DeletePayment) Type() string           { return TypeDeletePayment }
func (UpdateTransaction) Type() string       { return TypeUpdateTransaction }
func (UpdateArrear) Type() string            { return TypeUpdateArrear }
func (MoveLoanCategory) Type() string        { return TypeMoveLoanCategory }
func (AddArrearManual) Type() string         { return TypeAddArrearManual }
func (DeleteTransaction) Type() string       { return TypeDeleteTransaction }
func (DeleteTransactionsBatch) Type() string { return TypeDeleteTransactionsBatch }
func (UpdateConfig) Type() string            { return TypeUpdateConfig }
func (LoadState) Type() string               { return TypeLoadState }
