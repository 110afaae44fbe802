package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcclellann/kasbon/pkg/migrate"
	"github.com/mcclellann/kasbon/pkg/models"
)

// ErrInvalidAction is returned for envelopes that cannot be decoded or
// whose payload fails validation.
var ErrInvalidAction = errors.New("invalid action")

// Envelope is the wire form of an action: {"type": "ADD_LOAN", "payload": {...}}.
// Payload shapes match what existing clients send, so some payloads are a
// bare id or id list rather than an object.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeAction parses and validates an action envelope.
func DecodeAction(data []byte) (Action, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	a, err := env.Action()
	if err != nil {
		return nil, err
	}
	if err := ValidateAction(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Action decodes the payload according to the envelope type.
func (e Envelope) Action() (Action, error) {
	var (
		a   Action
		err error
	)
	switch e.Type {
	case TypeAddBorrower:
		var b models.Borrower
		err = unmarshal(e.Payload, &b)
		a = AddBorrower{Borrower: b}
	case TypeDeleteBorrower:
		var id string
		err = unmarshal(e.Payload, &id)
		a = DeleteBorrower{ID: id}
	case TypeUpdateBorrower:
		var p UpdateBorrower
		err = unmarshal(e.Payload, &p)
		a = p
	case TypeAddLoan:
		var p AddLoan
		err = unmarshal(e.Payload, &p)
		a = p
	case TypeMakePayment:
		var p MakePayment
		err = unmarshal(e.Payload, &p)
		a = p
	case TypeDeletePayment:
		var p DeletePayment
		err = unmarshal(e.Payload, &p)
		a = p
	case TypeUpdateTransaction:
		var p UpdateTransaction
		err = unmarshal(e.Payload, &p)
		a = p
	case TypeUpdateArrear:
		var p UpdateArrear
		err = unmarshal(e.Payload, &p)
		a = p
	case TypeMoveLoanCategory:
		var p MoveLoanCategory
		err = unmarshal(e.Payload, &p)
		a = p
	case TypeAddArrearManual:
		var t models.LoanTransaction
		err = unmarshal(e.Payload, &t)
		a = AddArrearManual{Transaction: t}
	case TypeDeleteTransaction:
		var id string
		err = unmarshal(e.Payload, &id)
		a = DeleteTransaction{ID: id}
	case TypeDeleteTransactionsBatch:
		var ids []string
		err = unmarshal(e.Payload, &ids)
		a = DeleteTransactionsBatch{IDs: ids}
	case TypeUpdateConfig:
		var p ConfigPatch
		err = unmarshal(e.Payload, &p)
		a = UpdateConfig{Patch: p}
	case TypeLoadState:
		if err = checkPayload(e.Payload); err == nil {
			var s models.State
			s, err = migrate.Migrate(e.Payload)
			a = LoadState{State: s}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, e.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrInvalidAction, e.Type, err)
	}
	return a, nil
}

func checkPayload(payload json.RawMessage) error {
	if p := bytes.TrimSpace(payload); len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return errors.New("missing payload")
	}
	return nil
}

func unmarshal(payload json.RawMessage, v interface{}) error {
	if err := checkPayload(payload); err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

// ValidateActions checks every action of a batch before any is applied.
func ValidateActions(actions []Action) error {
	for i, a := range actions {
		if err := ValidateAction(a); err != nil {
			return &BatchError{Index: i, Action: a, Err: err}
		}
	}
	return nil
}

// ValidateAction checks the payload shape of a. Ledger.Apply does not
// validate; callers accepting untrusted input should.
func ValidateAction(a Action) error {
	var err error
	switch a := a.(type) {
	case AddArrearManual:
		err = models.Validate(a.Transaction)
	case UpdateConfig:
		if c := a.Patch.ActiveCycle; c != nil && !c.Valid() {
			err = fmt.Errorf("unknown category %q", *c)
		}
	case LoadState, DeleteTransactionsBatch:
	default:
		err = models.Validate(a)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAction, a.Type(), err)
	}
	return nil
}
