package program

import (
	"errors"
	"fmt"

	"github.com/Linkan333/solana-rust-arb/internal/flashloan"
	"github.com/Linkan333/solana-rust-arb/internal/ledger"
)

// Error kinds. Every failure returned by the program matches exactly one of them
// under errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrFlashloan         = errors.New("flashloan error")
	ErrExternalVenue     = errors.New("external venue error")
)

// Error is a classified program failure.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.Error()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Kind returns the program error kind of err, or nil when err is not classified.
func Kind(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return nil
}

// classify maps runtime and lending failures into the program's error kinds.
// Errors that are already classified pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	kind := ErrExternalVenue
	switch {
	case errors.Is(err, flashloan.ErrRefused), errors.Is(err, flashloan.ErrNotRepaid):
		kind = ErrFlashloan
	case errors.Is(err, ledger.ErrInsufficientFunds):
		kind = ErrInsufficientFunds
	case errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, ledger.ErrInvalidSignature),
		errors.Is(err, ledger.ErrInvalidSeeds),
		errors.Is(err, ledger.ErrAccountNotInTx),
		errors.Is(err, ledger.ErrAccountNotWritable):
		kind = ErrUnauthorized
	case errors.Is(err, ledger.ErrOverflow):
		kind = ErrValidation
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch Kind(err) {
	case nil:
		if err == nil {
			return "committed"
		}
		return "rejected"
	case ErrValidation:
		return "validation"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrInsufficientFunds:
		return "insufficient_funds"
	case ErrFlashloan:
		return "flashloan"
	default:
		return "external_venue"
	}
}
