package ledger

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes ledger errors. Codes are the stable taxonomy;
// callers branch on the code, never on message text.
type ErrorCode string

const (
	// CodePolicyViolation: an agent attempted to hold or issue an
	// instrument kind its capability set forbids. Never retried.
	CodePolicyViolation ErrorCode = "POLICY_VIOLATION"

	// CodeInvalidInput: non-positive or out-of-range amount, self
	// transfer, indivisible partial transfer, negative price.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInsufficientFunds: not enough of an instrument kind to
	// complete a transfer, retire, or conversion.
	CodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"

	// CodeNotFungible: merge attempted across incompatible fungible
	// keys. A programming error in the caller.
	CodeNotFungible ErrorCode = "NOT_FUNGIBLE"

	// CodeHolderMismatch: a deliverable transfer named a sender that is
	// not the current holder.
	CodeHolderMismatch ErrorCode = "HOLDER_MISMATCH"

	// CodeNotFound: the referenced agent or instrument does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeInconsistent: the double-entry cross-reference does not hold.
	// Indicates caller misuse or a prior invariant breach; never
	// auto-corrected.
	CodeInconsistent ErrorCode = "INCONSISTENT"
)

// Error is the ledger's typed error. Every failed operation returns one
// (wrapped or not); the atomic transaction wrapper guarantees no partial
// effect remains when it surfaces.
type Error struct {
	Code       ErrorCode
	Op         string // the operation that failed, e.g. "transfer_cash"
	Agent      AgentID
	Instrument InstrumentID
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Agent != "" && e.Instrument != "":
		return fmt.Sprintf("%s: %s: %s (agent=%s, instrument=%s)", e.Code, e.Op, e.Message, e.Agent, e.Instrument)
	case e.Agent != "":
		return fmt.Sprintf("%s: %s: %s (agent=%s)", e.Code, e.Op, e.Message, e.Agent)
	case e.Instrument != "":
		return fmt.Sprintf("%s: %s: %s (instrument=%s)", e.Code, e.Op, e.Message, e.Instrument)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	}
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns "" if err is not a ledger error.
func CodeOf(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsInsufficientFunds reports whether err carries CodeInsufficientFunds.
func IsInsufficientFunds(err error) bool {
	return CodeOf(err) == CodeInsufficientFunds
}

// IsPolicyViolation reports whether err carries CodePolicyViolation.
func IsPolicyViolation(err error) bool {
	return CodeOf(err) == CodePolicyViolation
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
