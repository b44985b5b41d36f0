package engine

import (
	"errors"
	"fmt"

	"github.com/opensimfi/daybook/internal/ledger"
	"github.com/shopspring/decimal"
)

// DefaultError reports that a due obligation could not be fully
// discharged by any available settlement method.
//
// A default is a domain outcome, not a bug: it is always propagated to
// the day driver, and the obligation is left intact in the registry for
// explicit handling. The atomic scope guarantees any partial payments
// made while attempting the waterfall were rolled back.
type DefaultError struct {
	Obligation ledger.InstrumentID
	Debtor     ledger.AgentID
	Creditor   ledger.AgentID
	Day        int
	Shortfall  decimal.Decimal
	SKU        string // set for deliverable obligations only
}

// Error implements the error interface.
func (e *DefaultError) Error() string {
	if e.SKU != "" {
		return fmt.Sprintf("deliverable %s defaulted on day %d: %s %s still owed by %s to %s",
			e.Obligation, e.Day, e.Shortfall, e.SKU, e.Debtor, e.Creditor)
	}
	return fmt.Sprintf("payable %s defaulted on day %d: %s still owed by %s to %s",
		e.Obligation, e.Day, e.Shortfall, e.Debtor, e.Creditor)
}

// IsDefault reports whether err is (or wraps) a DefaultError.
func IsDefault(err error) bool {
	var de *DefaultError
	return errors.As(err, &de)
}

// AllDefaults reports whether err consists solely of DefaultErrors,
// descending into errors.Join trees. The day driver uses it to decide
// whether continue-on-default may proceed; callers use it to tell a
// defaulted run from a broken one.
func AllDefaults(err error) bool {
	if err == nil {
		return true
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if !AllDefaults(e) {
				return false
			}
		}
		return true
	}
	return IsDefault(err)
}
