package errors

import (
	stderrors "errors"

	"github.com/mlnlabs/mln/jsonx"
)

// LedgerErrorCode represents standardized error codes for command results
type LedgerErrorCode string

const (
	// General errors
	ErrCodeInternal LedgerErrorCode = "internal_error"

	// Validation errors
	ErrCodeInvalidCommand LedgerErrorCode = "invalid_command"
	ErrCodeInvalidAddress LedgerErrorCode = "invalid_address"
	ErrCodeInvalidAmount  LedgerErrorCode = "invalid_amount"
	ErrCodeInvalidNonce   LedgerErrorCode = "invalid_nonce"
	ErrCodeAnonymous      LedgerErrorCode = "anonymous_caller"

	// Business logic errors
	ErrCodeInsufficientFunds LedgerErrorCode = "insufficient_funds"
	ErrCodeUnknownSymbol     LedgerErrorCode = "unknown_symbol"
	ErrCodePermissionDenied  LedgerErrorCode = "permission_denied"
	ErrCodeThresholdNotMet   LedgerErrorCode = "threshold_not_met"
	ErrCodeExpired           LedgerErrorCode = "expired"
	ErrCodeNotFound          LedgerErrorCode = "not_found"
	ErrCodeAlreadyExists     LedgerErrorCode = "already_exists"
	ErrCodeAmountOverflow    LedgerErrorCode = "amount_overflow"

	// Capability errors
	ErrCodeFeatureDisabled LedgerErrorCode = "feature_disabled"
)

// LedgerError represents a command-local failure: the command is rejected,
// its writes are discarded, and the block goes on.
type LedgerError struct {
	Code    LedgerErrorCode `json:"code"`
	Message string          `json:"message"`
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	err, _ := jsonx.Marshal(LedgerError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(err)
}

// Error message constants - user-friendly and concise
const (
	ErrMsgInvalidCommand    = "Command data is invalid"
	ErrMsgInvalidAddress    = "Address is invalid"
	ErrMsgInvalidAmount     = "Amount is invalid or zero"
	ErrMsgInvalidNonce      = "Command nonce is invalid"
	ErrMsgAnonymous         = "Anonymous callers cannot submit commands"
	ErrMsgInsufficientFunds = "Not enough balance for this transfer"
	ErrMsgUnknownSymbol     = "Token symbol is not registered"
	ErrMsgPermissionDenied  = "Caller is not allowed to perform this operation"
	ErrMsgThresholdNotMet   = "Not enough approvals to execute"
	ErrMsgExpired           = "Pending transaction has expired"
	ErrMsgAccountNotFound   = "Account does not exist"
	ErrMsgTxNotFound        = "Pending transaction could not be found"
	ErrMsgKeyNotFound       = "Key does not exist"
	ErrMsgAlreadyExists     = "Record already exists"
	ErrMsgAmountOverflow    = "Amount exceeds the representable range"
	ErrMsgFeatureDisabled   = "This command is not enabled on this chain"
	ErrMsgInternal          = "Internal error, command rejected"
)

// NewError creates a new LedgerError and returns it as error interface
func NewError(code LedgerErrorCode, message string) error {
	return &LedgerError{
		Code:    code,
		Message: message,
	}
}

// CodeOf extracts the command error code from err, or ErrCodeInternal when err
// is not a LedgerError.
func CodeOf(err error) LedgerErrorCode {
	var le *LedgerError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err is a LedgerError carrying the given code.
func IsCode(err error, code LedgerErrorCode) bool {
	var le *LedgerError
	return stderrors.As(err, &le) && le.Code == code
}
