package ledger

import (
	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/transaction"
)

// Result is the per-command outcome handed back to the consensus adapter.
// A failed command carries the structured code the submitter sees; the rest
// of the block is unaffected.
type Result struct {
	TxHash string
	Kind   transaction.Kind
	Code   mlnerrors.LedgerErrorCode
	Log    string
	Data   []byte
}

// OK reports whether the command applied.
func (r *Result) OK() bool {
	return r.Code == ""
}

// CreateReceipt is the Data payload of a successful multisig create: the
// derived account address.
type CreateReceipt struct {
	Address identity.Address `cbor:"1,keyasint"`
}

// ProposeReceipt is the Data payload of a successful multisig propose: the
// token the pending transaction is filed under.
type ProposeReceipt struct {
	Token uint64 `cbor:"1,keyasint"`
}
