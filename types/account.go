package types

// AccountRecord carries everything tracked per address besides balances. The
// nonce counts accepted commands; the next command must carry nonce+1.
type AccountRecord struct {
	Version uint8  `cbor:"1,keyasint"`
	Nonce   uint64 `cbor:"2,keyasint"`
}

// NewAccountRecord returns a fresh record at the current version.
func NewAccountRecord() *AccountRecord {
	return &AccountRecord{Version: RecordVersion}
}

// BalanceRecord is one (address, symbol) balance. Balances live in their own
// records so a single balance can be proven without shipping the account.
type BalanceRecord struct {
	Version uint8   `cbor:"1,keyasint"`
	Amount  *Amount `cbor:"2,keyasint"`
}

// NewBalanceRecord returns a balance record holding amount.
func NewBalanceRecord(amount *Amount) *BalanceRecord {
	return &BalanceRecord{Version: RecordVersion, Amount: amount}
}
