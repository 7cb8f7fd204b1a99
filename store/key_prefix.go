package store

import "encoding/binary"

// Declare authenticated state key prefixes for records. The leading s1
// versions the whole namespace: a future incompatible schema moves to s2 and
// a height-gated migration rewrites records across.
const (
	PrefixAccount  = "s1:acct:"
	PrefixBalance  = "s1:bal:"
	PrefixSymbol   = "s1:sym:"
	PrefixMultisig = "s1:msig:"
	PrefixPending  = "s1:pend:"
	PrefixKV       = "s1:kv:"

	PrefixMigration = "s1:migr:"

	MetaKeyPendingSeq = "s1:meta:pendseq"
)

// AccountKey returns the account record key for a raw address.
func AccountKey(addr []byte) []byte {
	return append([]byte(PrefixAccount), addr...)
}

// BalanceKey returns the balance record key for (address, symbol). The
// address is fixed-length, so the symbol can be recovered from the tail.
func BalanceKey(addr []byte, symbol string) []byte {
	key := append([]byte(PrefixBalance), addr...)
	return append(key, symbol...)
}

// SymbolKey returns the symbol record key.
func SymbolKey(symbol string) []byte {
	return append([]byte(PrefixSymbol), symbol...)
}

// MultisigKey returns the multisig account record key.
func MultisigKey(addr []byte) []byte {
	return append([]byte(PrefixMultisig), addr...)
}

// PendingKey returns the pending transaction key for a token. Big-endian
// keeps pending transactions iterable in token order.
func PendingKey(token uint64) []byte {
	key := []byte(PrefixPending)
	var tokenBuf [8]byte
	binary.BigEndian.PutUint64(tokenBuf[:], token)
	return append(key, tokenBuf[:]...)
}

// KVKey returns the key/value entry key for an application key.
func KVKey(key []byte) []byte {
	return append([]byte(PrefixKV), key...)
}

// MigrationKey returns the applied migration record key.
func MigrationKey(name string) []byte {
	return append([]byte(PrefixMigration), name...)
}
