package jsonrpc

// JSON-RPC Method name constants
const (
	// Ledger methods
	MethodLedgerInfo    = "ledger.info"
	MethodLedgerBalance = "ledger.balance"

	// KV store methods
	MethodKVStoreGet  = "kvstore.get"
	MethodKVStoreInfo = "kvstore.info"

	// Multisig methods
	MethodMultisigInfo   = "multisig.info"
	MethodMultisigStatus = "multisig.status"

	// State methods
	MethodStateProof = "state.proof"

	// Node methods
	MethodNodeStatus  = "node.status"
	MethodHealthCheck = "health.check"
)
