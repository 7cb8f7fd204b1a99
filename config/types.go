package config

// GenesisSymbol registers one token symbol at height zero.
type GenesisSymbol struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint32 `yaml:"decimals"`
	Owner    string `yaml:"owner"`
}

// GenesisBalance grants an initial balance. Amount is a decimal string so
// genesis files survive amounts beyond 64 bits.
type GenesisBalance struct {
	Address string `yaml:"address"`
	Symbol  string `yaml:"symbol"`
	Amount  string `yaml:"amount"`
}

// GenesisKVEntry seeds one key/value entry with its owner and optional extra
// writers.
type GenesisKVEntry struct {
	Key     string   `yaml:"key"`
	Value   string   `yaml:"value"`
	Owner   string   `yaml:"owner"`
	Writers []string `yaml:"writers"`
}

// GenesisMultisig seeds a multisig account at a fixed address.
type GenesisMultisig struct {
	Address      string   `yaml:"address"`
	Owners       []string `yaml:"owners"`
	Threshold    uint32   `yaml:"threshold"`
	ExpiryBlocks uint64   `yaml:"expiry_blocks"`
}

// MigrationSchedule fixes the activation height of a named migration.
type MigrationSchedule struct {
	Name   string `yaml:"name"`
	Height uint64 `yaml:"height"`
}

// Genesis holds the chain's height-zero state and behavior schedule.
type Genesis struct {
	ChainID    string              `yaml:"chain_id"`
	Symbols    []GenesisSymbol     `yaml:"symbols"`
	Balances   []GenesisBalance    `yaml:"balances"`
	KVEntries  []GenesisKVEntry    `yaml:"kv_entries"`
	Multisigs  []GenesisMultisig   `yaml:"multisigs"`
	Migrations []MigrationSchedule `yaml:"migrations"`
	Features   Features            `yaml:"features"`
}

// GenesisFile is the top-level structure of genesis.yml.
type GenesisFile struct {
	Genesis Genesis `yaml:"genesis"`
}
