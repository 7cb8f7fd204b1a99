package types

// MigrationRecord marks a migration as applied. It lives inside the
// authenticated state, so the applied set is part of the root digest and
// replicas can never silently disagree about it.
type MigrationRecord struct {
	Version uint8  `cbor:"1,keyasint"`
	Name    string `cbor:"2,keyasint"`
	Height  uint64 `cbor:"3,keyasint"`
}

// NewMigrationRecord records that name ran at height.
func NewMigrationRecord(name string, height uint64) *MigrationRecord {
	return &MigrationRecord{Version: RecordVersion, Name: name, Height: height}
}

// SequenceRecord is a persisted monotonic counter, e.g. the pending multisig
// transaction sequence. Keeping it in authenticated state makes the generated
// tokens deterministic across replicas.
type SequenceRecord struct {
	Version uint8  `cbor:"1,keyasint"`
	Next    uint64 `cbor:"2,keyasint"`
}

// NewSequenceRecord starts a counter at 1.
func NewSequenceRecord() *SequenceRecord {
	return &SequenceRecord{Version: RecordVersion, Next: 1}
}
