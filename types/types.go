// Package types holds the state records the ledger persists. Every record is
// CBOR with integer field keys and a leading version, so replicas produce
// byte-identical encodings and older nodes can still read newer records as
// long as only fields were added.
package types

// RecordVersion is the current encoding version written into every record.
// Decoders accept records up to this version and treat anything higher as
// undecodable.
const RecordVersion = 1
