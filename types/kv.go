package types

import (
	"sort"

	"github.com/mlnlabs/mln/identity"
)

// KVEntry is one entry of the permissioned key/value store. The owner is
// whoever first claimed the key; Writers are additional addresses granted
// write access by the owner.
type KVEntry struct {
	Version uint8              `cbor:"1,keyasint"`
	Value   []byte             `cbor:"2,keyasint"`
	Owner   identity.Address   `cbor:"3,keyasint"`
	Writers []identity.Address `cbor:"4,keyasint,omitempty"`
}

// NewKVEntry builds an entry owned by owner with the writer set sorted and
// deduplicated for canonical encoding.
func NewKVEntry(value []byte, owner identity.Address, writers []identity.Address) *KVEntry {
	sorted := append([]identity.Address(nil), writers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	deduped := sorted[:0]
	for i, writer := range sorted {
		if i == 0 || writer != sorted[i-1] {
			deduped = append(deduped, writer)
		}
	}
	if len(deduped) == 0 {
		deduped = nil
	}
	return &KVEntry{
		Version: RecordVersion,
		Value:   value,
		Owner:   owner,
		Writers: deduped,
	}
}

// CanWrite reports whether addr may overwrite or delete this entry.
func (e *KVEntry) CanWrite(addr identity.Address) bool {
	if addr == e.Owner {
		return true
	}
	for _, writer := range e.Writers {
		if writer == addr {
			return true
		}
	}
	return false
}
