package types

import (
	"sort"

	"github.com/mlnlabs/mln/identity"
)

// MultisigAccount is an account controlled by a set of owners. Commands are
// proposed against it and execute once Threshold distinct owners approved.
type MultisigAccount struct {
	Version      uint8              `cbor:"1,keyasint"`
	Owners       []identity.Address `cbor:"2,keyasint"`
	Threshold    uint32             `cbor:"3,keyasint"`
	ExpiryBlocks uint64             `cbor:"4,keyasint"`
}

// NewMultisigAccount builds the record with owners sorted, deduplicated and
// ready for canonical encoding.
func NewMultisigAccount(owners []identity.Address, threshold uint32, expiryBlocks uint64) *MultisigAccount {
	sorted := append([]identity.Address(nil), owners...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	deduped := sorted[:0]
	for i, owner := range sorted {
		if i == 0 || owner != sorted[i-1] {
			deduped = append(deduped, owner)
		}
	}
	return &MultisigAccount{
		Version:      RecordVersion,
		Owners:       deduped,
		Threshold:    threshold,
		ExpiryBlocks: expiryBlocks,
	}
}

// IsOwner reports whether addr is in the owner set.
func (m *MultisigAccount) IsOwner(addr identity.Address) bool {
	for _, owner := range m.Owners {
		if owner == addr {
			return true
		}
	}
	return false
}

// PendingTransaction is a proposed command waiting for approvals. OpData is
// the encoded operation; it is decoded only at execution time. Approvals stay
// sorted so the record encodes identically on every replica.
type PendingTransaction struct {
	Version   uint8              `cbor:"1,keyasint"`
	Account   identity.Address   `cbor:"2,keyasint"`
	Proposer  identity.Address   `cbor:"3,keyasint"`
	OpData    []byte             `cbor:"4,keyasint"`
	ExpireAt  uint64             `cbor:"5,keyasint"`
	Approvals []identity.Address `cbor:"6,keyasint,omitempty"`
}

// NewPendingTransaction records a proposal. The proposer's approval is
// implicit and counted immediately.
func NewPendingTransaction(account, proposer identity.Address, opData []byte, expireAt uint64) *PendingTransaction {
	pending := &PendingTransaction{
		Version:  RecordVersion,
		Account:  account,
		Proposer: proposer,
		OpData:   opData,
		ExpireAt: expireAt,
	}
	pending.AddApproval(proposer)
	return pending
}

// AddApproval inserts addr into the sorted approval set. It returns false
// when addr already approved, which keeps approval idempotent.
func (p *PendingTransaction) AddApproval(addr identity.Address) bool {
	idx := sort.Search(len(p.Approvals), func(i int) bool {
		return !p.Approvals[i].Less(addr)
	})
	if idx < len(p.Approvals) && p.Approvals[idx] == addr {
		return false
	}
	p.Approvals = append(p.Approvals, identity.Address{})
	copy(p.Approvals[idx+1:], p.Approvals[idx:])
	p.Approvals[idx] = addr
	return true
}

// RemoveApproval withdraws addr's approval. Removing an absent approval
// returns false.
func (p *PendingTransaction) RemoveApproval(addr identity.Address) bool {
	idx := sort.Search(len(p.Approvals), func(i int) bool {
		return !p.Approvals[i].Less(addr)
	})
	if idx >= len(p.Approvals) || p.Approvals[idx] != addr {
		return false
	}
	p.Approvals = append(p.Approvals[:idx], p.Approvals[idx+1:]...)
	return true
}

// HasApproval reports whether addr already approved.
func (p *PendingTransaction) HasApproval(addr identity.Address) bool {
	idx := sort.Search(len(p.Approvals), func(i int) bool {
		return !p.Approvals[i].Less(addr)
	})
	return idx < len(p.Approvals) && p.Approvals[idx] == addr
}

// Expired reports whether the proposal can no longer execute at height.
func (p *PendingTransaction) Expired(height uint64) bool {
	return height > p.ExpireAt
}
