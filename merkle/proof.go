package merkle

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/mlnlabs/mln/cborx"
)

// ProofStep carries everything needed to recompute one node digest on the
// search path: the node's key, its value digest and both child digests.
type ProofStep struct {
	Key       []byte
	ValueHash Hash
	LeftHash  Hash
	RightHash Hash
}

// Proof is the search path for a key, root first. Found proofs end at the
// node holding the key; absence proofs end where the search ran into an empty
// subtree. Both verify offline against a root digest.
type Proof struct {
	Steps []ProofStep
	Found bool
}

// Prove builds a proof for key against this tree version.
func (t *Tree) Prove(key []byte) (*Proof, error) {
	var steps []ProofStep
	n := t.root
	for n != nil {
		steps = append(steps, ProofStep{
			Key:       append([]byte(nil), n.key...),
			ValueHash: sha256.Sum256(n.value),
			LeftHash:  n.leftHash,
			RightHash: n.rightHash,
		})
		cmp := bytes.Compare(key, n.key)
		if cmp == 0 {
			return &Proof{Steps: steps, Found: true}, nil
		}
		var err error
		if cmp < 0 {
			n, err = t.leftOf(n)
		} else {
			n, err = t.rightOf(n)
		}
		if err != nil {
			return nil, err
		}
	}
	return &Proof{Steps: steps, Found: false}, nil
}

// VerifyInclusion checks that proof binds key=value to root. It needs no
// access to the store.
func VerifyInclusion(root Hash, key, value []byte, proof *Proof) error {
	if proof == nil || !proof.Found {
		return fmt.Errorf("not an inclusion proof")
	}
	if len(proof.Steps) == 0 {
		return fmt.Errorf("inclusion proof has no steps")
	}
	last := proof.Steps[len(proof.Steps)-1]
	if !bytes.Equal(last.Key, key) {
		return fmt.Errorf("proof terminates at a different key")
	}
	valueHash := sha256.Sum256(value)
	if valueHash != last.ValueHash {
		return fmt.Errorf("proof value digest mismatch")
	}
	running := foldNodeHash(last.Key, valueHash, last.LeftHash, last.RightHash)
	return chainToRoot(root, key, proof.Steps[:len(proof.Steps)-1], running)
}

// VerifyExclusion checks that proof demonstrates key is absent from the tree
// committed to by root.
func VerifyExclusion(root Hash, key []byte, proof *Proof) error {
	if proof == nil || proof.Found {
		return fmt.Errorf("not an absence proof")
	}
	if len(proof.Steps) == 0 {
		if root == zeroHash {
			return nil
		}
		return fmt.Errorf("empty proof against non-empty root")
	}
	last := proof.Steps[len(proof.Steps)-1]
	cmp := bytes.Compare(key, last.Key)
	if cmp == 0 {
		return fmt.Errorf("absence proof terminates at the key itself")
	}
	// The search must have fallen off an empty child.
	if cmp < 0 {
		if last.LeftHash != zeroHash {
			return fmt.Errorf("search path does not end at an empty subtree")
		}
	} else {
		if last.RightHash != zeroHash {
			return fmt.Errorf("search path does not end at an empty subtree")
		}
	}
	running := foldNodeHash(last.Key, last.ValueHash, last.LeftHash, last.RightHash)
	return chainToRoot(root, key, proof.Steps[:len(proof.Steps)-1], running)
}

// chainToRoot folds running up through the remaining steps, checking at each
// parent that the step actually links to the child digest below it.
func chainToRoot(root Hash, key []byte, steps []ProofStep, running Hash) error {
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		cmp := bytes.Compare(key, step.Key)
		if cmp == 0 {
			return fmt.Errorf("interior proof step repeats the key")
		}
		if cmp < 0 {
			if step.LeftHash != running {
				return fmt.Errorf("proof step %d does not link to its child", i)
			}
		} else {
			if step.RightHash != running {
				return fmt.Errorf("proof step %d does not link to its child", i)
			}
		}
		running = foldNodeHash(step.Key, step.ValueHash, step.LeftHash, step.RightHash)
	}
	if running != root {
		return fmt.Errorf("proof does not bind to root %x", root[:8])
	}
	return nil
}

type proofStepWire struct {
	Key       []byte `cbor:"1,keyasint"`
	ValueHash []byte `cbor:"2,keyasint"`
	Left      []byte `cbor:"3,keyasint,omitempty"`
	Right     []byte `cbor:"4,keyasint,omitempty"`
}

type proofWire struct {
	Found bool            `cbor:"1,keyasint"`
	Steps []proofStepWire `cbor:"2,keyasint"`
}

// MarshalBinary encodes the proof for transport.
func (p *Proof) MarshalBinary() ([]byte, error) {
	wire := proofWire{Found: p.Found, Steps: make([]proofStepWire, 0, len(p.Steps))}
	for _, step := range p.Steps {
		sw := proofStepWire{Key: step.Key, ValueHash: step.ValueHash[:]}
		if step.LeftHash != zeroHash {
			sw.Left = step.LeftHash[:]
		}
		if step.RightHash != zeroHash {
			sw.Right = step.RightHash[:]
		}
		wire.Steps = append(wire.Steps, sw)
	}
	return cborx.Marshal(wire)
}

// UnmarshalBinary decodes a proof produced by MarshalBinary.
func (p *Proof) UnmarshalBinary(data []byte) error {
	var wire proofWire
	if err := cborx.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode proof: %w", err)
	}
	steps := make([]ProofStep, 0, len(wire.Steps))
	for i, sw := range wire.Steps {
		var step ProofStep
		step.Key = sw.Key
		if len(sw.ValueHash) != HashSize {
			return fmt.Errorf("proof step %d: value digest is %d bytes", i, len(sw.ValueHash))
		}
		copy(step.ValueHash[:], sw.ValueHash)
		if sw.Left != nil {
			if len(sw.Left) != HashSize {
				return fmt.Errorf("proof step %d: left digest is %d bytes", i, len(sw.Left))
			}
			copy(step.LeftHash[:], sw.Left)
		}
		if sw.Right != nil {
			if len(sw.Right) != HashSize {
				return fmt.Errorf("proof step %d: right digest is %d bytes", i, len(sw.Right))
			}
			copy(step.RightHash[:], sw.Right)
		}
		steps = append(steps, step)
	}
	p.Steps = steps
	p.Found = wire.Found
	return nil
}
