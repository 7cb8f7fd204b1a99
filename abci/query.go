package abci

import (
	"encoding/binary"
	"fmt"

	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/store"
)

// Query paths.
const (
	// QueryPathStore reads one raw state key; with Prove set the response
	// carries an inclusion or exclusion proof against the committed root.
	QueryPathStore = "/store"
	// QueryPathNonce reads an account's highest accepted nonce; Data is the
	// raw 32-byte address.
	QueryPathNonce = "/ledger/nonce"
)

// QueryRequest addresses committed state. Height zero means the latest
// committed version; proofs are only generated against the latest.
type QueryRequest struct {
	Path   string
	Data   []byte
	Height uint64
	Prove  bool
}

// QueryResponse carries the lookup outcome. Code is empty on success; a
// missing key is a success with Found false, so exclusion stays provable.
// Root is set with Proof and is the digest the proof verifies against.
type QueryResponse struct {
	Code   mlnerrors.LedgerErrorCode
	Log    string
	Key    []byte
	Value  []byte
	Found  bool
	Height uint64
	Proof  []byte
	Root   merkle.Hash
}

func queryFailure(code mlnerrors.LedgerErrorCode, format string, args ...interface{}) *QueryResponse {
	return &QueryResponse{Code: code, Log: fmt.Sprintf(format, args...)}
}

// Query serves a read against committed state. It never touches the working
// version, so it is safe concurrently with block execution; an in-progress
// block is invisible until its commit. The error return is reserved for
// fatal conditions.
func (a *App) Query(req QueryRequest) (*QueryResponse, error) {
	latest := a.state.Height()
	height := req.Height
	if height == 0 {
		height = latest
	}

	if req.Prove {
		if req.Path != QueryPathStore {
			return queryFailure(mlnerrors.ErrCodeInvalidCommand, "proofs are only served for %s", QueryPathStore), nil
		}
		if height != latest {
			return queryFailure(mlnerrors.ErrCodeInvalidCommand, "proofs are only served for the latest committed height"), nil
		}
		value, found, proof, root, err := a.state.GetProven(req.Data)
		if err != nil {
			return nil, err
		}
		encoded, err := proof.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode proof: %w", err)
		}
		return &QueryResponse{
			Key:    req.Data,
			Value:  value,
			Found:  found,
			Height: height,
			Proof:  encoded,
			Root:   root,
		}, nil
	}

	var view merkle.StateView
	if height == latest {
		view = a.state.Snapshot()
	} else {
		historical, err := a.state.SnapshotAt(height)
		if err != nil {
			if mlnerrors.IsFatal(err) {
				return nil, err
			}
			return queryFailure(mlnerrors.ErrCodeNotFound, "no committed version at height %d", height), nil
		}
		view = historical
	}

	switch req.Path {
	case QueryPathStore:
		value, found, err := view.Get(req.Data)
		if err != nil {
			return nil, err
		}
		return &QueryResponse{
			Key:    req.Data,
			Value:  value,
			Found:  found,
			Height: height,
		}, nil

	case QueryPathNonce:
		addr, err := identity.FromBytes(req.Data)
		if err != nil {
			return queryFailure(mlnerrors.ErrCodeInvalidAddress, "%v", err), nil
		}
		nonce, err := store.NewAccountStore(view).GetNonce(addr)
		if err != nil {
			return nil, err
		}
		var value [8]byte
		binary.BigEndian.PutUint64(value[:], nonce)
		return &QueryResponse{
			Key:    req.Data,
			Value:  value[:],
			Found:  true,
			Height: height,
		}, nil

	default:
		return queryFailure(mlnerrors.ErrCodeInvalidCommand, "unknown query path %q", req.Path), nil
	}
}
