// Package abci is the consensus-facing surface of the node. The replication
// engine drives it through the block lifecycle: begin a block, deliver the
// ordered commands, close the block, commit. The adapter owns nothing but
// sequencing; state transitions live in ledger, persistence in merkle.
package abci

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/mlnlabs/mln/config"
	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/events"
	"github.com/mlnlabs/mln/ledger"
	"github.com/mlnlabs/mln/logx"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/migration"
	"github.com/mlnlabs/mln/stringutil"
	"github.com/mlnlabs/mln/transaction"
)

// phase tracks where the adapter sits in the block lifecycle. Every callback
// checks the phase first; an out-of-order call means the driver is broken and
// the node must stop rather than commit a root built from a half-driven block.
type phase int

const (
	phaseIdle phase = iota
	phaseBlockOpen
	phaseCommandApplied
	phaseBlockClosing
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseBlockOpen:
		return "block_open"
	case phaseCommandApplied:
		return "command_applied"
	case phaseBlockClosing:
		return "block_closing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// App applies consensus-ordered blocks to the authenticated state. One App
// serves one store; all lifecycle callbacks must come from a single driver
// goroutine, while Info, Status and Query are safe to call concurrently.
type App struct {
	mu    sync.Mutex
	state *merkle.Store
	exec  *ledger.Executor
	run   *migration.Runner

	router *events.Router

	phase     phase
	height    uint64
	blockTime time.Time
	commands  int

	genesisApplied bool
}

// NewApp wires the adapter. registry and caps may be nil, which disables
// height gating and enables every command family; router may be nil to drop
// events.
func NewApp(state *merkle.Store, registry *migration.Registry, caps *config.Capabilities, router *events.Router) *App {
	return &App{
		state:  state,
		exec:   ledger.NewExecutor(registry, caps, router),
		run:    migration.NewRunner(registry),
		router: router,
	}
}

// Info reports the last committed height and root digest. Consensus calls it
// on reconnect to learn where to resume delivery.
func (a *App) Info() (uint64, merkle.Hash) {
	return a.state.Height(), a.state.CommittedRoot()
}

// Status describes the adapter for operator surfaces.
type Status struct {
	Height        uint64
	Root          merkle.Hash
	Phase         string
	LastBlockTime time.Time
	StateSize     uint64
}

// Status returns a point-in-time snapshot of the adapter.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		Height:        a.state.Height(),
		Root:          a.state.CommittedRoot(),
		Phase:         a.phase.String(),
		LastBlockTime: a.blockTime,
		StateSize:     a.state.Size(),
	}
}

// InitChain seeds height-zero state from the genesis document and returns the
// digest consensus should expect after the first commit. It only runs on a
// chain that has never committed; after a restart mid-genesis the writes are
// gone and consensus calls it again.
func (a *App) InitChain(genesis *config.Genesis) (merkle.Hash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != phaseIdle {
		return merkle.Hash{}, mlnerrors.NewSequenceError(a.phase.String(), "init_chain")
	}
	if a.state.Height() != 0 || a.genesisApplied {
		return merkle.Hash{}, mlnerrors.NewSequenceError(
			fmt.Sprintf("idle at height %d", a.state.Height()), "init_chain")
	}

	view := ledger.NewView(a.state)
	if err := ledger.ApplyGenesis(view, genesis); err != nil {
		return merkle.Hash{}, fmt.Errorf("init chain: %w", err)
	}
	if err := view.Flush(); err != nil {
		return merkle.Hash{}, fmt.Errorf("init chain: %w", err)
	}
	a.genesisApplied = true

	root := a.state.WorkingRoot()
	logx.Info("CONSENSUS", fmt.Sprintf("Chain %s initialized, genesis root %s", genesis.ChainID, hex.EncodeToString(root[:])))
	return root, nil
}

// BeginBlock opens block execution for height, which must directly follow the
// last committed height. Due migrations run here, before any command of the
// block.
func (a *App) BeginBlock(height uint64, blockTime time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != phaseIdle {
		return mlnerrors.NewSequenceError(a.phase.String(), fmt.Sprintf("begin_block(%d)", height))
	}
	committed := a.state.Height()
	if height != committed+1 {
		return mlnerrors.NewSequenceError(
			fmt.Sprintf("idle at height %d", committed), fmt.Sprintf("begin_block(%d)", height))
	}

	if err := a.run.BeginBlock(a.state, height); err != nil {
		return err
	}

	a.phase = phaseBlockOpen
	a.height = height
	a.blockTime = blockTime
	a.commands = 0
	return nil
}

// DeliverTx applies the next command of the open block. Undecodable bytes and
// command-local failures come back inside the result; an error return is
// fatal and the node must halt without committing.
func (a *App) DeliverTx(data []byte) (*ledger.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != phaseBlockOpen && a.phase != phaseCommandApplied {
		return nil, mlnerrors.NewSequenceError(a.phase.String(), "deliver_tx")
	}

	tx, err := transaction.DecodeEnvelope(data)
	if err != nil {
		// Garbage on the wire is the submitter's problem, not state
		// corruption. The block slot is still consumed.
		hash := sha256.Sum256(data)
		a.phase = phaseCommandApplied
		a.commands++
		logx.Warn("CONSENSUS", fmt.Sprintf("Rejected undecodable command %s: %v", stringutil.ShortenLog(hex.EncodeToString(hash[:])), err))
		return &ledger.Result{
			TxHash: hex.EncodeToString(hash[:]),
			Code:   mlnerrors.ErrCodeInvalidCommand,
			Log:    mlnerrors.ErrMsgInvalidCommand,
		}, nil
	}

	result, err := a.exec.Apply(a.state, a.height, tx)
	if err != nil {
		return nil, err
	}
	a.phase = phaseCommandApplied
	a.commands++
	return result, nil
}

// EndBlock closes the delivery window. Empty blocks are legal.
func (a *App) EndBlock() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != phaseBlockOpen && a.phase != phaseCommandApplied {
		return mlnerrors.NewSequenceError(a.phase.String(), "end_block")
	}
	a.phase = phaseBlockClosing
	return nil
}

// Commit persists the block in one batch and returns the new root digest,
// the fingerprint consensus attests to for this height. After a failed
// commit the previous root remains the committed one.
func (a *App) Commit() (merkle.Hash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != phaseBlockClosing {
		return merkle.Hash{}, mlnerrors.NewSequenceError(a.phase.String(), "commit")
	}

	root, err := a.state.Commit(a.height)
	if err != nil {
		return merkle.Hash{}, fmt.Errorf("commit height %d: %w", a.height, err)
	}

	logx.Info("CONSENSUS", fmt.Sprintf("Committed block %d, %d commands, root %s",
		a.height, a.commands, hex.EncodeToString(root[:])))
	a.router.PublishBlockCommitted(a.height, root, a.commands)
	a.phase = phaseIdle
	return root, nil
}
