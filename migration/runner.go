package migration

import (
	"fmt"

	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/logx"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/store"
	"github.com/mlnlabs/mln/types"
)

// Runner applies due one-shot patches at block start. The applied set lives
// inside the authenticated state, so whether a patch ran is part of the root
// digest itself.
type Runner struct {
	registry *Registry
}

func NewRunner(registry *Registry) *Runner {
	return &Runner{registry: registry}
}

// BeginBlock runs every scheduled patch whose activation height is at or
// below height and that has no applied record yet, in (height, name) order.
// Replaying an already applied patch is a no-op; an applied record that
// disagrees with the schedule means this node runs a different history and
// must stop.
func (r *Runner) BeginBlock(view merkle.StateView, height uint64) error {
	if r == nil || r.registry == nil {
		return nil
	}
	migrations := store.NewMigrationStore(view)
	for _, due := range r.registry.duePatches(height) {
		applied, err := migrations.GetApplied(due.Name)
		if err != nil {
			return err
		}
		if applied != nil {
			if applied.Height != due.Height {
				return mlnerrors.NewIntegrityError("migration."+due.Name, nil,
					fmt.Errorf("applied at height %d but scheduled at %d", applied.Height, due.Height))
			}
			continue
		}

		logx.Info("MIGRATION", fmt.Sprintf("applying %s (scheduled %d) at height %d", due.Name, due.Height, height))
		if err := known[due.Name](view, due.Height); err != nil {
			return mlnerrors.NewIntegrityError("migration."+due.Name, nil, err)
		}
		if err := migrations.PutApplied(types.NewMigrationRecord(due.Name, due.Height)); err != nil {
			return err
		}
	}
	return nil
}
