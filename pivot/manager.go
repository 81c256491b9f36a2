// Package pivot maintains join-table rows for many-to-many relationships.
// A replace call is all-or-nothing: it runs entirely inside the transaction
// handed to it, so a failure mid-way never leaves a partial pivot state.
package pivot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/relationships"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/transaction"
	"github.com/strata-db/strata/validation"
)

// Manager applies pivot operations produced by the relationship processor.
type Manager struct {
	registry *schema.Registry
	adapter  storage.Adapter
	store    storage.PivotStore
	log      *zap.Logger
}

// NewManager creates a pivot manager. The adapter validates target existence;
// the store performs the join-table row I/O.
func NewManager(registry *schema.Registry, adapter storage.Adapter, store storage.PivotStore, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{registry: registry, adapter: adapter, store: store, log: log}
}

// Replace swaps the full target set of one many-to-many relationship:
// existing join-table rows for the owner are deleted, then one row per target
// is inserted. The delete runs even when the target list is empty, which is
// how the relationship gets cleared. Duplicate (type,id) pairs in the input
// raise a conflict rather than being silently deduplicated.
func (m *Manager) Replace(ctx context.Context, tx *transaction.Transaction, ownerID string, op relationships.PivotOp) error {
	def := op.Definition
	if def.Kind != schema.ManyToMany {
		return fmt.Errorf("relationship %s is not many-to-many", op.Name)
	}

	if err := m.checkTargets(ctx, tx, op); err != nil {
		return err
	}

	m.log.Debug("replacing pivot rows",
		zap.String("join_table", def.JoinTable),
		zap.String("owner_id", ownerID),
		zap.Int("targets", len(op.Targets)))

	if err := m.store.DeletePivotRows(ctx, tx, def.JoinTable, def.ThisKey, ownerID); err != nil {
		return fmt.Errorf("failed to clear pivot rows for %s: %w", op.Name, err)
	}

	for _, target := range op.Targets {
		row := map[string]any{
			def.ThisKey:  ownerID,
			def.OtherKey: target.ID,
		}
		if err := m.store.InsertPivotRow(ctx, tx, def.JoinTable, row); err != nil {
			return fmt.Errorf("failed to insert pivot row for %s: %w",
				op.Name, storage.ConvertError(err, target.Type, target.ID))
		}
	}
	return nil
}

// checkTargets validates the target identifier list: types must match the
// declared target resource, pairs must be unique within the write, and every
// referenced resource must exist unless the relationship opts out.
func (m *Manager) checkTargets(ctx context.Context, tx *transaction.Transaction, op relationships.PivotOp) error {
	def := op.Definition
	seen := make(map[document.ResourceIdentifier]bool, len(op.Targets))

	for _, target := range op.Targets {
		if target.Type != def.Target {
			return validation.Single(op.Name, "type",
				fmt.Sprintf("must reference %s resources", def.Target))
		}
		if seen[target] {
			return storage.NewConflict(target.Type, target.ID,
				fmt.Sprintf("duplicate entry in %s", op.Name))
		}
		seen[target] = true

		if def.SkipVerify {
			continue
		}
		targetRes, ok := m.registry.Get(target.Type)
		if !ok {
			return storage.NewNotFound(target.Type, target.ID)
		}
		exists, err := m.adapter.Exists(ctx, tx, targetRes, target.ID)
		if err != nil {
			return fmt.Errorf("failed to verify %s: %w", target, err)
		}
		if !exists {
			return storage.NewNotFound(target.Type, target.ID)
		}
	}
	return nil
}
