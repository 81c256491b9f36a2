// Package operations implements the verb state machines: query, get, post,
// put, patch, and delete. Each operation sanitizes its parameters, validates
// attributes, resolves relationships, runs the hook pipeline at the canonical
// stages, performs the storage calls inside a transaction it owns or joins,
// and shapes the returned document.
package operations

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/hooks"
	"github.com/strata-db/strata/metrics"
	"github.com/strata-db/strata/pivot"
	"github.com/strata-db/strata/relationships"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/transaction"
	"github.com/strata-db/strata/validation"
)

// Engine executes operations against registered resource types. It holds no
// cross-request mutable state beyond the read-only registry; every operation
// is request-scoped.
type Engine struct {
	registry   *schema.Registry
	adapter    storage.Adapter
	pivotStore storage.PivotStore
	txm        *transaction.Manager
	validator  *validation.Engine
	pipeline   *hooks.Pipeline
	pivots     *pivot.Manager
	log        *zap.Logger
	collector  *metrics.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithPipeline supplies a pre-built hook pipeline.
func WithPipeline(p *hooks.Pipeline) Option {
	return func(e *Engine) { e.pipeline = p }
}

// WithPivotStore overrides the join-table store. By default the adapter is
// used when it implements storage.PivotStore.
func WithPivotStore(ps storage.PivotStore) Option {
	return func(e *Engine) { e.pivotStore = ps }
}

// NewEngine creates an engine over a frozen registry, a storage adapter, and
// a transaction manager.
func NewEngine(registry *schema.Registry, adapter storage.Adapter, txm *transaction.Manager, opts ...Option) *Engine {
	e := &Engine{
		registry:  registry,
		adapter:   adapter,
		txm:       txm,
		validator: validation.NewEngine(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.pipeline == nil {
		e.pipeline = hooks.NewPipeline()
	}
	if e.pivotStore == nil {
		if ps, ok := adapter.(storage.PivotStore); ok {
			e.pivotStore = ps
		}
	}
	e.pivots = pivot.NewManager(registry, adapter, e.pivotStore, e.log)
	return e
}

// Hooks returns the pipeline for hook registration at startup.
func (e *Engine) Hooks() *hooks.Pipeline {
	return e.pipeline
}

// Params carries the caller-supplied request parameters.
type Params struct {
	// Filter is the flat key/value filter map, resolved against the search
	// schema. Values may carry an operator prefix (>, <, >=, <=, ~) or a
	// comma-separated list for oneOf matching.
	Filter map[string]string

	// Sort is the ordered list of sort fields, "-" prefix for descending.
	Sort []string

	PageOffset int
	PageLimit  int

	// Include names relationships to resolve into the included array.
	Include []string

	// Fields requests sparse fieldsets per resource type.
	Fields map[string][]string

	// ReturnFull overrides the registered return-full-record policy when
	// the resource allows remote overrides.
	ReturnFull *bool
}

// resource looks up the resource type an operation was invoked under.
func (e *Engine) resource(name string) (*schema.ResourceType, error) {
	res, ok := e.registry.Get(name)
	if !ok {
		return nil, storage.NewNotFound(name, "")
	}
	return res, nil
}

// observe records the operation outcome.
func (e *Engine) observe(resource, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.collector.Observe(resource, operation, status, time.Since(start))
	e.log.Debug("operation finished",
		zap.String("resource", resource),
		zap.String("operation", operation),
		zap.String("status", status),
		zap.Duration("elapsed", time.Since(start)))
}

// acquire opens or joins the operation's transaction.
func (e *Engine) acquire(ctx context.Context) (*transaction.Transaction, bool, error) {
	return e.txm.Acquire(ctx, nil)
}

// release settles an owned transaction: rollback on error, commit otherwise.
// A transaction supplied by the caller is never touched.
func (e *Engine) release(tx *transaction.Transaction, owns bool, opErr error) error {
	if !owns {
		return opErr
	}
	if opErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return opErr
	}
	return tx.Commit()
}

// applyPivots runs the queued many-to-many replacements inside the write
// transaction, with the owner id of the record just written.
func (e *Engine) applyPivots(ctx context.Context, tx *transaction.Transaction, ownerID string, ops []relationships.PivotOp) error {
	if len(ops) == 0 {
		return nil
	}
	if e.pivotStore == nil {
		return fmt.Errorf("storage adapter does not support many-to-many relationships")
	}
	for _, op := range ops {
		if err := e.pivots.Replace(ctx, tx, ownerID, op); err != nil {
			return err
		}
	}
	return nil
}

// shouldReturnFull decides whether the verb re-reads the record after the
// write, honoring a remote override only when the resource allows it.
func shouldReturnFull(res *schema.ResourceType, verb hooks.Verb, override *bool) bool {
	policy := res.ReturnFull
	full := false
	switch verb {
	case hooks.VerbPost:
		full = policy.Post
	case hooks.VerbPut:
		full = policy.Put
	case hooks.VerbPatch:
		full = policy.Patch
	}
	if override != nil && policy.AllowRemoteOverride {
		full = *override
	}
	return full
}

// mergeColumns folds the resolved foreign-key updates into the validated
// attribute bag before the main write.
func mergeColumns(attrs, columns map[string]any) map[string]any {
	merged := make(map[string]any, len(attrs)+len(columns))
	for k, v := range attrs {
		merged[k] = v
	}
	for k, v := range columns {
		merged[k] = v
	}
	return merged
}

// setPivotLinkage reflects the just-written many-to-many sets on the returned
// resource, so write responses carry the linkage without a re-read.
func setPivotLinkage(obj *document.ResourceObject, ops []relationships.PivotOp) {
	if len(ops) == 0 {
		return
	}
	if obj.Relationships == nil {
		obj.Relationships = make(map[string]*document.Relationship)
	}
	for _, op := range ops {
		obj.Relationships[op.Name] = document.ToMany(op.Targets...)
	}
}
