package operations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/hooks"
	"github.com/strata-db/strata/relationships"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/transaction"
	"github.com/strata-db/strata/validation"
)

// Post creates a record from the document's primary resource. A missing id is
// generated; a client-supplied id is honored and may conflict.
func (e *Engine) Post(ctx context.Context, resourceType string, doc *document.Document, params Params) (*document.Document, error) {
	res, err := e.resource(resourceType)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := e.post(ctx, res, doc, params)
	e.observe(res.Name, "post", start, err)
	return out, err
}

func (e *Engine) post(ctx context.Context, res *schema.ResourceType, doc *document.Document, params Params) (*document.Document, error) {
	obj, err := doc.ValidateWrite(res.Name)
	if err != nil {
		return nil, err
	}

	state := &hooks.State{Verb: hooks.VerbPost, Resource: res, ID: obj.ID, Attributes: obj.Attributes}
	hctx := hooks.NewContext(ctx, nil)

	if err := e.pipeline.Run(hctx, hooks.BeforeProcessing, state); err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(hctx, hooks.BeforeSchemaValidate, state); err != nil {
		return nil, err
	}
	attrs, err := e.validator.Validate(res, state.Attributes, validation.Full)
	if err != nil {
		return nil, err
	}
	state.Attributes = attrs
	if err := e.pipeline.Run(hctx, hooks.AfterSchemaValidate, state); err != nil {
		return nil, err
	}

	columns, pivotOps, err := relationships.Process(res, obj.Relationships, relationships.Merge)
	if err != nil {
		return nil, err
	}
	if state.ID == "" {
		state.ID = uuid.NewString()
	}
	state.Attributes = mergeColumns(state.Attributes, columns)

	if err := e.pipeline.Run(hctx, hooks.CheckPermissions, state); err != nil {
		return nil, err
	}

	tx, owns, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	written, opErr := e.writeInTx(ctx, tx, state, pivotOps, func() (*document.Document, error) {
		record := &document.ResourceObject{Type: res.Name, ID: state.ID, Attributes: state.Attributes}
		return e.adapter.Insert(ctx, tx, res, record)
	})
	if err := e.release(tx, owns, opErr); err != nil {
		return nil, err
	}
	return e.respond(ctx, tx, owns, res, state, written, pivotOps, params)
}

// Put fully replaces the record at id, creating it when absent. Attributes
// and relationships omitted from the document are cleared.
func (e *Engine) Put(ctx context.Context, resourceType, id string, doc *document.Document, params Params) (*document.Document, error) {
	res, err := e.resource(resourceType)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := e.put(ctx, res, id, doc, params)
	e.observe(res.Name, "put", start, err)
	return out, err
}

func (e *Engine) put(ctx context.Context, res *schema.ResourceType, id string, doc *document.Document, params Params) (*document.Document, error) {
	obj, err := doc.ValidateWrite(res.Name)
	if err != nil {
		return nil, err
	}
	id, err = reconcileID(id, obj.ID)
	if err != nil {
		return nil, err
	}

	state := &hooks.State{Verb: hooks.VerbPut, Resource: res, ID: id, Attributes: obj.Attributes}
	hctx := hooks.NewContext(ctx, nil)

	if err := e.pipeline.Run(hctx, hooks.BeforeProcessing, state); err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(hctx, hooks.BeforeSchemaValidate, state); err != nil {
		return nil, err
	}
	attrs, err := e.validator.Validate(res, state.Attributes, validation.Full)
	if err != nil {
		return nil, err
	}
	state.Attributes = attrs
	if err := e.pipeline.Run(hctx, hooks.AfterSchemaValidate, state); err != nil {
		return nil, err
	}

	columns, pivotOps, err := relationships.Process(res, obj.Relationships, relationships.Replace)
	if err != nil {
		return nil, err
	}
	state.Attributes = mergeColumns(state.Attributes, columns)

	if err := e.pipeline.Run(hctx, hooks.CheckPermissions, state); err != nil {
		return nil, err
	}

	tx, owns, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	written, opErr := e.writeInTx(ctx, tx, state, pivotOps, func() (*document.Document, error) {
		isCreate, err := e.putTargetMissing(ctx, tx, res, state.ID)
		if err != nil {
			return nil, err
		}
		record := &document.ResourceObject{Type: res.Name, ID: state.ID, Attributes: state.Attributes}
		return e.adapter.Replace(ctx, tx, res, state.ID, record, isCreate)
	})
	if err := e.release(tx, owns, opErr); err != nil {
		return nil, err
	}
	return e.respond(ctx, tx, owns, res, state, written, pivotOps, params)
}

// putTargetMissing decides create-versus-replace inside the transaction. When
// the resource opts into loading the record the full row is fetched, which
// lets a row-level security policy in the database surface here.
func (e *Engine) putTargetMissing(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string) (bool, error) {
	if res.LoadRecordOnPut {
		existing, err := e.adapter.Get(ctx, tx, res, id, storage.QueryParams{})
		if err != nil {
			return false, err
		}
		return existing == nil, nil
	}
	exists, err := e.adapter.Exists(ctx, tx, res, id)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Patch partially updates the record at id. Only the attributes and
// relationships present in the document are touched.
func (e *Engine) Patch(ctx context.Context, resourceType, id string, doc *document.Document, params Params) (*document.Document, error) {
	res, err := e.resource(resourceType)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := e.patch(ctx, res, id, doc, params)
	e.observe(res.Name, "patch", start, err)
	return out, err
}

func (e *Engine) patch(ctx context.Context, res *schema.ResourceType, id string, doc *document.Document, params Params) (*document.Document, error) {
	obj, err := doc.ValidateWrite(res.Name)
	if err != nil {
		return nil, err
	}
	id, err = reconcileID(id, obj.ID)
	if err != nil {
		return nil, err
	}

	state := &hooks.State{Verb: hooks.VerbPatch, Resource: res, ID: id, Attributes: obj.Attributes}
	hctx := hooks.NewContext(ctx, nil)

	if err := e.pipeline.Run(hctx, hooks.BeforeProcessing, state); err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(hctx, hooks.BeforeSchemaValidate, state); err != nil {
		return nil, err
	}
	attrs, err := e.validator.Validate(res, state.Attributes, validation.Partial)
	if err != nil {
		return nil, err
	}
	state.Attributes = attrs
	if err := e.pipeline.Run(hctx, hooks.AfterSchemaValidate, state); err != nil {
		return nil, err
	}

	columns, pivotOps, err := relationships.Process(res, obj.Relationships, relationships.Merge)
	if err != nil {
		return nil, err
	}
	state.Attributes = mergeColumns(state.Attributes, columns)

	if err := e.pipeline.Run(hctx, hooks.CheckPermissions, state); err != nil {
		return nil, err
	}

	tx, owns, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	written, opErr := e.writeInTx(ctx, tx, state, pivotOps, func() (*document.Document, error) {
		record := &document.ResourceObject{Type: res.Name, ID: state.ID, Attributes: state.Attributes}
		return e.adapter.Merge(ctx, tx, res, state.ID, record)
	})
	if err := e.release(tx, owns, opErr); err != nil {
		return nil, err
	}
	return e.respond(ctx, tx, owns, res, state, written, pivotOps, params)
}

// writeInTx runs the data-call stages around the main write: beforeDataCall,
// the write itself, the queued pivot replacements, then afterDataCall. Every
// step observes the same uncommitted transaction.
func (e *Engine) writeInTx(ctx context.Context, tx *transaction.Transaction, state *hooks.State, pivotOps []relationships.PivotOp, write func() (*document.Document, error)) (*document.Document, error) {
	txctx := hooks.NewContext(ctx, tx)

	if err := e.pipeline.Run(txctx, hooks.BeforeDataCall, state); err != nil {
		return nil, err
	}
	written, err := write()
	if err != nil {
		return nil, err
	}
	if err := e.applyPivots(ctx, tx, state.ID, pivotOps); err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(txctx, hooks.AfterDataCall, state); err != nil {
		return nil, err
	}
	return written, nil
}

// respond builds the write response: the optional full re-read, many-to-many
// linkage, foreign-key projection, enrichment, and the finish stage. An owned
// transaction is already settled here, so re-reads run on the pool; a
// caller-supplied transaction stays in effect so the response reflects its
// uncommitted writes.
func (e *Engine) respond(ctx context.Context, tx *transaction.Transaction, owns bool, res *schema.ResourceType, state *hooks.State, written *document.Document, pivotOps []relationships.PivotOp, params Params) (*document.Document, error) {
	readTx := tx
	if owns {
		readTx = nil
	}

	out := written
	if shouldReturnFull(res, state.Verb, params.ReturnFull) {
		reread, err := e.adapter.Get(ctx, readTx, res, state.ID, storage.QueryParams{Include: params.Include})
		if err != nil {
			return nil, err
		}
		if reread != nil {
			out = reread
		}
	}
	if out == nil {
		return nil, nil
	}

	if primary := out.Data.One; primary != nil {
		setPivotLinkage(primary, pivotOps)
		state.Attributes = primary.Attributes
	}
	if err := e.shape(ctx, readTx, state.Verb, out, params.Fields); err != nil {
		return nil, err
	}

	hctx := hooks.NewContext(ctx, readTx)
	if err := e.pipeline.Run(hctx, hooks.Finish, state); err != nil {
		return nil, err
	}
	return out, nil
}

// reconcileID merges the path id with the document id. Both may be given, but
// they must agree.
func reconcileID(pathID, bodyID string) (string, error) {
	switch {
	case pathID == "" && bodyID == "":
		return "", validation.Single("id", "required", "an id is required")
	case pathID == "":
		return bodyID, nil
	case bodyID == "" || bodyID == pathID:
		return pathID, nil
	}
	return "", validation.Single("id", "mismatch",
		fmt.Sprintf("document id %s does not match target id %s", bodyID, pathID))
}
