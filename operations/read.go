package operations

import (
	"context"
	"time"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/hooks"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/transaction"
)

// Get fetches one record by id. Reads run without a transaction unless the
// caller carries one in the context.
func (e *Engine) Get(ctx context.Context, resourceType, id string, params Params) (*document.Document, error) {
	res, err := e.resource(resourceType)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := e.get(ctx, res, id, params)
	e.observe(res.Name, "get", start, err)
	return out, err
}

func (e *Engine) get(ctx context.Context, res *schema.ResourceType, id string, params Params) (*document.Document, error) {
	tx, _ := transaction.FromContext(ctx)
	state := &hooks.State{Verb: hooks.VerbGet, Resource: res, ID: id}
	hctx := hooks.NewContext(ctx, tx)

	if err := e.pipeline.Run(hctx, hooks.BeforeProcessing, state); err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(hctx, hooks.CheckPermissions, state); err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(hctx, hooks.BeforeDataCall, state); err != nil {
		return nil, err
	}

	doc, err := e.adapter.Get(ctx, tx, res, id, storage.QueryParams{Include: params.Include})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, storage.NewNotFound(res.Name, id)
	}

	if err := e.pipeline.Run(hctx, hooks.AfterDataCall, state); err != nil {
		return nil, err
	}
	if err := e.shape(ctx, tx, hooks.VerbGet, doc, params.Fields); err != nil {
		return nil, err
	}
	if primary := doc.Data.One; primary != nil {
		state.Attributes = primary.Attributes
	}
	if err := e.pipeline.Run(hctx, hooks.Finish, state); err != nil {
		return nil, err
	}
	return doc, nil
}

// Query fetches a filtered, sorted, paginated collection.
func (e *Engine) Query(ctx context.Context, resourceType string, params Params) (*document.Document, error) {
	res, err := e.resource(resourceType)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := e.query(ctx, res, params)
	e.observe(res.Name, "query", start, err)
	return out, err
}

func (e *Engine) query(ctx context.Context, res *schema.ResourceType, params Params) (*document.Document, error) {
	tx, _ := transaction.FromContext(ctx)
	state := &hooks.State{Verb: hooks.VerbQuery, Resource: res}
	hctx := hooks.NewContext(ctx, tx)

	if err := e.pipeline.Run(hctx, hooks.BeforeProcessing, state); err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(hctx, hooks.BeforeSchemaValidate, state); err != nil {
		return nil, err
	}
	qp, err := resolveQueryParams(res, params)
	if err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(hctx, hooks.AfterSchemaValidate, state); err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(hctx, hooks.CheckPermissions, state); err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(hctx, hooks.BeforeDataCall, state); err != nil {
		return nil, err
	}

	doc, err := e.adapter.Query(ctx, tx, res, qp)
	if err != nil {
		return nil, err
	}

	if err := e.pipeline.Run(hctx, hooks.AfterDataCall, state); err != nil {
		return nil, err
	}
	if err := e.shape(ctx, tx, hooks.VerbQuery, doc, params.Fields); err != nil {
		return nil, err
	}
	if err := e.pipeline.Run(hctx, hooks.Finish, state); err != nil {
		return nil, err
	}
	return doc, nil
}
