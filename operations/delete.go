package operations

import (
	"context"
	"time"

	"github.com/strata-db/strata/hooks"
	"github.com/strata-db/strata/schema"
)

// Delete removes the record at id. There is no schema or relationship
// processing; the operation authorizes, deletes, and returns nothing. Join
// rows are expected to be cleaned up by the database's cascade rules.
func (e *Engine) Delete(ctx context.Context, resourceType, id string) error {
	res, err := e.resource(resourceType)
	if err != nil {
		return err
	}
	start := time.Now()
	err = e.delete(ctx, res, id)
	e.observe(res.Name, "delete", start, err)
	return err
}

func (e *Engine) delete(ctx context.Context, res *schema.ResourceType, id string) error {
	state := &hooks.State{Verb: hooks.VerbDelete, Resource: res, ID: id}
	hctx := hooks.NewContext(ctx, nil)

	if err := e.pipeline.Run(hctx, hooks.BeforeProcessing, state); err != nil {
		return err
	}
	if err := e.pipeline.Run(hctx, hooks.CheckPermissions, state); err != nil {
		return err
	}

	tx, owns, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	opErr := func() error {
		txctx := hooks.NewContext(ctx, tx)
		if err := e.pipeline.Run(txctx, hooks.BeforeDataCall, state); err != nil {
			return err
		}
		if err := e.adapter.Delete(ctx, tx, res, id); err != nil {
			return err
		}
		return e.pipeline.Run(txctx, hooks.AfterDataCall, state)
	}()
	if err := e.release(tx, owns, opErr); err != nil {
		return err
	}

	return e.pipeline.Run(hctx, hooks.Finish, state)
}
