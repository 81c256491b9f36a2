// Package hooks implements the ordered extension-point pipeline invoked at
// fixed stages of each operation's lifecycle. Hooks are typed handlers
// registered at startup under a stage name; within a stage they run strictly
// in registration order, generic hooks first, then hooks scoped to the
// operation's verb. Hooks never run concurrently within one operation, and a
// hook error propagates exactly like a core failure.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/transaction"
)

// Stage is a named lifecycle point.
type Stage string

// The canonical stages, in the order write operations fire them. The
// EnrichAttributes stage additionally runs over every returned attribute bag,
// primary and included, on all verbs.
const (
	BeforeProcessing     Stage = "beforeProcessing"
	BeforeSchemaValidate Stage = "beforeSchemaValidate"
	AfterSchemaValidate  Stage = "afterSchemaValidate"
	CheckPermissions     Stage = "checkPermissions"
	BeforeDataCall       Stage = "beforeDataCall"
	AfterDataCall        Stage = "afterDataCall"
	Finish               Stage = "finish"
	EnrichAttributes     Stage = "enrichAttributes"
)

// Verb identifies the operation a hook may be scoped to.
type Verb string

const (
	VerbQuery  Verb = "query"
	VerbGet    Verb = "get"
	VerbPost   Verb = "post"
	VerbPut    Verb = "put"
	VerbPatch  Verb = "patch"
	VerbDelete Verb = "delete"
)

// Func is a hook callback. It may inspect and mutate the in-flight state.
type Func func(ctx *Context, state *State) error

// Options configure a hook at registration time.
type Options struct {
	// Verb scopes the hook to one operation; empty means every verb.
	// Verb-scoped hooks fire immediately after the generic hooks of the
	// same stage.
	Verb Verb
}

// Hook is one registered handler.
type Hook struct {
	Name string
	Verb Verb
	Fn   Func
}

// State is the mutable in-flight operation state exposed to hooks.
type State struct {
	Verb     Verb
	Resource *schema.ResourceType

	// ID is the operation's target id, when known.
	ID string

	// Attributes is the validated attribute bag. At the EnrichAttributes
	// stage it is the only mutable surface: hooks may project computed
	// attribute values but must not touch relationship linkage.
	Attributes map[string]any
}

// Context wraps the request context with the transaction in effect, so hooks
// at data-call stages observe the operation's uncommitted writes.
type Context struct {
	context.Context
	tx *transaction.Transaction
}

// NewContext builds a hook context.
func NewContext(ctx context.Context, tx *transaction.Transaction) *Context {
	return &Context{Context: ctx, tx: tx}
}

// Tx returns the active transaction, or nil outside one.
func (c *Context) Tx() *transaction.Transaction {
	return c.tx
}

// Pipeline holds the registered hooks per stage.
type Pipeline struct {
	mu     sync.RWMutex
	stages map[Stage][]*Hook
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{stages: make(map[Stage][]*Hook)}
}

// Register adds a named hook at a stage. Registration happens at startup;
// invocation order within a stage is registration order.
func (p *Pipeline) Register(stage Stage, name string, opts Options, fn Func) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stages[stage] = append(p.stages[stage], &Hook{Name: name, Verb: opts.Verb, Fn: fn})
}

// Has reports whether any hook is registered at the stage.
func (p *Pipeline) Has(stage Stage) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.stages[stage]) > 0
}

// Run invokes the stage's hooks against the state: first every generic hook,
// then every hook scoped to the state's verb, each group in registration
// order. The first error aborts the stage and propagates unchanged.
func (p *Pipeline) Run(ctx *Context, stage Stage, state *State) error {
	p.mu.RLock()
	hooksAtStage := p.stages[stage]
	p.mu.RUnlock()

	if len(hooksAtStage) == 0 {
		return nil
	}

	for _, h := range hooksAtStage {
		if h.Verb != "" {
			continue
		}
		if err := h.Fn(ctx, state); err != nil {
			return fmt.Errorf("hook %s at %s failed: %w", h.Name, stage, err)
		}
	}
	for _, h := range hooksAtStage {
		if h.Verb != state.Verb {
			continue
		}
		if err := h.Fn(ctx, state); err != nil {
			return fmt.Errorf("hook %s at %s%s failed: %w", h.Name, stage, verbSuffix(state.Verb), err)
		}
	}
	return nil
}

func verbSuffix(v Verb) string {
	if len(v) == 0 {
		return ""
	}
	return string(v[0]-'a'+'A') + string(v[1:])
}
