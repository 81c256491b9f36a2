package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/transaction"
)

// loadIncluded resolves requested relationship targets for a single record
// and appends them to the document's included array, setting the linkage on
// the primary resource as it goes. Unknown include names are ignored, the
// same policy the write path applies to unknown relationship names.
func (s *Store) loadIncluded(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, obj *document.ResourceObject, record map[string]any, include []string, doc *document.Document) error {
	if len(include) == 0 {
		return nil
	}
	if s.registry == nil {
		return fmt.Errorf("store has no registry; cannot resolve includes")
	}
	if obj.Relationships == nil {
		obj.Relationships = make(map[string]*document.Relationship)
	}

	for _, name := range include {
		def, ok := res.Relationships[name]
		if !ok {
			continue
		}

		switch def.Kind {
		case schema.BelongsTo:
			if err := s.includeOne(ctx, tx, obj, name, def.Target, record[def.ForeignKey], doc); err != nil {
				return err
			}
		case schema.BelongsToPolymorphic:
			typ := valueToString(record[def.TypeColumn])
			if typ == "" {
				obj.Relationships[name] = document.ToOneNull()
				continue
			}
			if err := s.includeOne(ctx, tx, obj, name, typ, record[def.IDColumn], doc); err != nil {
				return err
			}
		case schema.ManyToMany:
			if err := s.includeManyToMany(ctx, tx, obj, name, def, doc); err != nil {
				return err
			}
		case schema.HasMany:
			if err := s.includeHasMany(ctx, tx, res, obj, name, def, doc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) includeOne(ctx context.Context, tx *transaction.Transaction, obj *document.ResourceObject, name, targetType string, fkValue any, doc *document.Document) error {
	if fkValue == nil {
		obj.Relationships[name] = document.ToOneNull()
		return nil
	}
	targetRes, ok := s.registry.Get(targetType)
	if !ok {
		return fmt.Errorf("include %s references unknown resource %s", name, targetType)
	}

	id := valueToString(fkValue)
	obj.Relationships[name] = document.ToOne(targetType, id)

	cols := columnsFor(targetRes)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", strings.Join(cols, ", "), targetRes.TableName())
	row := s.querier(tx).QueryRowContext(ctx, query, id)
	record, err := scanRowWithColumns(row, cols)
	if err != nil {
		return storage.ConvertError(err, targetType, id)
	}
	doc.Included = append(doc.Included, toResourceObject(targetRes, record))
	return nil
}

func (s *Store) includeManyToMany(ctx context.Context, tx *transaction.Transaction, obj *document.ResourceObject, name string, def *schema.Relationship, doc *document.Document) error {
	targetRes, ok := s.registry.Get(def.Target)
	if !ok {
		return fmt.Errorf("include %s references unknown resource %s", name, def.Target)
	}

	cols := columnsFor(targetRes)
	prefixed := make([]string, len(cols))
	for i, col := range cols {
		prefixed[i] = "t." + col
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s t JOIN %s j ON t.id = j.%s WHERE j.%s = $1 ORDER BY t.id",
		strings.Join(prefixed, ", "), targetRes.TableName(), def.JoinTable, def.OtherKey, def.ThisKey,
	)

	rows, err := s.querier(tx).QueryContext(ctx, query, obj.ID)
	if err != nil {
		return fmt.Errorf("failed to load %s for %s: %w", name, obj.Identifier(), err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("failed to scan %s rows: %w", name, err)
	}

	identifiers := make([]document.ResourceIdentifier, 0, len(records))
	for _, record := range records {
		related := toResourceObject(targetRes, record)
		identifiers = append(identifiers, related.Identifier())
		doc.Included = append(doc.Included, related)
	}
	obj.Relationships[name] = document.ToMany(identifiers...)
	return nil
}

func (s *Store) includeHasMany(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, obj *document.ResourceObject, name string, def *schema.Relationship, doc *document.Document) error {
	targetRes, ok := s.registry.Get(def.Target)
	if !ok {
		return fmt.Errorf("include %s references unknown resource %s", name, def.Target)
	}

	cols := columnsFor(targetRes)
	var query string
	var args []any
	if def.Via != "" {
		viaDef, ok := targetRes.Relationships[def.Via]
		if !ok || viaDef.Kind != schema.BelongsToPolymorphic {
			return fmt.Errorf("include %s: %s.%s is not a polymorphic relationship", name, def.Target, def.Via)
		}
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2 ORDER BY id",
			strings.Join(cols, ", "), targetRes.TableName(), viaDef.TypeColumn, viaDef.IDColumn)
		args = []any{res.Name, obj.ID}
	} else {
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY id",
			strings.Join(cols, ", "), targetRes.TableName(), def.ForeignKey)
		args = []any{obj.ID}
	}

	rows, err := s.querier(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load %s for %s: %w", name, obj.Identifier(), err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("failed to scan %s rows: %w", name, err)
	}

	identifiers := make([]document.ResourceIdentifier, 0, len(records))
	for _, record := range records {
		related := toResourceObject(targetRes, record)
		identifiers = append(identifiers, related.Identifier())
		doc.Included = append(doc.Included, related)
	}
	obj.Relationships[name] = document.ToMany(identifiers...)
	return nil
}
