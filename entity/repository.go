package entity

import (
	"context"
	"reflect"

	"github.com/easyframework/easymodel/dialect/sql/schema"
)

// Repository binds an entity type to its table metadata and its mapping.
// The Manager creates one per entity type on first use.
type Repository struct {
	typ       reflect.Type
	info      *typeInfo
	table     *schema.Table
	relations Relations
}

// Name returns the entity type name.
func (r *Repository) Name() string { return r.info.name }

// TableName returns the table of the entity, datasource prefix included.
func (r *Repository) TableName() string { return r.table.Name() }

// Table returns the metadata of the entity table.
func (r *Repository) Table() *schema.Table { return r.table }

// Type returns the struct type of the entity.
func (r *Repository) Type() reflect.Type { return r.typ }

// Relations returns the associations declared by the entity, or nil.
func (r *Repository) Relations() Relations { return r.relations }

// PrimaryKey returns the primary key column, empty when the table has none.
func (r *Repository) PrimaryKey(ctx context.Context) (string, error) {
	return r.table.PrimaryKey(ctx)
}

// Column returns the column a struct field is mapped to.
func (r *Repository) Column(fieldName string) (string, bool) {
	for _, f := range r.info.fields {
		if f.name == fieldName {
			return f.column, true
		}
	}
	return "", false
}

// primary returns the field of the primary key column of the entity value v,
// and whether the table has a primary key mapped by the entity.
func (r *Repository) primary(ctx context.Context, v reflect.Value) (string, reflect.Value, error) {
	pk, err := r.table.PrimaryKey(ctx)
	if err != nil || pk == "" {
		return "", reflect.Value{}, err
	}
	f, ok := r.info.field(pk)
	if !ok {
		return pk, reflect.Value{}, nil
	}
	return pk, v.FieldByIndex(f.index), nil
}
