// Package mixin provides common fields to embed in entities.
//
// These mixins are OPTIONAL and provided as convenient starting points.
// Users are encouraged to create their own mixins tailored to their needs.
//
// Available mixins:
//   - CreateTime: created_at, set on the first save
//   - UpdateTime: updated_at, set on every save
//   - Time: Combines CreateTime and UpdateTime
//   - UUID: UUID primary key generated on insert
//   - SoftDelete: deleted_at for soft deletion
//   - Tenant: tenant_id for multi-tenancy
//   - TimeSoftDelete: Combines Time and SoftDelete
//
// Usage:
//
//	import "github.com/easyframework/easymodel/contrib/mixin"
//
//	type Document struct {
//	    mixin.UUID
//	    mixin.Time
//	    Title string
//	}
//
// Timestamps are set by BeforeSave hooks. An entity that declares its own
// BeforeSave hides the one of its mixins and must call it:
//
//	func (d *Document) BeforeSave() {
//	    d.Time.BeforeSave()
//	    d.Title = strings.TrimSpace(d.Title)
//	}
package mixin

import (
	"time"

	"github.com/google/uuid"

	"github.com/easyframework/easymodel/entity"
)

// CreateTime adds the created_at column.
type CreateTime struct {
	CreatedAt time.Time `db:"created_at"`
}

// BeforeSave sets CreatedAt when it is zero.
func (m *CreateTime) BeforeSave() {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
}

var _ entity.BeforeSaver = (*CreateTime)(nil)

// UpdateTime adds the updated_at column.
type UpdateTime struct {
	UpdatedAt time.Time `db:"updated_at"`
}

// BeforeSave sets UpdatedAt to the current time.
func (m *UpdateTime) BeforeSave() {
	m.UpdatedAt = time.Now()
}

var _ entity.BeforeSaver = (*UpdateTime)(nil)

// Time composes CreateTime and UpdateTime.
// This is the most common mixin for tracking entity timestamps.
type Time struct {
	CreateTime
	UpdateTime
}

// BeforeSave runs the hooks of both timestamps. A new entity gets the same
// creation and update time.
func (m *Time) BeforeSave() {
	m.UpdateTime.BeforeSave()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}
}

var _ entity.BeforeSaver = (*Time)(nil)

// UUID adds a string primary key, id, holding a random UUID generated when
// the entity is inserted.
//
// For other generated keys, implement entity.KeyGenerator:
//
//	func (Order) NewKey() any { return snowflake.Generate() }
type UUID struct {
	ID string `db:"id"`
}

// NewKey implements entity.KeyGenerator.
func (UUID) NewKey() any {
	return uuid.NewString()
}

var _ entity.KeyGenerator = UUID{}

// SoftDelete adds the deleted_at column. Entities are not physically
// deleted but marked with a deletion time and saved.
//
// Use the privacy.FilterSoftDeleted query rule to leave soft-deleted
// entities out of finders.
type SoftDelete struct {
	DeletedAt *time.Time `db:"deleted_at"`
}

// MarkDeleted sets the deletion time. The entity must still be saved.
func (m *SoftDelete) MarkDeleted() {
	now := time.Now()
	m.DeletedAt = &now
}

// Restore clears the deletion time.
func (m *SoftDelete) Restore() {
	m.DeletedAt = nil
}

// Deleted reports whether the entity is marked deleted.
func (m SoftDelete) Deleted() bool {
	return m.DeletedAt != nil
}

// Tenant adds the tenant_id column. Combined with privacy.TenantRule and
// privacy.TenantQueryRule, this enables row-level tenant isolation.
type Tenant struct {
	TenantID string `db:"tenant_id"`
}

// TimeSoftDelete composes Time and SoftDelete.
// Provides created_at, updated_at, and deleted_at.
type TimeSoftDelete struct {
	Time
	SoftDelete
}
