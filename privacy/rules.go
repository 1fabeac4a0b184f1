package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/easyframework/easymodel/dialect/sql"
	"github.com/easyframework/easymodel/entity"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier for multi-tenancy.
	// Returns empty string if not applicable.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present in the context.
// This is typically used as the first rule in a policy to require authentication.
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the specified role.
// Skips if the viewer doesn't have the role.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of the specified roles.
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		viewerRoles := viewer.GetRoles()
		for _, role := range roles {
			if slices.Contains(viewerRoles, role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a mutation rule that allows creates writing the viewer's
// ID to column. Updates and deletes are allowed after their query is narrowed
// to the stored rows whose column holds the viewer's ID, so the fields of
// the entity passed by the caller decide nothing. An update writing another
// ID to column is skipped.
//
//	privacy.MutationPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.IsOwner("user_id"),
//	    privacy.AlwaysDenyRule(),
//	}
func IsOwner(column string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *entity.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		id := viewer.GetID()
		value, written := m.Field(column)
		if written && stringOf(value) != id {
			return Skip
		}
		if m.Op.Is(entity.OpCreate) {
			if written {
				return Allow
			}
			return Skip
		}
		if m.Query == nil {
			return Skip
		}
		m.Query.AndWhere(sql.Build(sql.Field(column).EQ(id)))
		return Allow
	})
}

// OwnerQueryRule returns a query rule that restricts finders to the rows
// whose column holds the viewer's ID. It denies when there is no viewer.
func OwnerQueryRule(column string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, r *entity.Read) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("privacy: viewer required for owner-filtered query")
		}
		return FilterFunc(func(_ context.Context, q *sql.Query) error {
			q.AndWhere(sql.Build(sql.Field(column).EQ(viewer.GetID())))
			return Skip
		}).EvalQuery(ctx, r)
	})
}

// TenantRule returns a mutation rule that denies writing another tenant to
// column. Creates writing the viewer's tenant are allowed. Updates and
// deletes are allowed after their query is narrowed to the stored rows of
// the viewer's tenant.
func TenantRule(column string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *entity.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		tenant := viewer.GetTenantID()
		if tenant == "" {
			return Skip
		}
		value, written := m.Field(column)
		if written && stringOf(value) != tenant {
			return Denyf("privacy: tenant mismatch")
		}
		if m.Op.Is(entity.OpCreate) {
			if written {
				return Allow
			}
			return Skip
		}
		if m.Query == nil {
			return Skip
		}
		m.Query.AndWhere(sql.Build(sql.Field(column).EQ(tenant)))
		return Allow
	})
}

// TenantQueryRule returns a query rule that restricts finders to the rows of
// the viewer's tenant. It denies when there is no viewer or tenant.
func TenantQueryRule(column string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, r *entity.Read) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("privacy: viewer required for tenant-filtered query")
		}
		tenant := viewer.GetTenantID()
		if tenant == "" {
			return Denyf("privacy: tenant required")
		}
		return FilterFunc(func(_ context.Context, q *sql.Query) error {
			q.AndWhere(sql.Build(sql.Field(column).EQ(tenant)))
			return Skip
		}).EvalQuery(ctx, r)
	})
}

func stringOf(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	default:
		return fmt.Sprint(v)
	}
}

// FilterSoftDeleted returns a query rule that leaves out the rows whose
// column, a deletion time, is set.
func FilterSoftDeleted(column string) QueryRule {
	return FilterFunc(func(_ context.Context, q *sql.Query) error {
		q.AndWhere(sql.Build(sql.Field(column).IsNull()))
		return Skip
	})
}
