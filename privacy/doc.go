// Package privacy provides policies for the entity Manager: rules evaluated
// before finders and writes reach the database.
//
// # Core Concepts
//
//   - Policy: query and mutation rules, set on a Manager with entity.WithPolicy
//   - Rule: a function that returns Allow, Deny or Skip
//   - Viewer: the authenticated user, carried by the context
//
// # Defining Policies
//
//	m := entity.NewManager(drv, entity.WithPolicy(privacy.Policy{
//	    Mutation: privacy.MutationPolicy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.HasRole("admin"),
//	        privacy.IsOwner("user_id"),
//	        privacy.AlwaysDenyRule(),
//	    },
//	    Query: privacy.QueryPolicy{
//	        privacy.TenantQueryRule("tenant_id"),
//	    },
//	}))
//
// # Rule Evaluation
//
// Rules are evaluated in order until one returns a final decision:
//
//   - Allow: grants access and stops evaluation
//   - Deny: denies access and stops evaluation
//   - Skip: continues to the next rule
//
// If all rules return Skip, the operation runs. A denied operation fails with
// an error wrapping Deny:
//
//	if errors.Is(err, privacy.Deny) { ... }
//
// # Filtering
//
// Query rules may narrow the query of a finder instead of deciding. The
// owner and tenant query rules add an equality on their column:
//
//	privacy.FilterFunc(func(ctx context.Context, q *sql.Query) error {
//	    q.AndWhere(sql.Build(sql.Field("deleted_at").IsNull()))
//	    return privacy.Skip
//	})
//
// # Viewer
//
//	ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID:   "42",
//	    Roles:    []string{"user"},
//	    TenantID: "acme",
//	})
//	posts, err := entity.All[Post](ctx, m, nil)
package privacy
