// Package privacy provides sets of types and helpers for writing privacy
// rules for entities, and deal with their evaluation at runtime.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/easyframework/easymodel/dialect/sql"
	"github.com/easyframework/easymodel/entity"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from policy rules to indicate
// how the policy evaluation should proceed. Use errors.Is() to check
// for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("easymodel/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("easymodel/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("easymodel/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a query/mutation rule from a context evaluation function.
// Returning nil is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

type (
	// QueryRule defines the interface deciding whether a
	// finder is allowed and optionally narrow its query.
	QueryRule interface {
		EvalQuery(context.Context, *entity.Read) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule defines the interface deciding whether a
	// write is allowed.
	MutationRule interface {
		EvalMutation(context.Context, *entity.Mutation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// QueryRuleFunc type is an adapter which allows the use of
// ordinary functions as query rules.
type QueryRuleFunc func(context.Context, *entity.Read) error

// EvalQuery returns f(ctx, r).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, r *entity.Read) error {
	return f(ctx, r)
}

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, *entity.Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m *entity.Mutation) error {
	return f(ctx, m)
}

// OnMutationOperation evaluates the given rule only on a given mutation operation.
func OnMutationOperation(rule MutationRule, op entity.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *entity.Mutation) error {
		if m.Op.Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying specified mutation operation.
func DenyMutationOperationRule(op entity.Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m *entity.Mutation) error {
		return Denyf("easymodel/privacy: operation %s is not allowed", m.Op)
	})
	return OnMutationOperation(rule, op)
}

// AllowMutationOperationRule returns a rule allowing specified mutation operation.
func AllowMutationOperationRule(op entity.Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, *entity.Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// OnEntity evaluates the given rule only for the named entity types.
func OnEntity(rule QueryMutationRule, names ...string) QueryMutationRule {
	return struct {
		QueryRule
		MutationRule
	}{
		QueryRule:    OnEntityQuery(rule, names...),
		MutationRule: OnEntityMutation(rule, names...),
	}
}

// OnEntityQuery evaluates the given query rule only for the named entity types.
func OnEntityQuery(rule QueryRule, names ...string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, r *entity.Read) error {
		if slices.Contains(names, r.Entity) {
			return rule.EvalQuery(ctx, r)
		}
		return Skip
	})
}

// OnEntityMutation evaluates the given mutation rule only for the named entity types.
func OnEntityMutation(rule MutationRule, names ...string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *entity.Mutation) error {
		if slices.Contains(names, m.Entity) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// Policy groups query and mutation policies. It implements entity.Policy:
// an Allow decision, or no decision, lets the operation run.
//
//	m := entity.NewManager(drv, entity.WithPolicy(privacy.Policy{
//		Query: privacy.QueryPolicy{privacy.TenantQueryRule("tenant_id")},
//		Mutation: privacy.MutationPolicy{
//			privacy.DenyIfNoViewer(),
//			privacy.HasRole("admin"),
//			privacy.IsOwner("user_id"),
//			privacy.AlwaysDenyRule(),
//		},
//	}))
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

var _ entity.Policy = Policy{}

// EvalQuery forwards evaluation to the query policy.
func (p Policy) EvalQuery(ctx context.Context, r *entity.Read) error {
	return decide(ctx, func() error { return p.Query.EvalQuery(ctx, r) })
}

// EvalMutation forwards evaluation to the mutation policy.
func (p Policy) EvalMutation(ctx context.Context, m *entity.Mutation) error {
	return decide(ctx, func() error { return p.Mutation.EvalMutation(ctx, m) })
}

// decide returns the final outcome of eval: nil when the operation may run.
// A decision attached to ctx takes precedence.
func decide(ctx context.Context, eval func() error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	switch decision := eval(); {
	case decision == nil || errors.Is(decision, Skip) || errors.Is(decision, Allow):
		return nil
	default:
		return decision
	}
}

// Policies combines multiple policies into a single policy.
type Policies []entity.Policy

var _ entity.Policy = Policies(nil)

// EvalQuery evaluates the query policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalQuery(ctx context.Context, r *entity.Read) error {
	return policies.eval(ctx, func(policy entity.Policy) error {
		return policy.EvalQuery(ctx, r)
	})
}

// EvalMutation evaluates the mutation policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalMutation(ctx context.Context, m *entity.Mutation) error {
	return policies.eval(ctx, func(policy entity.Policy) error {
		return policy.EvalMutation(ctx, m)
	})
}

func (policies Policies) eval(ctx context.Context, eval func(entity.Policy) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := eval(policy); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalQuery evaluates a query against a query policy.
func (policies QueryPolicy) EvalQuery(ctx context.Context, r *entity.Read) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, r); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates a mutation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m *entity.Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, *entity.Read) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, *entity.Mutation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ *entity.Read) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ *entity.Mutation) error {
	return c.eval(ctx)
}

// FilterFunc is an adapter that allows using ordinary functions as query
// rules that narrow the query of a finder.
//
//	privacy.FilterFunc(func(ctx context.Context, q *sql.Query) error {
//	    q.AndWhere(sql.Build(sql.Field("workspace_id").EQ(workspaceID)))
//	    return privacy.Skip
//	})
type FilterFunc func(context.Context, *sql.Query) error

// EvalQuery calls f(ctx, r.Query).
func (f FilterFunc) EvalQuery(ctx context.Context, r *entity.Read) error {
	if r.Query == nil {
		return Denyf("easymodel/privacy: %s read has no query to filter", r.Entity)
	}
	return f(ctx, r.Query)
}

var _ QueryRule = FilterFunc(nil)
