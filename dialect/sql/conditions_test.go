package sql

import (
	"strings"
	"testing"

	"github.com/easyframework/easymodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditions(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		keys   string
		values []any
	}{
		{
			name:  "nil",
			input: nil,
		},
		{
			name:  "empty_map",
			input: Map{},
		},
		{
			name:   "equality_and_operator",
			input:  Map{{"status", "active"}, {"age", Map{{">", 18}}}},
			keys:   "status = ? AND age > ?",
			values: []any{"active", 18},
		},
		{
			name:   "operator_in_key",
			input:  Map{{"age >=", 21}, {"name LIKE", "a%"}, {"role NOT LIKE", "x%"}},
			keys:   "age >= ? AND name LIKE ? AND role NOT LIKE ?",
			values: []any{21, "a%", "x%"},
		},
		{
			name:   "operator_aliases",
			input:  Map{{"a", Map{{"gt", 1}, {"LTE", 9}}}, {"b", Map{{"!=", 2}}}, {"c", Map{{"==", 3}}}},
			keys:   "a > ? AND a <= ? AND b <> ? AND c = ?",
			values: []any{1, 9, 2, 3},
		},
		{
			name:   "slice_is_in",
			input:  Map{{"id", []int{1, 2, 3}}},
			keys:   "id IN (?, ?, ?)",
			values: []any{1, 2, 3},
		},
		{
			name:   "not_in",
			input:  Map{{"id", Map{{"NOT IN", []string{"a", "b"}}}}},
			keys:   "id NOT IN (?, ?)",
			values: []any{"a", "b"},
		},
		{
			name:   "in_scalar",
			input:  Map{{"id IN", 5}},
			keys:   "id IN (?)",
			values: []any{5},
		},
		{
			name:  "empty_in",
			input: Map{{"id", []int{}}},
			keys:  "1 = 0",
		},
		{
			name:  "empty_not_in",
			input: Map{{"id NOT IN", []int{}}},
			keys:  "1 = 1",
		},
		{
			name:  "null",
			input: Map{{"deleted_at", nil}, {"owner", Map{{"<>", nil}}}},
			keys:  "deleted_at IS NULL AND owner IS NOT NULL",
		},
		{
			name:   "between",
			input:  Map{{"age", Map{{"BETWEEN", [2]int{18, 30}}}}},
			keys:   "age BETWEEN ? AND ?",
			values: []any{18, 30},
		},
		{
			name:   "nested_or",
			input:  Map{{"status", "active"}, {"OR", Map{{"role", "admin"}, {"role", "owner"}}}},
			keys:   "status = ? AND (role = ? OR role = ?)",
			values: []any{"active", "admin", "owner"},
		},
		{
			name:   "top_level_or",
			input:  Map{{"or", Map{{"a", 1}, {"b", 2}}}},
			keys:   "a = ? OR b = ?",
			values: []any{1, 2},
		},
		{
			name: "or_of_and",
			input: Map{{"OR", Map{
				{"AND", Map{{"a", 1}, {"b", 2}}},
				{"c", 3},
			}}},
			keys:   "(a = ? AND b = ?) OR c = ?",
			values: []any{1, 2, 3},
		},
		{
			name:   "not",
			input:  Map{{"NOT", Map{{"a", 1}, {"b", 2}}}},
			keys:   "NOT (a = ? AND b = ?)",
			values: []any{1, 2},
		},
		{
			name:   "builtin_map_sorted",
			input:  map[string]any{"b": 2, "a": 1},
			keys:   "a = ? AND b = ?",
			values: []any{1, 2},
		},
		{
			name:   "nodes",
			input:  And{Field("age").GT(18), Or{Field("a").EQ(1), Field("b").In(2, 3)}, Field("c").NotNull()},
			keys:   "age > ? AND (a = ? OR b IN (?, ?)) AND c IS NOT NULL",
			values: []any{18, 1, 2, 3},
		},
		{
			name:  "empty_groups_skipped",
			input: Map{{"OR", Map{}}, {"AND", Map{}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConditions(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.keys, c.Keys())
			assert.Equal(t, tt.values, c.Values())
			assert.Equal(t, tt.keys == "", c.Empty())
			assert.Equal(t, strings.Count(c.Keys(), "?"), len(c.Values()))
		})
	}
}

func TestConditionsInvalid(t *testing.T) {
	inputs := map[string]any{
		"type":        42,
		"operator":    Map{{"a", Map{{"~~", 1}}}},
		"between":     Map{{"a BETWEEN", []int{1}}},
		"group_value": Map{{"OR", 1}},
		"empty_field": Map{{"", 1}},
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := NewConditions(input)
			require.Error(t, err)
			assert.Panics(t, func() { MustConditions(input) })
		})
	}
}

func TestConditionsLookup(t *testing.T) {
	c := MustConditions(Map{{"status", "active"}, {"id", Map{{"=", 9}}}, {"age >", 18}})
	v, err := c.Lookup("status")
	require.NoError(t, err)
	assert.Equal(t, "active", v)

	v, err = c.Lookup("id")
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	_, err = c.Lookup("age")
	require.Error(t, err, "non-equality predicates are not looked up")
	var kerr *easymodel.KeyNotFoundError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, "age", kerr.Key)
	assert.ErrorIs(t, err, easymodel.ErrKeyNotFound)

	_, err = Raw("a = ?", 1).Lookup("a")
	assert.ErrorIs(t, err, easymodel.ErrKeyNotFound, "raw predicates carry no tree")

	var nilc *Conditions
	_, err = nilc.Lookup("a")
	assert.ErrorIs(t, err, easymodel.ErrKeyNotFound)
}

func TestConditionsMerge(t *testing.T) {
	a := MustConditions(Map{{"a", 1}})
	b := MustConditions(Map{{"b", 2}, {"c", 3}})

	m := a.Merge("or", b)
	assert.Equal(t, "(a = ?) OR (b = ? AND c = ?)", m.Keys())
	assert.Equal(t, []any{1, 2, 3}, m.Values())
	v, err := m.Lookup("c")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	empty := MustConditions(nil)
	assert.Equal(t, "a = ?", a.Merge("AND", empty).Keys())
	assert.Equal(t, "a = ?", empty.Merge("AND", a).Keys())
	assert.True(t, empty.Merge("AND", nil).Empty())

	// Merging never aliases the operands' values.
	m.AddValues(4)
	assert.Equal(t, []any{1}, a.Values())
}

func TestConditionsRaw(t *testing.T) {
	c := Raw("a = ? OR b = ?", 1)
	c.AddValues(2)
	assert.Equal(t, []any{1, 2}, c.Values())
	c.SetKeys("a = ? AND b = ?")
	assert.Equal(t, "a = ? AND b = ?", c.Keys())
	assert.False(t, c.Empty())
}

func TestMap(t *testing.T) {
	m := Map{{"a", 1}, {"b", 2}, {"a", 3}}
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = m.Get("z")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b", "a"}, m.Keys())
}

func TestParse(t *testing.T) {
	n, err := Parse(Map{{"a", 1}})
	require.NoError(t, err)
	assert.Equal(t, Equals{Field: "a", Value: 1}, n)

	n, err = Parse(Map{{"a", 1}, {"b", Map{{"<", 2}}}})
	require.NoError(t, err)
	assert.Equal(t, And{Equals{Field: "a", Value: 1}, Compare{Field: "b", Op: "<", Value: 2}}, n)

	c := MustConditions(Map{{"x", 1}})
	n, err = Parse(c)
	require.NoError(t, err)
	assert.Equal(t, Equals{Field: "x", Value: 1}, n)

	n, err = Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, n)
}
