// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tree_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.hybscloud.com/cellflow/tree"
)

type pair struct {
	a, b any
	tag  string
}

func init() {
	tree.Register(func(p *pair) ([]any, any) {
		return []any{p.a, p.b}, p.tag
	}, func(aux any, children []any) (*pair, error) {
		return &pair{a: children[0], b: children[1], tag: aux.(string)}, nil
	})
}

func TestFlattenOrder(t *testing.T) {
	x := []any{1, map[string]any{"z": 3, "a": 2}, nil, []any{4}}
	leaves, def := tree.Flatten(x)
	assert.Equal(t, []any{1, 2, 3, 4}, leaves)
	assert.Equal(t, 4, def.NumLeaves())
	assert.Equal(t, "[*, {a: *, z: *}, None, [*]]", def.String())
}

func TestUnflattenRoundTrip(t *testing.T) {
	x := []any{1, map[string]any{"k": []any{2, 3}}}
	leaves, def := tree.Flatten(x)
	y, err := tree.Unflatten(def, leaves)
	require.NoError(t, err)
	assert.Equal(t, x, y)

	_, err = tree.Unflatten(def, leaves[:1])
	assert.Error(t, err)
}

func TestRegisteredType(t *testing.T) {
	p := &pair{a: 1, b: []any{2, 3}, tag: "t"}
	leaves, def := tree.Flatten(p)
	assert.Equal(t, []any{1, 2, 3}, leaves)

	out, err := tree.Map(func(l any) (any, error) { return l.(int) * 10, nil }, p)
	require.NoError(t, err)
	q, ok := out.(*pair)
	require.True(t, ok)
	assert.Equal(t, 10, q.a)
	assert.Equal(t, []any{20, 30}, q.b)
	assert.Equal(t, "t", q.tag)

	_, other := tree.Flatten(&pair{a: 0, b: []any{0, 0}, tag: "different"})
	assert.True(t, def.Equal(other), "aux data is not part of the structure")
	_, shorter := tree.Flatten(&pair{a: 0, b: []any{0}})
	assert.False(t, def.Equal(shorter))
}

func TestMapError(t *testing.T) {
	boom := errors.New("boom")
	_, err := tree.Map(func(any) (any, error) { return nil, boom }, []any{1})
	assert.True(t, errors.Is(err, boom))
}

func TestAny(t *testing.T) {
	x := map[string]any{"a": 1, "b": []any{"s"}}
	assert.True(t, tree.Any(x, func(l any) bool { _, ok := l.(string); return ok }))
	assert.False(t, tree.Any(x, func(l any) bool { _, ok := l.(float64); return ok }))
	assert.False(t, tree.Any(nil, func(any) bool { return true }))
}
