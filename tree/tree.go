// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tree flattens nested containers into ordered leaves and back.
//
// Containers are []any, map[string]any (visited in sorted key order), nil
// (an empty node), and any type registered with [Register]. Everything else
// is a leaf.
//
//   - [Flatten]: container → (leaves, [*Def])
//   - [Unflatten]: ([*Def], leaves) → container
//   - [Map]: apply a function to every leaf
//   - [Register]: teach the traversal a custom node type
package tree

import (
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type nodeKind uint8

const (
	leafNode nodeKind = iota
	noneNode
	sliceNode
	mapNode
	customNode
)

// Def is the structure of a flattened container.
type Def struct {
	kind     nodeKind
	keys     []string
	children []*Def
	custom   *registration
	aux      any
}

// NumLeaves returns the number of leaves the structure holds.
func (d *Def) NumLeaves() int {
	switch d.kind {
	case leafNode:
		return 1
	case noneNode:
		return 0
	}
	n := 0
	for _, c := range d.children {
		n += c.NumLeaves()
	}
	return n
}

// Equal reports whether d and o describe the same structure.
// Aux data of custom nodes is not compared.
func (d *Def) Equal(o *Def) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.kind != o.kind || d.custom != o.custom || !slices.Equal(d.keys, o.keys) || len(d.children) != len(o.children) {
		return false
	}
	for i := range d.children {
		if !d.children[i].Equal(o.children[i]) {
			return false
		}
	}
	return true
}

func (d *Def) String() string {
	var b strings.Builder
	d.write(&b)
	return b.String()
}

func (d *Def) write(b *strings.Builder) {
	switch d.kind {
	case leafNode:
		b.WriteByte('*')
		return
	case noneNode:
		b.WriteString("None")
		return
	case sliceNode:
		b.WriteByte('[')
	case mapNode:
		b.WriteByte('{')
	case customNode:
		b.WriteString(d.custom.typ.String())
		b.WriteByte('(')
	}
	for i, c := range d.children {
		if i > 0 {
			b.WriteString(", ")
		}
		if d.kind == mapNode {
			b.WriteString(d.keys[i])
			b.WriteString(": ")
		}
		c.write(b)
	}
	switch d.kind {
	case sliceNode:
		b.WriteByte(']')
	case mapNode:
		b.WriteByte('}')
	default:
		b.WriteByte(')')
	}
}

type registration struct {
	typ       reflect.Type
	decompose func(any) ([]any, any)
	recompose func(aux any, children []any) (any, error)
}

var registry sync.Map // reflect.Type → *registration

// Register makes values of type T interior nodes. decompose returns the
// children and auxiliary data; recompose rebuilds a value from both.
// Registering the same type again replaces the previous hooks.
func Register[T any](decompose func(T) ([]any, any), recompose func(aux any, children []any) (T, error)) {
	typ := reflect.TypeFor[T]()
	registry.Store(typ, &registration{
		typ:       typ,
		decompose: func(x any) ([]any, any) { return decompose(x.(T)) },
		recompose: func(aux any, children []any) (any, error) { return recompose(aux, children) },
	})
}

func lookup(x any) *registration {
	if x == nil {
		return nil
	}
	r, ok := registry.Load(reflect.TypeOf(x))
	if !ok {
		return nil
	}
	return r.(*registration)
}

// Flatten returns the leaves of x in canonical order and its structure.
func Flatten(x any) ([]any, *Def) {
	var leaves []any
	def := flatten(x, &leaves)
	return leaves, def
}

// Leaves returns the leaves of x in canonical order.
func Leaves(x any) []any {
	leaves, _ := Flatten(x)
	return leaves
}

func flatten(x any, leaves *[]any) *Def {
	switch v := x.(type) {
	case nil:
		return &Def{kind: noneNode}
	case []any:
		d := &Def{kind: sliceNode, children: make([]*Def, len(v))}
		for i, c := range v {
			d.children[i] = flatten(c, leaves)
		}
		return d
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		d := &Def{kind: mapNode, keys: keys, children: make([]*Def, len(keys))}
		for i, k := range keys {
			d.children[i] = flatten(v[k], leaves)
		}
		return d
	}
	if r := lookup(x); r != nil {
		children, aux := r.decompose(x)
		d := &Def{kind: customNode, custom: r, aux: aux, children: make([]*Def, len(children))}
		for i, c := range children {
			d.children[i] = flatten(c, leaves)
		}
		return d
	}
	*leaves = append(*leaves, x)
	return &Def{kind: leafNode}
}

// Unflatten rebuilds a container with the structure def from leaves.
func Unflatten(def *Def, leaves []any) (any, error) {
	if def.NumLeaves() != len(leaves) {
		return nil, errors.Errorf("tree: structure %s needs %d leaves, got %d", def, def.NumLeaves(), len(leaves))
	}
	pos := 0
	return unflatten(def, leaves, &pos)
}

func unflatten(def *Def, leaves []any, pos *int) (any, error) {
	switch def.kind {
	case leafNode:
		v := leaves[*pos]
		*pos++
		return v, nil
	case noneNode:
		return nil, nil
	}
	children := make([]any, len(def.children))
	for i, c := range def.children {
		v, err := unflatten(c, leaves, pos)
		if err != nil {
			return nil, err
		}
		children[i] = v
	}
	switch def.kind {
	case sliceNode:
		return children, nil
	case mapNode:
		m := make(map[string]any, len(children))
		for i, k := range def.keys {
			m[k] = children[i]
		}
		return m, nil
	}
	v, err := def.custom.recompose(def.aux, children)
	if err != nil {
		return nil, errors.Wrapf(err, "tree: recompose %s", def.custom.typ)
	}
	return v, nil
}

// Map applies f to every leaf of x and rebuilds the structure.
func Map(f func(any) (any, error), x any) (any, error) {
	leaves, def := Flatten(x)
	for i, l := range leaves {
		v, err := f(l)
		if err != nil {
			return nil, err
		}
		leaves[i] = v
	}
	return Unflatten(def, leaves)
}

// Any reports whether pred holds for some leaf of x.
func Any(x any, pred func(any) bool) bool {
	return slices.ContainsFunc(Leaves(x), pred)
}
