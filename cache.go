// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"container/list"
	"fmt"
	"strconv"
	"sync"
	"unsafe"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"code.hybscloud.com/cellflow/tensor"
	"code.hybscloud.com/cellflow/tree"
)

// fingerprint identifies one discovery: the function value and the
// structure, shapes and dtypes of its operands.
type fingerprint struct {
	Op     string
	Fn     uint64
	Tree   string
	Leaves []string
}

// funcID returns the address of the closure record behind f. Two calls with
// the same func value share it; distinct closures never do while both are
// alive. Cache entries keep their func alive, so an address is not reused
// while it is a key.
func funcID(f Func) uintptr {
	return *(*uintptr)(unsafe.Pointer(&f))
}

func fingerprintOf(op string, f Func, args []any) (uint64, error) {
	leaves, def := tree.Flatten(args)
	fp := fingerprint{Op: op, Fn: uint64(funcID(f)), Tree: def.String(), Leaves: make([]string, len(leaves))}
	for i, leaf := range leaves {
		if !tensor.IsScalarLike(leaf) {
			fp.Leaves[i] = fmt.Sprintf("static:%T:%v", leaf, leaf)
			continue
		}
		t, err := tensor.AsTensor(leaf)
		if err != nil {
			return 0, err
		}
		fp.Leaves[i] = t.DType().String() + t.Shape().String()
	}
	h, err := hashstructure.Hash(fp, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, errors.Wrap(err, "cellflow: fingerprint")
	}
	return h, nil
}

type cacheEntry struct {
	key   uint64
	fn    Func
	stack *VariableStack
}

// discoveryCache is a bounded LRU of discovered stacks. Concurrent builds of
// the same key run once.
type discoveryCache struct {
	mu    sync.Mutex
	max   int
	ll    *list.List
	items map[uint64]*list.Element
	group singleflight.Group
}

func newDiscoveryCache(max int) *discoveryCache {
	return &discoveryCache{max: max, ll: list.New(), items: make(map[uint64]*list.Element)}
}

var discoveries = newDiscoveryCache(DefaultConfig().CacheSize)

func (c *discoveryCache) get(key uint64) (*VariableStack, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(e)
	return e.Value.(*cacheEntry).stack.Clone(), true
}

func (c *discoveryCache) put(key uint64, fn Func, s *VariableStack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		e.Value.(*cacheEntry).stack = s.Clone()
		c.ll.MoveToFront(e)
		return
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, fn: fn, stack: s.Clone()})
	c.evict()
}

func (c *discoveryCache) evict() {
	for c.ll.Len() > c.max {
		e := c.ll.Back()
		c.ll.Remove(e)
		delete(c.items, e.Value.(*cacheEntry).key)
	}
}

// build returns the cached stack for key or runs f once for all concurrent
// callers and caches its result.
func (c *discoveryCache) build(key uint64, fn Func, f func() (*VariableStack, error)) (*VariableStack, bool, error) {
	if s, ok := c.get(key); ok {
		return s, true, nil
	}
	v, err, _ := c.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		s, err := f()
		if err != nil {
			return nil, err
		}
		c.put(key, fn, s)
		return s, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*VariableStack).Clone(), false, nil
}

func (c *discoveryCache) resize(max int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.max = max
	c.evict()
}

// invalidate drops every entry recorded for fn and returns how many.
func (c *discoveryCache) invalidate(fn Func) int {
	id := funcID(fn)
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for e := c.ll.Front(); e != nil; {
		next := e.Next()
		ent := e.Value.(*cacheEntry)
		if funcID(ent.fn) == id {
			c.ll.Remove(e)
			delete(c.items, ent.key)
			n++
		}
		e = next
	}
	return n
}

func (c *discoveryCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}

func (c *discoveryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// InvalidateDiscovery drops the cached discoveries of fn. Call it when the
// set of Variables fn touches has changed, for example after fn's closure
// starts capturing a different Variable.
func InvalidateDiscovery(fn Func) int { return discoveries.invalidate(fn) }

// ResetDiscoveryCache drops every cached discovery.
func ResetDiscoveryCache() { discoveries.reset() }

// DiscoveryCacheLen returns the number of cached discoveries.
func DiscoveryCacheLen() int { return discoveries.len() }
