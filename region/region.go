// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package region tracks nested trace regions.
//
// A region is entered when a trace primitive starts staging a function and
// exited when staging ends. Regions nest with strict stack discipline; each
// [Enter] returns a [*Guard] that must be exited exactly once, in LIFO order.
// Mutable cells consult [Stack.Current] to decide whether a write is legal.
package region

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ID is an opaque region tag.
type ID string

// ErrUnbalanced is returned when a guard is exited while it is not the
// innermost active region.
var ErrUnbalanced = errors.New("region: unbalanced exit")

// Stack is a LIFO of active regions.
type Stack struct {
	mu  sync.Mutex
	ids []ID
}

// NewStack creates an empty region stack.
func NewStack() *Stack { return &Stack{} }

// Default is the process-wide stack used by cells and trace primitives
// unless another one is supplied.
var Default = NewStack()

// Enter pushes a fresh region tagged with kind and returns its guard.
func (s *Stack) Enter(kind string) *Guard {
	id := ID(kind + "-" + uuid.NewString()[:8])
	s.mu.Lock()
	s.ids = append(s.ids, id)
	s.mu.Unlock()
	return &Guard{stack: s, id: id}
}

// Current returns the innermost active region.
func (s *Stack) Current() (ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return "", false
	}
	return s.ids[len(s.ids)-1], true
}

// Depth returns the number of active regions.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *Stack) pop(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ids)
	if n == 0 {
		return errors.Wrapf(ErrUnbalanced, "exit %s with no active region", id)
	}
	if top := s.ids[n-1]; top != id {
		return errors.Wrapf(ErrUnbalanced, "exit %s while %s is innermost", id, top)
	}
	s.ids = s.ids[:n-1]
	return nil
}

// Guard is the one-shot exit handle of an entered region.
type Guard struct {
	used  atomic.Uintptr
	stack *Stack
	id    ID
}

// ID returns the tag of the guarded region.
func (g *Guard) ID() ID { return g.id }

// Exit pops the region. Panics if the guard was already exited.
func (g *Guard) Exit() error {
	if g.used.Add(1) != 1 {
		panic("region: guard exited twice")
	}
	return g.stack.pop(g.id)
}

// Run enters a region on s, calls f inside it and exits on every path.
func (s *Stack) Run(kind string, f func(ID) error) (err error) {
	g := s.Enter(kind)
	defer func() {
		if exitErr := g.Exit(); exitErr != nil && err == nil {
			err = exitErr
		}
	}()
	return f(g.id)
}

// Enter pushes a region onto [Default].
func Enter(kind string) *Guard { return Default.Enter(kind) }

// Current returns the innermost region of [Default].
func Current() (ID, bool) { return Default.Current() }
