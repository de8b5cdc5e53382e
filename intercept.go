// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/tensor"
)

// recorder collects the Variables read or written while it is active.
//
// The value of each Variable is saved when it is first seen, before any
// write, so that every recorded Variable can be put back when recording ends.
type recorder struct {
	stack *VariableStack
	saved []tensor.Tensor
}

// dispatch records one access to v.
func (r *recorder) dispatch(v *Variable) {
	if r.stack.Add(v) {
		r.saved = append(r.saved, v.get())
	}
}

// rewind puts back the values saved at first sight.
func (r *recorder) rewind() {
	for i, h := range r.stack.order {
		r.stack.vars[h].set(r.saved[i])
	}
}

var recorders struct {
	mu     sync.Mutex
	active []*recorder
}

// recording counts active recorders so notify can skip the lock.
var recording atomic.Int32

// notify reports an access to v to every active recorder. Nested discoveries
// are all informed, so an enclosing function learns about the Variables its
// inner combinators touch.
func notify(v *Variable) {
	if recording.Load() == 0 {
		return
	}
	recorders.mu.Lock()
	defer recorders.mu.Unlock()
	for _, r := range recorders.active {
		r.dispatch(v)
	}
}

// report notifies active recorders of every Variable in s. It replays a
// cached discovery to the enclosing ones.
func report(s *VariableStack) {
	for _, v := range s.All() {
		notify(v)
	}
}

func pushRecorder(r *recorder) {
	recorders.mu.Lock()
	recorders.active = append(recorders.active, r)
	recorders.mu.Unlock()
	recording.Add(1)
}

func popRecorder(r *recorder) error {
	recorders.mu.Lock()
	defer recorders.mu.Unlock()
	n := len(recorders.active)
	if n == 0 || recorders.active[n-1] != r {
		return errors.New("cellflow: discovery recorders exited out of order")
	}
	recorders.active[n-1] = nil
	recorders.active = recorders.active[:n-1]
	recording.Add(-1)
	return nil
}

var recorderPool = sync.Pool{
	New: func() any { return new(recorder) },
}

func acquireRecorder() *recorder {
	r := recorderPool.Get().(*recorder)
	r.stack = NewVariableStack()
	return r
}

// releaseRecorder returns r to the pool. The stack is handed to the caller
// and is not reused.
func releaseRecorder(r *recorder) {
	r.stack = nil
	clear(r.saved)
	r.saved = r.saved[:0]
	recorderPool.Put(r)
}
