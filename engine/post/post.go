// Package post hands callbacks from other goroutines to the goroutine owning a Queue.
package post

import (
	"sync"

	"github.com/xiaonanln/worldsync/engine/gwutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

// Queue collects posted callbacks until the owner routine calls Tick
type Queue struct {
	callbacks []PostCallback
	lock      sync.Mutex
}

// NewQueue creates a Queue
func NewQueue() *Queue {
	return &Queue{}
}

// Post a callback which will be executed when other things are done in the owner routine
//
// Post might be called from other goroutine, so we use a lock to protect the data
func (q *Queue) Post(f PostCallback) {
	q.lock.Lock()
	q.callbacks = append(q.callbacks, f)
	q.lock.Unlock()
}

// Len returns the number of callbacks waiting
func (q *Queue) Len() int {
	q.lock.Lock()
	n := len(q.callbacks)
	q.lock.Unlock()
	return n
}

// Tick is called by the owner routine to run all posted functions
func (q *Queue) Tick() {
	for { // loop until there is no callbacks posted anymore
		q.lock.Lock() // lock to check number of callbacks
		if len(q.callbacks) == 0 {
			q.lock.Unlock()
			break // all callbacked executed, quit
		}
		// switch callbacks in locked section
		callbacksCopy := q.callbacks
		q.callbacks = make([]PostCallback, 0, len(q.callbacks))
		q.lock.Unlock()

		for _, f := range callbacksCopy {
			gwutils.RunPanicless(f)
		}
	}
}
