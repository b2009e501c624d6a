package post

import (
	"sync"

	"github.com/mirrorworlds/worldmesh/engine/wmutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

var (
	callbacks []PostCallback
	lock      sync.Mutex
)

// Post a callback to be executed on the main routine when other things are done
//
// Post can be called from any goroutine, so a lock protects the queue
func Post(f PostCallback) {
	lock.Lock()
	callbacks = append(callbacks, f)
	lock.Unlock()
}

// Tick is called by the main routine to run all posted callbacks
func Tick() {
	for { // loop until no callbacks are left
		lock.Lock()
		if len(callbacks) == 0 {
			lock.Unlock()
			break
		}
		// swap out the queue in the locked section
		callbacksCopy := callbacks
		callbacks = make([]PostCallback, 0, len(callbacks))
		lock.Unlock()

		for _, f := range callbacksCopy {
			wmutils.RunPanicless(f)
		}
	}
}
