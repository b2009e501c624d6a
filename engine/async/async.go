package async

import (
	"sync"

	"golang.org/x/net/context"

	"github.com/mirrorworlds/worldmesh/engine/consts"
	"github.com/mirrorworlds/worldmesh/engine/post"
	"github.com/mirrorworlds/worldmesh/engine/wmutils"
)

var (
	asyncRunning, asyncCancelRunning = context.WithCancel(context.Background())
	numAsyncJobWorkersRunning        sync.WaitGroup
)

// AsyncCallback is called on the main routine with the result of an AsyncRoutine
type AsyncCallback func(res interface{}, err error)

func (ac AsyncCallback) Callback(res interface{}, err error) {
	if ac != nil {
		post.Post(func() {
			ac(res, err)
		})
	}
}

// AsyncRoutine is executed on a background worker goroutine
type AsyncRoutine func() (res interface{}, err error)

// AsyncJobWorker runs the jobs of one group serially
type AsyncJobWorker struct {
	jobQueue chan asyncJobItem
}

type asyncJobItem struct {
	routine  AsyncRoutine
	callback AsyncCallback
}

func newAsyncJobWorker() *AsyncJobWorker {
	ajw := &AsyncJobWorker{
		jobQueue: make(chan asyncJobItem, consts.ASYNC_JOB_QUEUE_MAXLEN),
	}
	numAsyncJobWorkersRunning.Add(1)
	go wmutils.RepeatUntilPanicless(ajw.loop)
	return ajw
}

func (ajw *AsyncJobWorker) appendJob(routine AsyncRoutine, callback AsyncCallback) {
	ajw.jobQueue <- asyncJobItem{routine, callback}
}

func (ajw *AsyncJobWorker) loop() {
	for item := range ajw.jobQueue {
		res, err := item.routine()
		item.callback.Callback(res, err)
	}
	numAsyncJobWorkersRunning.Done()
}

var (
	asyncJobWorkersLock sync.RWMutex
	asyncJobWorkers     = map[string]*AsyncJobWorker{}
)

func getAsyncJobWorker(group string) (ajw *AsyncJobWorker) {
	asyncJobWorkersLock.RLock()
	ajw = asyncJobWorkers[group]
	asyncJobWorkersLock.RUnlock()

	if ajw == nil {
		asyncJobWorkersLock.Lock()
		ajw = asyncJobWorkers[group]
		if ajw == nil {
			ajw = newAsyncJobWorker()
			asyncJobWorkers[group] = ajw
		}
		asyncJobWorkersLock.Unlock()
	}
	return
}

// AppendAsyncJob appends an async job to be executed on the worker goroutine of the group.
// Jobs of the same group are executed in order of arrival.
func AppendAsyncJob(group string, routine AsyncRoutine, callback AsyncCallback) {
	ajw := getAsyncJobWorker(group)
	ajw.appendJob(routine, callback)
}

// WaitClear waits for all async job workers to finish the queued jobs and quit
func WaitClear() bool {
	var cleared bool
	// Close all job queue workers
	asyncJobWorkersLock.Lock()
	if len(asyncJobWorkers) > 0 {
		for _, alw := range asyncJobWorkers {
			close(alw.jobQueue)
		}
		asyncJobWorkers = map[string]*AsyncJobWorker{}
		cleared = true
	}
	asyncJobWorkersLock.Unlock()

	// wait for all job workers to quit
	numAsyncJobWorkersRunning.Wait()
	return cleared
}
