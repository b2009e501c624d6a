package async

import (
	"sync"
	"testing"

	"time"

	"github.com/mirrorworlds/worldmesh/engine/post"
)

func TestNewAsyncJob(t *testing.T) {
	var wait sync.WaitGroup
	wait.Add(2)
	AppendAsyncJob("1", func() (res interface{}, err error) {
		wait.Done()
		return 1, nil
	}, func(res interface{}, err error) {
		println("returns", res.(int), err)
		wait.Done()
	})
	wait.Wait()
}

func TestAsyncJobsOfSameGroupRunInOrder(t *testing.T) {
	var wait sync.WaitGroup
	var order []int
	var lock sync.Mutex
	const N = 10
	wait.Add(N)
	for i := 0; i < N; i++ {
		i := i
		AppendAsyncJob("order", func() (res interface{}, err error) {
			lock.Lock()
			order = append(order, i)
			lock.Unlock()
			return nil, nil
		}, func(res interface{}, err error) {
			wait.Done()
		})
	}
	wait.Wait()
	lock.Lock()
	defer lock.Unlock()
	for i := 0; i < N; i++ {
		if order[i] != i {
			t.Errorf("job %d ran at position %d", order[i], i)
		}
	}
}

func init() {
	go func() {
		for {
			post.Tick()
			time.Sleep(time.Millisecond)
		}
	}()
}
