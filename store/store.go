package store

import (
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"

	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/consts"
	"github.com/mirrorworlds/worldmesh/engine/post"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/store/backend/filesystem"
	"github.com/mirrorworlds/worldmesh/store/backend/sqlstore"
	"github.com/mirrorworlds/worldmesh/store/common"
	"github.com/mirrorworlds/worldmesh/world"
)

// SaveCallbackFunc is the callback type of Store.Save
type SaveCallbackFunc func(err error)

// DeleteCallbackFunc is the callback type of Store.Delete
type DeleteCallbackFunc func(err error)

// LoadAllCallbackFunc is the callback type of Store.LoadAll
type LoadAllCallbackFunc func(records []*world.Record, err error)

type saveRequest struct {
	record   *world.Record
	callback SaveCallbackFunc
}

type deleteRequest struct {
	record   *world.Record
	callback DeleteCallbackFunc
}

type loadAllRequest struct {
	callback LoadAllCallbackFunc
}

// Store is the durable side of the world registry. Operations are queued and
// executed serially on a single storage goroutine so database I/O never runs
// on the main routine; callbacks are posted back to the main routine.
type Store struct {
	cfg    *config.StorageConfig
	engine storecommon.WorldStorage

	operationQueue   *xnsyncutil.SyncQueue
	routineTerminate *xnsyncutil.OneTimeCond

	recentWarnedQueueLen int
}

// NewStore creates a Store on the configured backend and starts its storage routine
func NewStore(cfg *config.StorageConfig) *Store {
	s := &Store{
		cfg:              cfg,
		operationQueue:   xnsyncutil.NewSyncQueue(),
		routineTerminate: xnsyncutil.NewOneTimeCond(),
	}
	go s.storageRoutine()
	return s
}

// NewStoreWithEngine creates a Store on an already-open backend
func NewStoreWithEngine(engine storecommon.WorldStorage) *Store {
	s := &Store{
		engine:           engine,
		operationQueue:   xnsyncutil.NewSyncQueue(),
		routineTerminate: xnsyncutil.NewOneTimeCond(),
	}
	go s.storageRoutine()
	return s
}

// LoadAll reads every persisted world record
func (s *Store) LoadAll(callback LoadAllCallbackFunc) {
	s.operationQueue.Push(loadAllRequest{callback: callback})
	s.checkOperationQueueLen()
}

// Save persists the record, assigning the generated id back onto it when the
// record was not persisted before
func (s *Store) Save(record *world.Record, callback SaveCallbackFunc) {
	s.operationQueue.Push(saveRequest{record: record, callback: callback})
	s.checkOperationQueueLen()
}

// Delete removes the persisted record and its dependent rows
func (s *Store) Delete(record *world.Record, callback DeleteCallbackFunc) {
	s.operationQueue.Push(deleteRequest{record: record, callback: callback})
	s.checkOperationQueueLen()
}

func (s *Store) checkOperationQueueLen() {
	qlen := s.operationQueue.Len()
	if qlen > consts.STORAGE_QUEUE_WARN_THRESHOLD && qlen%consts.STORAGE_QUEUE_WARN_THRESHOLD == 0 && s.recentWarnedQueueLen != qlen {
		wmlog.Warnf("store: operation queue length = %d", qlen)
		s.recentWarnedQueueLen = qlen
	}
}

// Shutdown stops the storage routine after the queued operations are done
func (s *Store) Shutdown() {
	s.operationQueue.Close()
	s.routineTerminate.Wait()
}

func (s *Store) assureEngineReady() (err error) {
	if s.engine != nil {
		return nil
	}

	cfg := s.cfg
	if cfg == nil {
		wmlog.Panicf("store: no backend engine and no storage config")
	}
	switch cfg.Type {
	case "mysql", "sqlite":
		s.engine, err = sqlstore.OpenSQL(cfg.Driver, cfg.Url)
	case "filesystem":
		s.engine, err = filesystem.OpenDirectory(cfg.Directory)
	default:
		wmlog.Panicf("store: unknown storage type: %s", cfg.Type)
	}
	return err
}

// runOp runs the operation, attempting one reconnect when the connection was
// lost. Failures beyond that are returned to the caller, never thrown.
func (s *Store) runOp(op func() error) error {
	err := s.assureEngineReady()
	if err != nil {
		return err
	}

	err = op()
	if err != nil && s.engine.IsEOF(err) {
		wmlog.Warnf("store: connection lost (%v), reconnecting ...", err)
		s.engine.Close()
		s.engine = nil
		if err = s.assureEngineReady(); err != nil {
			return err
		}
		err = op()
	}
	return err
}

func (s *Store) storageRoutine() {
	defer func() {
		if err := recover(); err != nil {
			wmlog.TraceError("store: storage routine paniced: %v, restarting ...", err)
			go s.storageRoutine() // restart the storage routine
		} else {
			// normal quit
			if s.engine != nil {
				s.engine.Close()
			}
			s.routineTerminate.Signal()
		}
	}()

	for {
		op := s.operationQueue.Pop()
		if op == nil { // store closed
			break
		}

		if saveReq, ok := op.(saveRequest); ok {
			if consts.DEBUG_SAVE_LOAD {
				wmlog.Debugf("store: SAVING %s ...", saveReq.record)
			}
			err := s.runOp(func() error {
				return s.engine.Save(saveReq.record)
			})
			if err != nil {
				wmlog.Errorf("store: save %s failed: %v", saveReq.record, err)
			}
			if saveReq.callback != nil {
				post.Post(func() {
					saveReq.callback(err)
				})
			}
		} else if deleteReq, ok := op.(deleteRequest); ok {
			err := s.runOp(func() error {
				return s.engine.Delete(deleteReq.record)
			})
			if err != nil {
				wmlog.Errorf("store: delete %s failed: %v", deleteReq.record, err)
			}
			if deleteReq.callback != nil {
				post.Post(func() {
					deleteReq.callback(err)
				})
			}
		} else if loadReq, ok := op.(loadAllRequest); ok {
			var records []*world.Record
			err := s.runOp(func() (opErr error) {
				records, opErr = s.engine.LoadAll()
				return
			})
			if err != nil {
				wmlog.Errorf("store: load all worlds failed: %v", err)
				records = nil
			}
			if loadReq.callback != nil {
				post.Post(func() {
					loadReq.callback(records, err)
				})
			}
		} else {
			wmlog.Panicf("store: unknown operation: %v", op)
		}
	}
}
