package block_stm

import (
	"context"
	"runtime"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var ErrExecutorPanic = errors.New("executor task panicked")

type Executor[T any, O Output] struct {
	ctx       context.Context
	txs       []T
	scheduler *Scheduler
	storage   Storage
	task      ExecutorTask[T, O]
	mvMemory  *MVMemory[O]
	logger    *zap.Logger

	i int
}

func NewExecutor[T any, O Output](
	ctx context.Context,
	txs []T,
	scheduler *Scheduler,
	storage Storage,
	task ExecutorTask[T, O],
	mvMemory *MVMemory[O],
	logger *zap.Logger,
	i int,
) *Executor[T, O] {
	return &Executor[T, O]{
		ctx:       ctx,
		txs:       txs,
		scheduler: scheduler,
		storage:   storage,
		task:      task,
		mvMemory:  mvMemory,
		logger:    logger.With(zap.Int("worker", i)),
		i:         i,
	}
}

// Invariant `num_active_tasks`:
//   - `NextTask` increases it if returns a valid task.
//   - `TryExecute` and `NeedsReexecution` don't change it if it returns a new valid task to run,
//     otherwise it decreases it.
func (e *Executor[T, O]) Run() error {
	task := NoTask
	for !e.scheduler.Done() {
		if !task.Valid() {
			// check for cancellation
			select {
			case <-e.ctx.Done():
				return e.ctx.Err()
			default:
			}

			task = e.scheduler.NextTask()
			if task.Kind == TaskKindNone {
				runtime.Gosched()
			}
			continue
		}

		next, err := e.runTask(task)
		if err != nil {
			task.Guard().Release()
			e.logger.Error("task failed", zap.Stringer("kind", task.Kind),
				zap.Int("txn", int(task.Version.Index)), zap.Error(err))
			return err
		}
		task = next
	}
	return nil
}

func (e *Executor[T, O]) runTask(task Task) (Task, error) {
	switch task.Kind {
	case TaskKindExecution:
		return e.TryExecute(task)
	case TaskKindValidation:
		return e.NeedsReexecution(task)
	default:
		return NoTask, errors.AssertionFailedf("run task of kind %s", task.Kind)
	}
}

func (e *Executor[T, O]) TryExecute(task Task) (Task, error) {
	version := task.Version
	e.scheduler.executedTxns.Add(1)

	// the previous incarnation's reads tell if a known dependency is still pending
	if version.Incarnation > 0 {
		if blocking, ok := e.mvMemory.FindBlockingRead(version.Index); ok &&
			e.scheduler.TryAddDependency(version.Index, blocking) {
			task.Guard().Release()
			return NoTask, nil
		}
	}

	view := NewMVMemoryView(e.storage, e.mvMemory.Data(), e.scheduler, version)
	status, err := e.execute(view)
	if err != nil {
		return NoTask, err
	}
	if _, suspended := view.Suspended(); suspended {
		task.Guard().Release()
		return NoTask, nil
	}
	if err := view.StorageErr(); err != nil {
		return NoTask, err
	}

	wroteNewLocation := e.mvMemory.Record(version, view.ReadSet(), status)
	e.scheduler.SetHalted(version.Index, status.Halts())
	return e.scheduler.FinishExecution(version, wroteNewLocation, task.Guard())
}

func (e *Executor[T, O]) NeedsReexecution(task Task) (Task, error) {
	version := task.Version
	e.scheduler.validatedTxns.Add(1)

	valid, err := e.mvMemory.ValidateReadSet(version.Index)
	if err != nil {
		return NoTask, err
	}
	if valid || !e.scheduler.TryAbort(version) {
		return e.scheduler.FinishValidation(task.Guard()), nil
	}

	e.mvMemory.ConvertWritesToEstimates(version.Index)
	return e.scheduler.FinishAbort(version, task.Guard())
}

func (e *Executor[T, O]) execute(view *MVMemoryView) (status ExecutionStatus[O], err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, suspended := view.Suspended(); suspended {
				// the task didn't handle the read error, the execution is discarded anyway
				return
			}
			err = errors.Wrapf(ErrExecutorPanic, "txn %d: %v", view.TxnIndex(), r)
		}
	}()
	return e.task.ExecuteTransaction(view, e.txs[view.TxnIndex()]), nil
}
