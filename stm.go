package block_stm

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExecuteBlock executes the transactions in parallel, the result is equivalent to executing them
// one by one in order against storage.
//
// It returns the status of every transaction, the ones skipped by an early halt are marked StatusRetry,
// or TxnAbortError if a transaction aborted.
func ExecuteBlock[T any, O Output](
	ctx context.Context,
	storage Storage,
	blk []T,
	newTask TaskFactory[T, O],
	opts ...Option,
) ([]ExecutionStatus[O], error) {
	if len(blk) == 0 {
		return nil, nil
	}

	o := newOptions(opts)
	logger := o.logger.With(zap.Int("block_size", len(blk)))
	start := time.Now()

	blockSize := len(blk)
	scheduler := NewScheduler(blockSize)
	mv := NewMVMemory[O](blockSize)
	executors := min(o.config.Executors, blockSize)
	logger.Debug("execute block", zap.Int("executors", executors))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < executors; i++ {
		i := i
		g.Go(func() error {
			return NewExecutor(gctx, blk, scheduler, storage, newTask(i), mv, logger, i).Run()
		})
	}
	if err := g.Wait(); err != nil {
		if IsInvariantViolation(err) {
			logger.Error("scheduler invariant violated", zap.Error(err))
		}
		return nil, errors.Wrap(err, "parallel execution")
	}

	stopIdx := scheduler.StopIdx()
	halted := int(stopIdx) < blockSize
	o.metrics.observe(scheduler, halted, time.Since(start))
	if halted {
		logger.Info("block halted", zap.Int("stop_idx", int(stopIdx)))
	}
	logger.Debug("block executed", zap.String("stats", scheduler.Stats()), zap.Duration("elapsed", time.Since(start)))

	outputs, err := NewOutcomeCollector[O](blockSize, o.config.CollectChunkSize, executors).
		Collect(ctx, mv.LastInputOutput(), stopIdx)
	if err != nil {
		return nil, err
	}

	if o.committer != nil {
		changes, err := mv.Data().Snapshot(stopIdx)
		if err != nil {
			return nil, errors.AssertionFailedf("snapshot below txn %d: %v", stopIdx, err)
		}
		if err := o.committer.Commit(changes); err != nil {
			return nil, &CommitError{Err: err}
		}
	}
	return outputs, nil
}
