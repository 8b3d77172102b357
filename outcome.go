package block_stm

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// OutcomeCollector extracts the final outputs in transaction order once the scheduler is done.
type OutcomeCollector[O Output] struct {
	outputs   []ExecutionStatus[O]
	chunkSize int
	workers   int
}

func NewOutcomeCollector[O Output](block_size, chunkSize, workers int) *OutcomeCollector[O] {
	return &OutcomeCollector[O]{
		outputs:   make([]ExecutionStatus[O], block_size),
		chunkSize: max(chunkSize, 1),
		workers:   max(workers, 1),
	}
}

// Collect copies the results of the transactions below stopIdx in parallel chunks,
// the transactions at or beyond stopIdx are marked StatusRetry.
// Returns TxnAbortError if the block is halted by an aborted transaction.
func (c *OutcomeCollector[O]) Collect(ctx context.Context, lio *TxnLastInputOutput[O], stopIdx TxnIndex) ([]ExecutionStatus[O], error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for start := 0; start < len(c.outputs); start += c.chunkSize {
		start, end := start, min(start+c.chunkSize, len(c.outputs))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return c.collectChunk(lio, stopIdx, start, end)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, status := range c.outputs[:min(int(stopIdx), len(c.outputs))] {
		if status.Kind == StatusAbort {
			return nil, &TxnAbortError{Index: TxnIndex(i), Err: status.Err}
		}
	}
	return c.outputs, nil
}

func (c *OutcomeCollector[O]) collectChunk(lio *TxnLastInputOutput[O], stopIdx TxnIndex, start, end int) error {
	for i := start; i < end; i++ {
		txn := TxnIndex(i)
		if txn >= stopIdx {
			c.outputs[i] = ExecutionStatus[O]{Kind: StatusRetry}
			continue
		}
		status, _, ok := lio.Status(txn)
		if !ok {
			return errors.AssertionFailedf("txn %d finished without output", txn)
		}
		c.outputs[i] = status
	}
	return nil
}
