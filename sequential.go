package block_stm

import (
	"cmp"
	"context"
	"slices"

	"github.com/cockroachdb/errors"
)

// ExecuteBlockSequential executes the transactions one by one with the same semantics as ExecuteBlock,
// it's the reference the parallel execution must be equivalent to.
func ExecuteBlockSequential[T any, O Output](
	ctx context.Context,
	storage Storage,
	blk []T,
	task ExecutorTask[T, O],
	opts ...Option,
) ([]ExecutionStatus[O], error) {
	if len(blk) == 0 {
		return nil, nil
	}
	o := newOptions(opts)

	state := make(map[Key]Value)
	outputs := make([]ExecutionStatus[O], len(blk))
	stop := len(blk)
	for i, tx := range blk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		view := &sequentialView{storage: storage, state: state, txn: TxnIndex(i)}
		status := task.ExecuteTransaction(view, tx)
		if view.err != nil {
			return nil, view.err
		}
		outputs[i] = status
		for _, pair := range status.Writes() {
			state[pair.Key] = pair.Value
		}
		if status.Halts() {
			stop = i + 1
			break
		}
	}
	for i := stop; i < len(blk); i++ {
		outputs[i] = ExecutionStatus[O]{Kind: StatusRetry}
	}
	if last := outputs[stop-1]; last.Kind == StatusAbort {
		return nil, &TxnAbortError{Index: TxnIndex(stop - 1), Err: last.Err}
	}

	if o.committer != nil {
		changes := make([]KVPair, 0, len(state))
		for key, value := range state {
			changes = append(changes, KVPair{Key: key, Value: value})
		}
		slices.SortFunc(changes, func(a, b KVPair) int {
			return cmp.Compare(a.Key, b.Key)
		})
		if err := o.committer.Commit(changes); err != nil {
			return nil, &CommitError{Err: err}
		}
	}
	return outputs, nil
}

type sequentialView struct {
	storage Storage
	state   map[Key]Value
	txn     TxnIndex
	err     error
}

func (v *sequentialView) Get(key Key) (Value, error) {
	if value, ok := v.state[key]; ok {
		return value, nil
	}
	value, err := v.storage.Get(key)
	if err != nil {
		v.err = errors.Wrapf(err, "read %q from storage", key)
		return nil, v.err
	}
	return value, nil
}

func (v *sequentialView) TxnIndex() TxnIndex {
	return v.txn
}

func (v *sequentialView) Incarnation() Incarnation {
	return 0
}
