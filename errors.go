package block_stm

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var ErrNotFound = errors.New("not found")

// ErrReadError is returned when a read observes an ESTIMATE written by BlockingTxn,
// it's not a real failure, the reading transaction will be re-executed after the dependency resolves.
type ErrReadError struct {
	BlockingTxn TxnIndex
}

func (e ErrReadError) Error() string {
	return fmt.Sprintf("read error: blocked by txn %d", e.BlockingTxn)
}

// TxnAbortError is returned by ExecuteBlock when the committed incarnation of a transaction aborted,
// the block is halted at that transaction.
type TxnAbortError struct {
	Index TxnIndex
	Err   error
}

func (e *TxnAbortError) Error() string {
	return fmt.Sprintf("txn %d aborted: %v", e.Index, e.Err)
}

func (e *TxnAbortError) Unwrap() error {
	return e.Err
}

// CommitError wraps failures of writing the final snapshot into a Committer.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit block snapshot: %v", e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// IsInvariantViolation reports whether err was caused by a broken scheduler invariant,
// such errors indicate a bug rather than a transaction failure.
func IsInvariantViolation(err error) bool {
	return errors.IsAssertionFailure(err)
}
