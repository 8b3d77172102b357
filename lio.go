package block_stm

import "sync/atomic"

type txnInputOutput[O Output] struct {
	incarnation Incarnation
	readSet     ReadSet
	// keys are sorted
	writtenKeys []Key
	status      ExecutionStatus[O]
}

// TxnLastInputOutput records the read set, write set and result of the latest finished
// execution of each transaction, a new incarnation supersedes the previous record.
type TxnLastInputOutput[O Output] struct {
	entries []atomic.Pointer[txnInputOutput[O]]
}

func NewTxnLastInputOutput[O Output](block_size int) *TxnLastInputOutput[O] {
	return &TxnLastInputOutput[O]{
		entries: make([]atomic.Pointer[txnInputOutput[O]], block_size),
	}
}

func (lio *TxnLastInputOutput[O]) Record(version TxnVersion, readSet ReadSet, writtenKeys []Key, status ExecutionStatus[O]) {
	lio.entries[version.Index].Store(&txnInputOutput[O]{
		incarnation: version.Incarnation,
		readSet:     readSet,
		writtenKeys: writtenKeys,
		status:      status,
	})
}

// ReadSet returns false if the transaction never finished an execution.
func (lio *TxnLastInputOutput[O]) ReadSet(txn TxnIndex) (ReadSet, bool) {
	entry := lio.entries[txn].Load()
	if entry == nil {
		return nil, false
	}
	return entry.readSet, true
}

func (lio *TxnLastInputOutput[O]) WrittenKeys(txn TxnIndex) []Key {
	entry := lio.entries[txn].Load()
	if entry == nil {
		return nil
	}
	return entry.writtenKeys
}

// Status returns the result of the latest execution, and the incarnation that produced it.
func (lio *TxnLastInputOutput[O]) Status(txn TxnIndex) (ExecutionStatus[O], Incarnation, bool) {
	entry := lio.entries[txn].Load()
	if entry == nil {
		return ExecutionStatus[O]{}, 0, false
	}
	return entry.status, entry.incarnation, true
}

func (lio *TxnLastInputOutput[O]) Len() int {
	return len(lio.entries)
}
