package block_stm

import (
	"github.com/cockroachdb/errors"
)

// MVMemory implements `Algorithm 2 The MVMemory module`
type MVMemory[O Output] struct {
	data *MVData
	lio  *TxnLastInputOutput[O]
}

func NewMVMemory[O Output](block_size int) *MVMemory[O] {
	return &MVMemory[O]{
		data: NewMVData(),
		lio:  NewTxnLastInputOutput[O](block_size),
	}
}

func (mv *MVMemory[O]) Data() *MVData {
	return mv.data
}

func (mv *MVMemory[O]) LastInputOutput() *TxnLastInputOutput[O] {
	return mv.lio
}

// Record applies the write set of the execution, removes the keys written by the previous
// incarnation but not by this one, and supersedes the recorded read set and result.
// Returns if it wrote to a key that the previous incarnation didn't write.
func (mv *MVMemory[O]) Record(version TxnVersion, readSet ReadSet, status ExecutionStatus[O]) bool {
	writes := normalizeWrites(status.Writes())
	newLocations := make([]Key, 0, len(writes))

	// apply_write_set
	for _, pair := range writes {
		mv.data.Write(pair.Key, pair.Value, version)
		newLocations = append(newLocations, pair.Key)
	}

	wroteNewLocation := mv.rcuUpdateWrittenLocations(version.Index, newLocations)
	mv.lio.Record(version, readSet, newLocations, status)
	return wroteNewLocation
}

// newLocations are sorted
func (mv *MVMemory[O]) rcuUpdateWrittenLocations(txn TxnIndex, newLocations []Key) bool {
	prevLocations := mv.lio.WrittenKeys(txn)

	var wroteNewLocation bool
	DiffOrderedList(prevLocations, newLocations, func(key Key, is_new bool) bool {
		if is_new {
			wroteNewLocation = true
		} else {
			mv.data.Delete(key, txn)
		}
		return true
	})
	return wroteNewLocation
}

func (mv *MVMemory[O]) ConvertWritesToEstimates(txn TxnIndex) {
	for _, key := range mv.lio.WrittenKeys(txn) {
		mv.data.WriteEstimate(key, txn)
	}
}

func (mv *MVMemory[O]) Read(key Key, txn TxnIndex) (Value, TxnVersion, error) {
	return mv.data.Read(key, txn)
}

// ValidateReadSet checks that every read of the latest execution still resolves to the same version.
func (mv *MVMemory[O]) ValidateReadSet(txn TxnIndex) (bool, error) {
	readSet, ok := mv.lio.ReadSet(txn)
	if !ok {
		return false, errors.AssertionFailedf("validating txn %d without recorded read set", txn)
	}
	for _, desc := range readSet {
		_, version, err := mv.data.Read(desc.Key, txn)
		switch {
		case errors.Is(err, ErrNotFound):
			if desc.Version.Valid() {
				// previously read entry from data, now NOT_FOUND
				return false, nil
			}
		case err == nil:
			if version != desc.Version {
				// read some entry, but not the same as before
				return false, nil
			}
		default:
			// must be ErrReadError, read an ESTIMATE
			return false, nil
		}
	}
	return true, nil
}

// FindBlockingRead re-reads the read set of the previous incarnation, returns the first
// transaction that left an ESTIMATE on one of the keys.
func (mv *MVMemory[O]) FindBlockingRead(txn TxnIndex) (TxnIndex, bool) {
	readSet, ok := mv.lio.ReadSet(txn)
	if !ok {
		return 0, false
	}
	for _, desc := range readSet {
		_, _, err := mv.data.Read(desc.Key, txn)
		var readErr ErrReadError
		if errors.As(err, &readErr) {
			return readErr.BlockingTxn, true
		}
	}
	return 0, false
}
