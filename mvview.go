package block_stm

import (
	"github.com/cockroachdb/errors"
)

// MVMemoryView wraps `MVData` for execution of a single transaction,
// it's not thread-safe, there's a dedicated instance for each execution.
type MVMemoryView struct {
	storage   Storage
	data      *MVData
	scheduler *Scheduler

	version TxnVersion
	readSet ReadSet
	// the first observed value of each key, so repeated reads are consistent
	reads map[Key]Value

	// set when a read registered a dependency, the execution result is discarded
	blockingTxn TxnIndex
	suspended   bool
	// failure of the base storage
	storageErr error
}

var _ View = (*MVMemoryView)(nil)

func NewMVMemoryView(storage Storage, data *MVData, scheduler *Scheduler, version TxnVersion) *MVMemoryView {
	return &MVMemoryView{
		storage:   storage,
		data:      data,
		scheduler: scheduler,
		version:   version,
		reads:     make(map[Key]Value),
	}
}

func (s *MVMemoryView) TxnIndex() TxnIndex {
	return s.version.Index
}

func (s *MVMemoryView) Incarnation() Incarnation {
	return s.version.Incarnation
}

func (s *MVMemoryView) Get(key Key) (Value, error) {
	if s.suspended {
		return nil, ErrReadError{BlockingTxn: s.blockingTxn}
	}
	if s.storageErr != nil {
		return nil, s.storageErr
	}
	if value, ok := s.reads[key]; ok {
		return value, nil
	}

	for {
		value, version, err := s.data.Read(key, s.version.Index)
		switch err := err.(type) {
		case nil:
			s.readSet = append(s.readSet, ReadDescriptor{key, version})
			s.reads[key] = value
			return value, nil
		case ErrReadError:
			// read ESTIMATE mark, suspend until the blocking txn finish
			if s.scheduler == nil || s.scheduler.TryAddDependency(s.version.Index, err.BlockingTxn) {
				s.suspended = true
				s.blockingTxn = err.BlockingTxn
				return nil, err
			}
			// dependency resolved in the meantime, retry the read
			continue
		}

		// record version ⊥ when reading from storage
		value, err = s.storage.Get(key)
		if err != nil {
			s.storageErr = errors.Wrapf(err, "read %q from storage", key)
			return nil, s.storageErr
		}
		s.readSet = append(s.readSet, ReadDescriptor{key, InvalidTxnVersion})
		s.reads[key] = value
		return value, nil
	}
}

// Suspended returns the blocking transaction if the execution hit a dependency.
func (s *MVMemoryView) Suspended() (TxnIndex, bool) {
	return s.blockingTxn, s.suspended
}

func (s *MVMemoryView) StorageErr() error {
	return s.storageErr
}

func (s *MVMemoryView) ReadSet() ReadSet {
	return s.readSet
}
