package block_stm

// Output is the result of a successful transaction execution.
type Output interface {
	// GetWrites returns the writes of the transaction, a nil value deletes the key.
	GetWrites() []KVPair
}

type ExecutionStatusKind int

const (
	StatusSuccess ExecutionStatusKind = iota
	// StatusSkipRest keeps the output, but all the following transactions are skipped
	StatusSkipRest
	// StatusAbort halts the block with an error
	StatusAbort
	// StatusRetry marks the transactions skipped by an early halt
	StatusRetry
)

func (k ExecutionStatusKind) String() string {
	switch k {
	case StatusSuccess:
		return "success"
	case StatusSkipRest:
		return "skip-rest"
	case StatusAbort:
		return "abort"
	case StatusRetry:
		return "retry"
	default:
		return "unknown"
	}
}

type ExecutionStatus[O Output] struct {
	Kind   ExecutionStatusKind
	Output O
	// Err is set for StatusAbort
	Err error
}

func Success[O Output](output O) ExecutionStatus[O] {
	return ExecutionStatus[O]{Kind: StatusSuccess, Output: output}
}

func SkipRest[O Output](output O) ExecutionStatus[O] {
	return ExecutionStatus[O]{Kind: StatusSkipRest, Output: output}
}

func Abort[O Output](err error) ExecutionStatus[O] {
	return ExecutionStatus[O]{Kind: StatusAbort, Err: err}
}

// Halts returns if the status stops the execution of the following transactions.
func (s ExecutionStatus[O]) Halts() bool {
	return s.Kind == StatusSkipRest || s.Kind == StatusAbort
}

// Writes returns the write set, aborted transactions write nothing.
func (s ExecutionStatus[O]) Writes() []KVPair {
	if s.Kind != StatusSuccess && s.Kind != StatusSkipRest {
		return nil
	}
	return s.Output.GetWrites()
}

// Storage is the state of the parent block, consulted when no transaction in the block wrote the key.
type Storage interface {
	// Get returns nil if the key don't exist
	Get(Key) (Value, error)
}

// View is the state seen by a single transaction execution.
type View interface {
	// Get returns ErrReadError if the key is being written by a lower transaction that is not finished,
	// the execution should stop and return, it'll be retried after the dependency resolves.
	Get(Key) (Value, error)
	TxnIndex() TxnIndex
	Incarnation() Incarnation
}

// ExecutorTask executes the transactions, one instance is created for each worker, so the
// implementation can keep scratch state without synchronization.
type ExecutorTask[T any, O Output] interface {
	ExecuteTransaction(view View, txn T) ExecutionStatus[O]
}

// TaskFactory creates the ExecutorTask for a worker.
type TaskFactory[T any, O Output] func(worker int) ExecutorTask[T, O]
