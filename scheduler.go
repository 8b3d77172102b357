package block_stm

import (
	"fmt"
	"sync"
	"sync/atomic"
)

type TaskKind int

const (
	TaskKindNone TaskKind = iota
	TaskKindExecution
	TaskKindValidation
	TaskKindDone
)

func (k TaskKind) String() string {
	switch k {
	case TaskKindNone:
		return "none"
	case TaskKindExecution:
		return "execution"
	case TaskKindValidation:
		return "validation"
	case TaskKindDone:
		return "done"
	default:
		return "unknown"
	}
}

// TaskGuard accounts one unit of `num_active_tasks` for the task that owns it,
// the ownership is passed along when a task directly produces a follow-up task.
type TaskGuard struct {
	counter  *atomic.Uint64
	released bool
}

// Release gives back the unit, repeated calls are no-ops.
func (g *TaskGuard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	DecreaseAtomic(g.counter)
}

type Task struct {
	Kind    TaskKind
	Version TxnVersion
	guard   *TaskGuard
}

var (
	NoTask   = Task{Kind: TaskKindNone, Version: InvalidTxnVersion}
	DoneTask = Task{Kind: TaskKindDone, Version: InvalidTxnVersion}
)

// Valid returns if the task is an execution or validation task.
func (t Task) Valid() bool {
	return t.Kind == TaskKindExecution || t.Kind == TaskKindValidation
}

func (t Task) Guard() *TaskGuard {
	return t.guard
}

type TxDependency struct {
	mutex      sync.Mutex
	dependents []TxnIndex
}

func (t *TxDependency) Swap(new []TxnIndex) []TxnIndex {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	old := t.dependents
	t.dependents = new
	return old
}

// Scheduler implements the scheduler for the block-stm
// ref: `Algorithm 4 The Scheduler module, variables, utility APIs and next task logic`
type Scheduler struct {
	block_size int

	// An index that tracks the next transaction to try and execute.
	execution_idx atomic.Uint64
	// A similar index for tracking validation.
	validation_idx atomic.Uint64
	// Number of times validation_idx or execution_idx was decreased
	decrease_cnt atomic.Uint64
	// Number of ongoing validation and execution tasks
	num_active_tasks atomic.Uint64
	// Marker for completion
	done_marker atomic.Bool

	// No transaction at or beyond stop_idx is executed or validated,
	// it's one past the lowest halted transaction, or block_size.
	stop_idx   atomic.Uint64
	stop_mutex sync.Mutex
	halted     []bool

	// txn_idx to a mutex-protected set of dependent transaction indices
	txn_dependency []TxDependency
	// txn_idx to a mutex-protected pair (incarnation_number, status), where status ∈ {READY_TO_EXECUTE, EXECUTING, EXECUTED, ABORTING}.
	txn_status []StatusEntry

	// metrics
	executedTxns  atomic.Int64
	validatedTxns atomic.Int64
	abortedTxns   atomic.Int64
	readErrTxns   atomic.Int64
}

func NewScheduler(block_size int) *Scheduler {
	s := &Scheduler{
		block_size:     block_size,
		halted:         make([]bool, block_size),
		txn_dependency: make([]TxDependency, block_size),
		txn_status:     make([]StatusEntry, block_size),
	}
	s.stop_idx.Store(uint64(block_size))
	return s
}

func (s *Scheduler) Done() bool {
	return s.done_marker.Load()
}

func (s *Scheduler) BlockSize() int {
	return s.block_size
}

// StopIdx returns the index where the block is halted, or the block size.
func (s *Scheduler) StopIdx() TxnIndex {
	return TxnIndex(s.stop_idx.Load())
}

func (s *Scheduler) DecreaseExecutionIdx(target TxnIndex) {
	StoreMin(&s.execution_idx, uint64(target))
	s.decrease_cnt.Add(1)
}

func (s *Scheduler) DecreaseValidationIdx(target TxnIndex) {
	StoreMin(&s.validation_idx, uint64(target))
	s.decrease_cnt.Add(1)
}

func (s *Scheduler) CheckDone() {
	observed_cnt := s.decrease_cnt.Load()
	limit := s.stop_idx.Load()
	if s.execution_idx.Load() >= limit &&
		s.validation_idx.Load() >= limit &&
		s.num_active_tasks.Load() == 0 {
		if observed_cnt == s.decrease_cnt.Load() {
			s.done_marker.Store(true)
		}
	}
}

func (s *Scheduler) newGuard() *TaskGuard {
	IncreaseAtomic(&s.num_active_tasks)
	return &TaskGuard{counter: &s.num_active_tasks}
}

// TryIncarnate sets the transaction to EXECUTING, returns invalid version if it's not ready.
func (s *Scheduler) TryIncarnate(idx TxnIndex) TxnVersion {
	if uint64(idx) < s.stop_idx.Load() {
		incarnation, ok := s.txn_status[idx].SetExecuting()
		if ok {
			return TxnVersion{idx, incarnation}
		}
	}
	return InvalidTxnVersion
}

// NextVersionToExecute get the next transaction index to execute,
// returns NoTask if no task is available
func (s *Scheduler) NextVersionToExecute() Task {
	if s.execution_idx.Load() >= s.stop_idx.Load() {
		s.CheckDone()
		return NoTask
	}
	guard := s.newGuard()
	idx_to_execute := s.execution_idx.Add(1) - 1
	version := s.TryIncarnate(TxnIndex(idx_to_execute))
	if !version.Valid() {
		guard.Release()
		return NoTask
	}
	return Task{Kind: TaskKindExecution, Version: version, guard: guard}
}

// NextVersionToValidate get the next transaction index to validate,
// returns NoTask if no task is available
func (s *Scheduler) NextVersionToValidate() Task {
	if s.validation_idx.Load() >= s.stop_idx.Load() {
		s.CheckDone()
		return NoTask
	}
	guard := s.newGuard()
	idx_to_validate := s.validation_idx.Add(1) - 1
	if idx_to_validate < s.stop_idx.Load() {
		status, incarnation := s.txn_status[idx_to_validate].Get()
		if status == StatusExecuted {
			return Task{
				Kind:    TaskKindValidation,
				Version: TxnVersion{TxnIndex(idx_to_validate), incarnation},
				guard:   guard,
			}
		}
	}

	guard.Release()
	return NoTask
}

// NextTask returns the next task to execute or validate, validation of lower transactions comes first,
// returns NoTask if no task is available, and DoneTask once the block is finished.
func (s *Scheduler) NextTask() Task {
	if s.Done() {
		return DoneTask
	}

	validation_idx := s.validation_idx.Load()
	execution_idx := s.execution_idx.Load()
	if validation_idx < execution_idx {
		return s.NextVersionToValidate()
	}
	return s.NextVersionToExecute()
}

// TryAddDependency adds a dependency between two transactions, returns false if the blocking txn is already executed,
// in that case the caller should retry the read.
func (s *Scheduler) TryAddDependency(txn TxnIndex, blocking_txn TxnIndex) bool {
	entry := &s.txn_dependency[blocking_txn]
	entry.mutex.Lock()
	defer entry.mutex.Unlock()

	status, _ := s.txn_status[blocking_txn].Get()
	if status == StatusExecuted {
		// dependency resolved before locking
		return false
	}

	s.txn_status[txn].SetSuspended()
	entry.dependents = append(entry.dependents, txn)
	s.readErrTxns.Add(1)
	return true
}

func (s *Scheduler) ResumeDependencies(txns []TxnIndex) error {
	minIdx := TxnIndex(s.block_size)
	for _, txn := range txns {
		if err := s.txn_status[txn].SetReadyToExecute(); err != nil {
			return err
		}
		if txn < minIdx {
			minIdx = txn
		}
	}

	if minIdx < TxnIndex(s.block_size) {
		s.DecreaseExecutionIdx(minIdx)
	}
	return nil
}

// FinishExecution marks the execution finished, resumes the dependent transactions,
// and schedules the validation of txn, and of all the higher transactions if it wrote to a new location.
func (s *Scheduler) FinishExecution(version TxnVersion, wroteNewLocation bool, guard *TaskGuard) (Task, error) {
	if err := s.txn_status[version.Index].SetExecuted(version.Incarnation); err != nil {
		return NoTask, err
	}

	deps := s.txn_dependency[version.Index].Swap(nil)
	if err := s.ResumeDependencies(deps); err != nil {
		return NoTask, err
	}
	if s.validation_idx.Load() > uint64(version.Index) { // otherwise index already small enough
		if !wroteNewLocation {
			// schedule validation for current tx only, the guard is passed to the new task
			return Task{Kind: TaskKindValidation, Version: version, guard: guard}, nil
		}
		// schedule validation for txn_idx and higher txns
		s.DecreaseValidationIdx(version.Index)
	}
	guard.Release()
	return NoTask, nil
}

// TryAbort returns true for at most one caller for each incarnation,
// the winner is responsible to call FinishAbort.
func (s *Scheduler) TryAbort(version TxnVersion) bool {
	if s.txn_status[version.Index].TryValidationAbort(version.Incarnation) {
		s.abortedTxns.Add(1)
		return true
	}
	return false
}

// FinishAbort bumps the incarnation, schedules the validation of the higher transactions,
// and returns the re-execution of txn directly if possible.
func (s *Scheduler) FinishAbort(version TxnVersion, guard *TaskGuard) (Task, error) {
	txn := version.Index
	if err := s.txn_status[txn].SetReadyToExecute(); err != nil {
		return NoTask, err
	}
	s.DecreaseValidationIdx(txn + 1)
	if s.execution_idx.Load() > uint64(txn) {
		if next := s.TryIncarnate(txn); next.Valid() {
			return Task{Kind: TaskKindExecution, Version: next, guard: guard}, nil
		}
	}

	guard.Release()
	return NoTask, nil
}

// FinishValidation is called when the validation succeeds or lost the abort race.
func (s *Scheduler) FinishValidation(guard *TaskGuard) Task {
	guard.Release()
	return NoTask
}

// SetHalted records if the latest execution of txn halts the block (SkipRest or Abort),
// the stop index is kept at one past the lowest halted transaction.
// A halt is lifted when a re-execution of txn no longer halts, the transactions beyond
// it are then executed and validated again.
func (s *Scheduler) SetHalted(txn TxnIndex, halted bool) {
	s.stop_mutex.Lock()
	defer s.stop_mutex.Unlock()

	if s.halted[txn] == halted {
		return
	}
	s.halted[txn] = halted
	if halted {
		StoreMin(&s.stop_idx, uint64(txn)+1)
		return
	}

	if s.stop_idx.Load() != uint64(txn)+1 {
		return
	}
	stop := uint64(s.block_size)
	for i := int(txn) + 1; i < s.block_size; i++ {
		if s.halted[i] {
			stop = uint64(i) + 1
			break
		}
	}
	s.stop_idx.Store(stop)
	s.DecreaseExecutionIdx(txn + 1)
	s.DecreaseValidationIdx(txn + 1)
}

func (s *Scheduler) Stats() string {
	return fmt.Sprintf("executed: %d, validated: %d, aborted: %d, readErr: %d",
		s.executedTxns.Load(), s.validatedTxns.Load(), s.abortedTxns.Load(), s.readErrTxns.Load())
}
