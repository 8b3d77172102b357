package block_stm

import (
	"testing"

	"github.com/test-go/testify/require"
)

func finishExecution(t *testing.T, s *Scheduler, task Task, wroteNewLocation bool) Task {
	t.Helper()
	require.Equal(t, TaskKindExecution, task.Kind)
	next, err := s.FinishExecution(task.Version, wroteNewLocation, task.Guard())
	require.NoError(t, err)
	return next
}

func TestSchedulerSerial(t *testing.T) {
	s := NewScheduler(3)

	for i := TxnIndex(0); i < 3; i++ {
		task := s.NextTask()
		require.Equal(t, TaskKindExecution, task.Kind)
		require.Equal(t, TxnVersion{i, 0}, task.Version)

		next := finishExecution(t, s, task, true)
		require.Equal(t, NoTask, next)

		// validation of the executed txn comes before the next execution
		task = s.NextTask()
		require.Equal(t, TaskKindValidation, task.Kind)
		require.Equal(t, TxnVersion{i, 0}, task.Version)
		require.Equal(t, NoTask, s.FinishValidation(task.Guard()))
	}

	require.False(t, s.Done())
	require.Equal(t, NoTask, s.NextTask())
	require.True(t, s.Done())
	require.Equal(t, DoneTask, s.NextTask())
}

func TestSchedulerValidationFirst(t *testing.T) {
	s := NewScheduler(4)

	task0 := s.NextTask()
	next := finishExecution(t, s, task0, true)
	require.Equal(t, NoTask, next)

	// validation_idx < execution_idx, txn 0 is validated before txn 1 executes
	task := s.NextTask()
	require.Equal(t, TaskKindValidation, task.Kind)
	require.Equal(t, TxnIndex(0), task.Version.Index)
	s.FinishValidation(task.Guard())

	task = s.NextTask()
	require.Equal(t, TaskKindExecution, task.Kind)
	require.Equal(t, TxnIndex(1), task.Version.Index)

	// validation of the executing txn 1 is skipped
	require.Equal(t, NoTask, s.NextTask())

	// finishing an execution below validation_idx with the same locations returns its own validation
	next = finishExecution(t, s, task, false)
	require.Equal(t, TaskKindValidation, next.Kind)
	require.Equal(t, TxnVersion{1, 0}, next.Version)
	require.True(t, task.Guard() == next.Guard())
	s.FinishValidation(next.Guard())
}

func TestSchedulerDependency(t *testing.T) {
	s := NewScheduler(3)

	task0 := s.NextVersionToExecute()
	task1 := s.NextVersionToExecute()
	task2 := s.NextVersionToExecute()
	require.Equal(t, TxnIndex(2), task2.Version.Index)

	// txn 2 depends on txn 0 which is still executing
	require.True(t, s.TryAddDependency(2, 0))
	task2.Guard().Release()
	status, _ := s.txn_status[2].Get()
	require.Equal(t, StatusAborting, status)

	finishExecution(t, s, task1, false)
	finishExecution(t, s, task0, false)

	// txn 2 is ready again with a new incarnation
	status, incarnation := s.txn_status[2].Get()
	require.Equal(t, StatusReadyToExecute, status)
	require.Equal(t, Incarnation(1), incarnation)

	// dependency on executed txn is resolved immediately
	require.False(t, s.TryAddDependency(2, 0))

	var reexecuted bool
	for i := 0; i < 10 && !reexecuted; i++ {
		task := s.NextTask()
		switch task.Kind {
		case TaskKindExecution:
			require.Equal(t, TxnVersion{2, 1}, task.Version)
			reexecuted = true
			finishExecution(t, s, task, false)
		case TaskKindValidation:
			s.FinishValidation(task.Guard())
		}
	}
	require.True(t, reexecuted)
}

func TestSchedulerTryAbortOnce(t *testing.T) {
	s := NewScheduler(2)

	task := s.NextVersionToExecute()
	finishExecution(t, s, task, true)

	v1 := s.NextVersionToValidate()
	require.Equal(t, TaskKindValidation, v1.Kind)
	// a second validator of the same incarnation
	v2 := Task{Kind: TaskKindValidation, Version: v1.Version, guard: s.newGuard()}

	require.True(t, s.TryAbort(v1.Version))
	require.False(t, s.TryAbort(v2.Version))
	require.Equal(t, NoTask, s.FinishValidation(v2.Guard()))

	next, err := s.FinishAbort(v1.Version, v1.Guard())
	require.NoError(t, err)
	require.Equal(t, TaskKindExecution, next.Kind)
	require.Equal(t, TxnVersion{0, 1}, next.Version)

	// the old incarnation can't be aborted anymore
	require.False(t, s.TryAbort(v1.Version))
	finishExecution(t, s, next, false)
}

func TestSchedulerInvariantViolation(t *testing.T) {
	s := NewScheduler(2)

	// finishing an execution that never started
	_, err := s.FinishExecution(TxnVersion{1, 0}, false, nil)
	require.Error(t, err)
	require.True(t, IsInvariantViolation(err))

	task := s.NextVersionToExecute()
	_, err = s.FinishExecution(TxnVersion{0, 3}, false, task.Guard())
	require.True(t, IsInvariantViolation(err))

	_, err = s.FinishAbort(TxnVersion{1, 0}, nil)
	require.True(t, IsInvariantViolation(err))
}

func TestSchedulerHalt(t *testing.T) {
	s := NewScheduler(6)

	var tasks []Task
	for i := 0; i < 4; i++ {
		tasks = append(tasks, s.NextVersionToExecute())
	}

	// txn 2 halts the block
	s.SetHalted(2, true)
	require.Equal(t, TxnIndex(3), s.StopIdx())
	for _, task := range tasks {
		finishExecution(t, s, task, true)
	}
	require.Equal(t, NoTask, s.NextVersionToExecute())

	// a higher halt don't move the stop index
	s.SetHalted(4, true)
	require.Equal(t, TxnIndex(3), s.StopIdx())

	// validate 0..2 and finish
	for i := 0; i < 10 && !s.Done(); i++ {
		task := s.NextTask()
		if task.Kind == TaskKindValidation {
			require.True(t, task.Version.Index < 3)
			s.FinishValidation(task.Guard())
		}
		require.NotEqual(t, TaskKindExecution, task.Kind)
	}
	require.True(t, s.Done())
}

func TestSchedulerLiftHalt(t *testing.T) {
	s := NewScheduler(6)

	task0 := s.NextVersionToExecute()
	task1 := s.NextVersionToExecute()
	s.SetHalted(1, true)
	s.SetHalted(4, true)
	require.Equal(t, TxnIndex(2), s.StopIdx())

	// txn 1 is re-executed and doesn't halt anymore, stop at the next halted txn
	s.SetHalted(1, false)
	require.Equal(t, TxnIndex(5), s.StopIdx())
	s.SetHalted(4, false)
	require.Equal(t, TxnIndex(6), s.StopIdx())

	finishExecution(t, s, task0, true)
	finishExecution(t, s, task1, true)

	executed := map[TxnIndex]bool{}
	for i := 0; i < 100 && !s.Done(); i++ {
		task := s.NextTask()
		switch task.Kind {
		case TaskKindExecution:
			executed[task.Version.Index] = true
			finishExecution(t, s, task, true)
		case TaskKindValidation:
			s.FinishValidation(task.Guard())
		}
	}
	require.True(t, s.Done())
	require.Len(t, executed, 4)
}

func TestTaskGuardRelease(t *testing.T) {
	s := NewScheduler(1)
	guard := s.newGuard()
	require.Equal(t, uint64(1), s.num_active_tasks.Load())
	guard.Release()
	guard.Release()
	require.Equal(t, uint64(0), s.num_active_tasks.Load())

	var nilGuard *TaskGuard
	nilGuard.Release()
}
