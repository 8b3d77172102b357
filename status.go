package block_stm

import (
	"sync"

	"github.com/cockroachdb/errors"
)

type Status uint

const (
	StatusReadyToExecute Status = iota
	StatusExecuting
	StatusExecuted
	StatusAborting
)

func (s Status) String() string {
	switch s {
	case StatusReadyToExecute:
		return "ready-to-execute"
	case StatusExecuting:
		return "executing"
	case StatusExecuted:
		return "executed"
	case StatusAborting:
		return "aborting"
	default:
		return "unknown"
	}
}

type StatusEntry struct {
	mutex sync.Mutex

	incarnation Incarnation
	status      Status
}

func (s *StatusEntry) Get() (Status, Incarnation) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.status, s.incarnation
}

func (s *StatusEntry) SetExecuting() (Incarnation, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status == StatusReadyToExecute {
		s.status = StatusExecuting
		return s.incarnation, true
	}
	return 0, false
}

// SetSuspended is called by Scheduler.TryAddDependency with the dependency lock held.
func (s *StatusEntry) SetSuspended() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// previous status must be EXECUTING
	s.status = StatusAborting
}

// SetExecuted is called by Scheduler.FinishExecution.
func (s *StatusEntry) SetExecuted(incarnation Incarnation) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status != StatusExecuting || s.incarnation != incarnation {
		return errors.AssertionFailedf("finish execution of incarnation %d, status %s at incarnation %d",
			incarnation, s.status, s.incarnation)
	}
	s.status = StatusExecuted
	return nil
}

func (s *StatusEntry) TryValidationAbort(incarnation Incarnation) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.incarnation == incarnation && s.status == StatusExecuted {
		s.status = StatusAborting
		return true
	}
	return false
}

// SetReadyToExecute bumps the incarnation of an aborted transaction.
func (s *StatusEntry) SetReadyToExecute() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status != StatusAborting {
		return errors.AssertionFailedf("resume txn in status %s", s.status)
	}
	s.incarnation++
	s.status = StatusReadyToExecute
	return nil
}
