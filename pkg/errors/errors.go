package errors

import (
	"fmt"
)

var (
	// ErrNotFound is returned when a task, schedule, node or deployment doesn't exist.
	ErrNotFound = fmt.Errorf("not found")

	// ErrTaskStateConflict is returned when a task transition is attempted that the
	// state machine doesn't permit (eg. completing an already terminal task).
	// Under concurrency this means someone else got there first; don't retry.
	ErrTaskStateConflict = fmt.Errorf("task state conflict")

	// ErrScheduleStateConflict is the schedule equivalent of ErrTaskStateConflict.
	ErrScheduleStateConflict = fmt.Errorf("schedule state conflict")

	// ErrNodeStateConflict is the node equivalent of ErrTaskStateConflict.
	ErrNodeStateConflict = fmt.Errorf("node state conflict")

	// ErrNoOutputYet is returned when fetching the output of a task that hasn't terminated.
	ErrNoOutputYet = fmt.Errorf("no output yet")

	// ErrCannotAcquireLock is returned when an advisory lock is held elsewhere.
	// We fail fast rather than queue; callers wanting to wait must loop.
	ErrCannotAcquireLock = fmt.Errorf("cannot acquire lock")

	// ErrLockTimeout is returned when the function protected by an advisory lock
	// did not complete within its allotted time.
	ErrLockTimeout = fmt.Errorf("lock timeout")

	// ErrInvalidImage is returned when a rollout names a malformed image reference.
	ErrInvalidImage = fmt.Errorf("invalid image")

	// ErrImageNotFound is returned when a rollout names an image the registry doesn't have.
	ErrImageNotFound = fmt.Errorf("image not found")

	ErrInvalidArg  = fmt.Errorf("invalid arg")
	ErrMaxExceeded = fmt.Errorf("max length exceeded")
)
