package queuify

import "errors"

var (
	// ErrQueueEmpty signals a zero-item condition, not a store failure.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrQueueFull signals a bounded queue at capacity, not a store failure.
	ErrQueueFull = errors.New("queue is full")

	// ErrNegativeTimeout is returned when a blocking operation is given a
	// negative timeout.
	ErrNegativeTimeout = errors.New("'timeout' must be a non-negative number")

	// ErrTaskDoneTooMany is returned when TaskDone is called without a
	// matching outstanding item.
	ErrTaskDoneTooMany = errors.New("task_done() called too many times")

	// ErrQueueFileCorrupted is returned by the disk engine when an existing
	// backing file does not match the expected schema. It is fatal: the file
	// must be recreated, never silently reshaped.
	ErrQueueFileCorrupted = errors.New("queue file is modified or corrupted")
)
