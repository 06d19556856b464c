package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a job does not exist
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when an operation does not apply to the job's status
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrAlreadyQueued is returned when enqueuing a job that already has a queue entry
	ErrAlreadyQueued = errors.New("job already queued")
	// ErrNotQueued is returned when cancelling a job that is not QUEUED
	ErrNotQueued = errors.New("job not queued")
	// ErrAlreadyRegistered is returned when a job already exists for the same source file
	ErrAlreadyRegistered = errors.New("source already registered")
	// ErrAdmissionConflict is returned when the store refuses a second IN_PROGRESS job
	ErrAdmissionConflict = errors.New("another job is already in progress")
)

// ProbeError wraps a failure to read source metadata
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// EncodeError describes a failed rendition
type EncodeError struct {
	Quality Quality
	Message string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Quality, e.Message)
}

// PersistenceError wraps a job store failure
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
