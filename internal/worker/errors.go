package worker

import "errors"

// Ошибки воркера.
var (
	// ErrInvalidRequest — сообщение execution.requested без workflow
	// или с workflow, не прошедшим проверку.
	ErrInvalidRequest = errors.New("invalid execution request")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)
