package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrTaskNotFound — задача с таким ID неизвестна.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask — задача с таким ID уже есть.
	ErrDuplicateTask = errors.New("task already exists")

	// ErrClosed — планировщик остановлен и задачи не принимает.
	ErrClosed = errors.New("scheduler closed")

	// ErrNoWorkflow — запрос без workflow.
	ErrNoWorkflow = errors.New("request has no workflow")
)
