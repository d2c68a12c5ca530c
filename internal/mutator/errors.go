package mutator

import "errors"

// Ошибки изменения workflow.
var (
	// ErrWorkflowNotFound — файл workflow не существует.
	ErrWorkflowNotFound = errors.New("workflow file not found")

	// ErrBackupNotFound — файл резервной копии не существует.
	ErrBackupNotFound = errors.New("backup file not found")

	// ErrIndexOutOfRange — индекс шага вне диапазона.
	ErrIndexOutOfRange = errors.New("step index out of range")

	// ErrStepNotFound — упавшего шага уже нет в документе.
	ErrStepNotFound = errors.New("failed step not found in workflow")

	// ErrValidationRejected — изменённый workflow не прошёл проверку.
	ErrValidationRejected = errors.New("updated workflow rejected by validation")

	// ErrSessionNotSuccessful — сессия лечения не завершилась успехом.
	ErrSessionNotSuccessful = errors.New("healing session is not successful")

	// ErrLocked — блокировку файла не удалось получить.
	ErrLocked = errors.New("workflow file is locked")
)
