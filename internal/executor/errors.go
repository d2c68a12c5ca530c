package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Mender/internal/classify"
	"github.com/shaiso/Mender/internal/domain"
)

// Ошибки выполнения шагов.
var (
	// ErrInvalidStep — шаг сконфигурирован неверно (нет селектора, url и т.п.).
	ErrInvalidStep = errors.New("invalid step configuration")

	// ErrStepTimeout — действие не завершилось за таймаут шага.
	ErrStepTimeout = errors.New("execution timeout")

	// ErrNoLauncher — Runner создан без Launcher.
	ErrNoLauncher = errors.New("browser launcher not configured")

	// ErrEmptyBatch — пакет без наборов переменных.
	ErrEmptyBatch = errors.New("batch has no variable sets")
)

// Failure — сбой действия шага с уже определённым классом.
//
// Все ошибки, выходящие из dispatch и гонки с таймером, оборачиваются
// в Failure. Классификатор читает Kind через ErrorKind и не разбирает
// сообщение повторно.
type Failure struct {
	Kind     domain.ErrorKind
	Severity domain.Severity
	Err      error
}

// Error реализует интерфейс error.
func (f *Failure) Error() string {
	return f.Err.Error()
}

// Unwrap возвращает исходную ошибку.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Timeout сообщает, что сбой — таймаут.
func (f *Failure) Timeout() bool {
	return f.Kind == domain.ErrorTimeout
}

// ErrorKind возвращает класс сбоя.
func (f *Failure) ErrorKind() domain.ErrorKind {
	return f.Kind
}

// newFailure классифицирует err и оборачивает его в Failure.
// Уже обёрнутая ошибка возвращается как есть.
func newFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	kind, severity := classify.Classify(err)
	return &Failure{Kind: kind, Severity: severity, Err: err}
}

// timeoutFailure — сбой от сработавшего таймера гонки.
func timeoutFailure(d time.Duration) *Failure {
	return &Failure{
		Kind:     domain.ErrorTimeout,
		Severity: classify.SeverityOf(domain.ErrorTimeout),
		Err:      fmt.Errorf("%w after %s", ErrStepTimeout, d),
	}
}

// invalidStep — ошибка конфигурации шага; лечению не подлежит.
func invalidStep(step domain.Step, format string, args ...any) error {
	return fmt.Errorf("%w: step %s (%s): %s", ErrInvalidStep, step.ID, step.Type, fmt.Sprintf(format, args...))
}
