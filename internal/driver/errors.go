package driver

import (
	"context"
	"errors"
	"fmt"
)

// Kind — класс ошибки драйвера.
type Kind string

const (
	KindTimeout         Kind = "timeout"
	KindElementNotFound Kind = "element_not_found"
	KindNavigation      Kind = "navigation"
	KindNetwork         Kind = "network"
	KindJavaScript      Kind = "javascript"
	KindInvalidSelector Kind = "invalid_selector"
	KindPermission      Kind = "permission"
	KindUnknown         Kind = "unknown"
)

// phrase — текст, с которым ошибка попадает в сообщение.
func (k Kind) phrase() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindElementNotFound:
		return "element not found"
	case KindNavigation:
		return "navigation failed"
	case KindNetwork:
		return "network error"
	case KindJavaScript:
		return "javascript error"
	case KindInvalidSelector:
		return "invalid selector"
	case KindPermission:
		return "permission denied"
	default:
		return "driver error"
	}
}

// ErrSessionClosed — сессия уже закрыта.
var ErrSessionClosed = errors.New("browser session closed")

// Error — типизированная ошибка драйвера.
type Error struct {
	Op     string // операция: click, fill, navigate, ...
	Target string // селектор, url или клавиша
	Kind   Kind
	Err    error
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	msg := e.Op
	if e.Target != "" {
		msg += " " + e.Target
	}
	msg += ": " + e.Kind.phrase()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap возвращает базовую ошибку.
func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout сообщает, что ошибка — таймаут.
func (e *Error) Timeout() bool {
	return e.Kind == KindTimeout
}

// NewError создаёт ошибку драйвера.
func NewError(op, target string, kind Kind, err error) *Error {
	return &Error{Op: op, Target: target, Kind: kind, Err: err}
}

// Errorf создаёт ошибку драйвера с форматированным описанием.
func Errorf(op, target string, kind Kind, format string, args ...any) *Error {
	return NewError(op, target, kind, fmt.Errorf(format, args...))
}

// IsTimeout проверяет, является ли err таймаутом драйвера или контекста.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
