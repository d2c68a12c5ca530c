// Package classify переводит сбой шага в ErrorContext.
//
// Классификация — чистая функция от ошибки: одинаковые тип и текст
// всегда дают одинаковые ErrorKind и Severity.
package classify
