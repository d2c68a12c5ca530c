package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Mender/internal/domain"
)

// pattern — подстроки сообщения для одного класса ошибки.
type pattern struct {
	kind    domain.ErrorKind
	needles []string
}

// patterns — таблица подстрок. Порядок фиксирован: побеждает первое совпадение.
var patterns = []pattern{
	{domain.ErrorElementNotFound, []string{
		"element not found", "no such element", "selector not found",
		"element is not visible", "element is not clickable",
	}},
	{domain.ErrorTimeout, []string{
		"timeout", "timed out", "wait timeout", "navigation timeout",
	}},
	{domain.ErrorNetwork, []string{
		"network error", "connection refused", "dns resolution failed", "net::err_",
	}},
	{domain.ErrorPageLoad, []string{
		"page load failed", "navigation failed", "page crashed",
	}},
	{domain.ErrorJavaScript, []string{
		"javascript error", "script error", "evaluation failed",
	}},
	{domain.ErrorSelectorInvalid, []string{
		"invalid selector", "malformed selector", "syntax error in selector",
	}},
	{domain.ErrorPermissionDenied, []string{
		"permission denied", "access denied", "forbidden",
	}},
}

// severities — статическая таблица серьёзности.
var severities = map[domain.ErrorKind]domain.Severity{
	domain.ErrorElementNotFound:  domain.SeverityMedium,
	domain.ErrorTimeout:          domain.SeverityMedium,
	domain.ErrorNetwork:          domain.SeverityHigh,
	domain.ErrorPageLoad:         domain.SeverityHigh,
	domain.ErrorJavaScript:       domain.SeverityLow,
	domain.ErrorSelectorInvalid:  domain.SeverityLow,
	domain.ErrorPermissionDenied: domain.SeverityCritical,
	domain.ErrorUnknown:          domain.SeverityMedium,
}

// healableKinds — классы, лечимые по определению.
var healableKinds = map[domain.ErrorKind]bool{
	domain.ErrorElementNotFound: true,
	domain.ErrorTimeout:         true,
	domain.ErrorJavaScript:      true,
	domain.ErrorSelectorInvalid: true,
}

// Ключевые слова, делающие сбой лечимым независимо от класса.
var (
	timeoutKeywords = []string{"timeout", "timed out", "execution timeout", "wait timeout"}
	elementKeywords = []string{"element not found", "selector", "not visible", "not clickable"}
)

// Classify определяет класс и серьёзность ошибки.
//
// Порядок:
//  0. класс, уже определённый ошибкой в цепочке (метод ErrorKind)
//  1. тип ошибки в цепочке с признаком таймаута (имя типа или метод Timeout)
//  2. таблица подстрок сообщения без учёта регистра
//  3. запасные правила: "element" + "not found", "execution timeout"
//  4. unknown
func Classify(err error) (domain.ErrorKind, domain.Severity) {
	if err == nil {
		return domain.ErrorUnknown, SeverityOf(domain.ErrorUnknown)
	}

	var known interface{ ErrorKind() domain.ErrorKind }
	if errors.As(err, &known) {
		kind := known.ErrorKind()
		return kind, SeverityOf(kind)
	}

	if hasTimeoutType(err) {
		return domain.ErrorTimeout, SeverityOf(domain.ErrorTimeout)
	}

	kind := ClassifyMessage(err.Error())
	return kind, SeverityOf(kind)
}

// ClassifyMessage классифицирует текст сообщения.
func ClassifyMessage(msg string) domain.ErrorKind {
	lower := strings.ToLower(msg)

	for _, p := range patterns {
		for _, needle := range p.needles {
			if strings.Contains(lower, needle) {
				return p.kind
			}
		}
	}

	switch {
	case strings.Contains(lower, "element") && strings.Contains(lower, "not found"):
		return domain.ErrorElementNotFound
	case strings.Contains(lower, "execution timeout"):
		return domain.ErrorTimeout
	}

	return domain.ErrorUnknown
}

// SeverityOf возвращает серьёзность класса ошибки.
func SeverityOf(kind domain.ErrorKind) domain.Severity {
	if s, ok := severities[kind]; ok {
		return s
	}
	return domain.SeverityMedium
}

// IsHealable решает, имеет ли смысл лечение.
//
// critical никогда не лечится. Далее: лечимые классы, затем ключевые
// слова таймаута и элемента в сообщении, иначе — только low и medium.
func IsHealable(ec domain.ErrorContext) bool {
	if ec.Severity == domain.SeverityCritical {
		return false
	}

	if healableKinds[ec.Kind] {
		return true
	}

	lower := strings.ToLower(ec.Message)
	for _, kw := range timeoutKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, kw := range elementKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	return ec.Severity == domain.SeverityLow || ec.Severity == domain.SeverityMedium
}

// hasTimeoutType проходит цепочку ошибок и ищет тип с признаком таймаута.
func hasTimeoutType(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if t, ok := e.(interface{ Timeout() bool }); ok && t.Timeout() {
			return true
		}
		if strings.Contains(strings.ToLower(fmt.Sprintf("%T", e)), "timeout") {
			return true
		}
	}
	return false
}
