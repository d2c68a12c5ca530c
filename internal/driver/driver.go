package driver

import (
	"context"
	"time"
)

// WaitCondition — состояние элемента, которого ждёт WaitFor.
type WaitCondition string

const (
	WaitVisible  WaitCondition = "visible"
	WaitHidden   WaitCondition = "hidden"
	WaitAttached WaitCondition = "attached"
	WaitDetached WaitCondition = "detached"
)

// ParseWaitCondition возвращает условие ожидания; пустая строка — visible.
func ParseWaitCondition(s string) WaitCondition {
	switch WaitCondition(s) {
	case WaitHidden, WaitAttached, WaitDetached:
		return WaitCondition(s)
	default:
		return WaitVisible
	}
}

// PageDriver — примитивные действия над одной страницей.
//
// Каждый вызов блокируется до завершения действия или отмены ctx.
// Ошибки уровня драйвера возвращаются как *Error.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error
	WaitFor(ctx context.Context, selector string, cond WaitCondition, timeout time.Duration) error
	Scroll(ctx context.Context, direction string, amount int) error
	Hover(ctx context.Context, selector string) error
	PressKey(ctx context.Context, key string) error
	Screenshot(ctx context.Context, path string) error
	ExtractText(ctx context.Context, selector string) ([]string, error)
	SwitchTab(ctx context.Context, index int) error

	// Интроспекция страницы.
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
}

// Session — изолированная сессия браузера одного выполнения.
type Session interface {
	PageDriver

	// Info возвращает описание браузера для ErrorContext.
	Info() Info

	// Close освобождает браузер. Повторный вызов безопасен.
	Close() error
}

// Info — описание браузера сессии.
type Info struct {
	BrowserType  string
	ViewportSize string
	UserAgent    string
}

// Launcher открывает новые сессии.
// Параллельные выполнения пакета получают разные сессии.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}
