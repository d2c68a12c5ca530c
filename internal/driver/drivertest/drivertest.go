// Package drivertest предоставляет управляемый driver.PageDriver для тестов.
package drivertest

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/Mender/internal/driver"
)

// Call — записанный вызов драйвера.
type Call struct {
	Op   string
	Args []string
}

// Rule — поведение операции: возвращённая ошибка становится результатом.
type Rule func(ctx context.Context) error

// Driver — PageDriver с правилами на операции.
// Без правил каждая операция успешна.
type Driver struct {
	mu    sync.Mutex
	calls []Call
	rules map[string]Rule

	PageURL     string
	PageTitle   string
	PageContent string

	// Texts — результат ExtractText по селектору.
	Texts map[string][]string

	// IntrospectErr — ошибка URL/Title/Content (для проверки снимков).
	IntrospectErr error

	closed bool
}

// New создаёт Driver.
func New() *Driver {
	return &Driver{
		rules:       make(map[string]Rule),
		Texts:       make(map[string][]string),
		PageURL:     "https://example.test/",
		PageTitle:   "Example",
		PageContent: "<html><body></body></html>",
	}
}

// On задаёт правило для операции над целью. Пустая цель — любая.
func (d *Driver) On(op, target string, rule Rule) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules[op+"|"+target] = rule
	return d
}

// Calls возвращает копию записанных вызовов.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Ops возвращает записанные операции в формате "op target".
func (d *Driver) Ops() []string {
	calls := d.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
		if len(c.Args) > 0 {
			out[i] += " " + c.Args[0]
		}
	}
	return out
}

// Closed сообщает, закрыта ли сессия.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) do(ctx context.Context, op string, args ...string) error {
	d.mu.Lock()
	d.calls = append(d.calls, Call{Op: op, Args: args})
	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	rule, ok := d.rules[op+"|"+target]
	if !ok {
		rule = d.rules[op+"|"]
	}
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if rule == nil {
		return nil
	}
	return rule(ctx)
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.do(ctx, "navigate", url); err != nil {
		return err
	}
	d.mu.Lock()
	d.PageURL = url
	d.mu.Unlock()
	return nil
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	return d.do(ctx, "click", selector)
}

func (d *Driver) Fill(ctx context.Context, selector, value string) error {
	return d.do(ctx, "fill", selector, value)
}

func (d *Driver) SelectOption(ctx context.Context, selector, value string) error {
	return d.do(ctx, "select", selector, value)
}

func (d *Driver) WaitFor(ctx context.Context, selector string, cond driver.WaitCondition, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := d.do(ctx, "wait", selector, string(cond))
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return driver.NewError("wait", selector, driver.KindTimeout, err)
	}
	return err
}

func (d *Driver) Scroll(ctx context.Context, direction string, amount int) error {
	return d.do(ctx, "scroll", direction)
}

func (d *Driver) Hover(ctx context.Context, selector string) error {
	return d.do(ctx, "hover", selector)
}

func (d *Driver) PressKey(ctx context.Context, key string) error {
	return d.do(ctx, "press_key", key)
}

func (d *Driver) Screenshot(ctx context.Context, path string) error {
	return d.do(ctx, "screenshot", path)
}

func (d *Driver) ExtractText(ctx context.Context, selector string) ([]string, error) {
	if err := d.do(ctx, "extract", selector); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Texts[selector]...), nil
}

func (d *Driver) SwitchTab(ctx context.Context, index int) error {
	return d.do(ctx, "switch_tab")
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.PageURL, d.IntrospectErr
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.PageTitle, d.IntrospectErr
}

func (d *Driver) Content(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.PageContent, d.IntrospectErr
}

func (d *Driver) Info() driver.Info {
	return driver.Info{BrowserType: "stub", ViewportSize: "1280x800", UserAgent: "drivertest"}
}

// Close помечает сессию закрытой.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Block — правило, которое не завершается до отмены ctx.
func Block(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Fail возвращает правило, всегда завершающееся ошибкой err.
func Fail(err error) Rule {
	return func(context.Context) error { return err }
}

// Sleep возвращает правило, успешное после задержки d.
func Sleep(d time.Duration) Rule {
	return func(ctx context.Context) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Launcher выдаёт новый Driver на каждый Launch и считает параллельные сессии.
type Launcher struct {
	// Setup настраивает каждый новый Driver (опционально).
	Setup func(d *Driver)

	// Err — ошибка запуска.
	Err error

	mu        sync.Mutex
	active    int
	maxActive int
	drivers   []*Driver
}

// Launch открывает новую сессию.
func (l *Launcher) Launch(ctx context.Context) (driver.Session, error) {
	if l.Err != nil {
		return nil, l.Err
	}

	d := New()
	if l.Setup != nil {
		l.Setup(d)
	}

	l.mu.Lock()
	l.active++
	l.maxActive = max(l.maxActive, l.active)
	l.drivers = append(l.drivers, d)
	l.mu.Unlock()

	return &session{Driver: d, launcher: l}, nil
}

// MaxActive возвращает максимальное число одновременно открытых сессий.
func (l *Launcher) MaxActive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxActive
}

// Active возвращает число открытых сессий.
func (l *Launcher) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Drivers возвращает все выданные драйверы.
func (l *Launcher) Drivers() []*Driver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Driver(nil), l.drivers...)
}

type session struct {
	*Driver
	launcher *Launcher
	once     sync.Once
}

func (s *session) Close() error {
	s.once.Do(func() {
		s.launcher.mu.Lock()
		s.launcher.active--
		s.launcher.mu.Unlock()
	})
	return s.Driver.Close()
}
