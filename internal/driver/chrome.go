package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"
)

// Значения по умолчанию для ChromeLauncher.
const (
	defaultLaunchRetries = 2
	defaultLaunchBackoff = 500 * time.Millisecond
	defaultViewportW     = 1280
	defaultViewportH     = 800
)

// ChromeConfig — конфигурация запуска Chrome.
type ChromeConfig struct {
	// RemoteURL — адрес DevTools уже запущенного браузера (ws://host:9222).
	// Если пусто — браузер запускается локально.
	RemoteURL string

	// ExecPath — путь к исполняемому файлу Chrome (опционально).
	ExecPath string

	Headless  bool
	UserAgent string

	// Width и Height — размер окна (default: 1280x800).
	Width  int
	Height int

	// LaunchRetries — число повторов запуска браузера (default: 2).
	LaunchRetries int

	// FS — файловая система для скриншотов (default: OS).
	FS afero.Fs

	Logger *slog.Logger
}

// ChromeLauncher открывает сессии Chrome через chromedp.
type ChromeLauncher struct {
	cfg    ChromeConfig
	logger *slog.Logger
}

// NewChromeLauncher создаёт ChromeLauncher.
func NewChromeLauncher(cfg ChromeConfig) *ChromeLauncher {
	if cfg.LaunchRetries < 0 {
		cfg.LaunchRetries = 0
	} else if cfg.LaunchRetries == 0 {
		cfg.LaunchRetries = defaultLaunchRetries
	}
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = defaultViewportW, defaultViewportH
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeLauncher{cfg: cfg, logger: logger}
}

// Launch открывает новую сессию с собственным браузером.
// Неудачный запуск повторяется с экспоненциальной задержкой.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	var session *chromeSession

	backoff := retry.WithMaxRetries(uint64(l.cfg.LaunchRetries), retry.NewExponential(defaultLaunchBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		s, err := l.launchOnce(ctx)
		if err != nil {
			l.logger.Warn("browser launch failed", "error", err)
			return retry.RetryableError(err)
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return session, nil
}

func (l *ChromeLauncher) launchOnce(ctx context.Context) (*chromeSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc

	// Браузер живёт дольше ctx запуска, поэтому аллокатор строится от
	// context.WithoutCancel.
	base := context.WithoutCancel(ctx)

	if l.cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(base, l.cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", l.cfg.Headless),
			chromedp.WindowSize(l.cfg.Width, l.cfg.Height),
		)
		if l.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
		}
		if l.cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(base, opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Первый Run запускает браузер и должен идти на browserCtx:
	// отмена производного контекста закрыла бы браузер.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	return &chromeSession{
		fs:          l.cfg.FS,
		browserCtx:  browserCtx,
		tabCtx:      browserCtx,
		closeFns:    []context.CancelFunc{browserCancel, allocCancel},
		userAgent:   l.cfg.UserAgent,
		headlessRun: l.cfg.Headless,
		viewport:    fmt.Sprintf("%dx%d", l.cfg.Width, l.cfg.Height),
	}, nil
}

// chromeSession — сессия одного браузера.
type chromeSession struct {
	fs afero.Fs

	mu         sync.Mutex
	browserCtx context.Context
	tabCtx     context.Context
	tabCancel  context.CancelFunc
	closeFns   []context.CancelFunc
	closed     bool

	userAgent   string
	headlessRun bool
	viewport    string
}

// run выполняет действия chromedp на текущей вкладке с учётом ctx вызывающего.
func (s *chromeSession) run(ctx context.Context, op, target string, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return NewError(op, target, KindUnknown, ErrSessionClosed)
	}
	tab := s.tabCtx
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}

	// Отмена или дедлайн вызывающего важнее текста ошибки chromedp.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return NewError(op, target, KindTimeout, ctxErr)
		}
		return ctxErr
	}

	return mapError(op, target, err)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, "navigate", url, chromedp.Navigate(url))
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, "click", selector, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx, "fill", selector,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (s *chromeSession) SelectOption(ctx context.Context, selector, value string) error {
	return s.run(ctx, "select", selector, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (s *chromeSession) WaitFor(ctx context.Context, selector string, cond WaitCondition, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var action chromedp.Action
	switch cond {
	case WaitHidden:
		action = chromedp.WaitNotVisible(selector, chromedp.ByQuery)
	case WaitAttached:
		action = chromedp.WaitReady(selector, chromedp.ByQuery)
	case WaitDetached:
		action = chromedp.WaitNotPresent(selector, chromedp.ByQuery)
	default:
		action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	}

	return s.run(ctx, "wait", selector, action)
}

func (s *chromeSession) Scroll(ctx context.Context, direction string, amount int) error {
	dx, dy := 0, amount
	switch direction {
	case "up":
		dy = -amount
	case "left":
		dx, dy = -amount, 0
	case "right":
		dx, dy = amount, 0
	}
	script := fmt.Sprintf("window.scrollBy(%d, %d)", dx, dy)
	return s.run(ctx, "scroll", direction, chromedp.Evaluate(script, nil))
}

func (s *chromeSession) Hover(ctx context.Context, selector string) error {
	quoted, _ := json.Marshal(selector)
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { throw new Error("element not found"); }
		el.dispatchEvent(new MouseEvent("mouseover", {bubbles: true}));
		el.dispatchEvent(new MouseEvent("mouseenter", {bubbles: false}));
		return true;
	})()`, quoted)

	return s.run(ctx, "hover", selector,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Evaluate(script, nil),
	)
}

func (s *chromeSession) PressKey(ctx context.Context, key string) error {
	return s.run(ctx, "press_key", key, chromedp.KeyEvent(keyCode(key)))
}

func (s *chromeSession) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, "screenshot", path, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return err
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

func (s *chromeSession) ExtractText(ctx context.Context, selector string) ([]string, error) {
	quoted, _ := json.Marshal(selector)
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(e => (e.innerText || "").trim())`, quoted)

	var texts []string
	if err := s.run(ctx, "extract", selector, chromedp.Evaluate(script, &texts)); err != nil {
		return nil, err
	}
	return texts, nil
}

func (s *chromeSession) SwitchTab(ctx context.Context, index int) error {
	s.mu.Lock()
	browser := s.browserCtx
	s.mu.Unlock()

	infos, err := chromedp.Targets(browser)
	if err != nil {
		return mapError("switch_tab", "", err)
	}

	var pages []int
	for i, info := range infos {
		if info.Type == "page" {
			pages = append(pages, i)
		}
	}
	if index < 0 || index >= len(pages) {
		return Errorf("switch_tab", fmt.Sprint(index), KindElementNotFound, "tab %d not found (%d open)", index, len(pages))
	}

	tabCtx, tabCancel := chromedp.NewContext(browser, chromedp.WithTargetID(infos[pages[index]].TargetID))

	s.mu.Lock()
	if s.tabCancel != nil {
		s.tabCancel()
	}
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel
	s.mu.Unlock()

	return s.run(ctx, "switch_tab", "", chromedp.ActionFunc(func(context.Context) error { return nil }))
}

func (s *chromeSession) URL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, "url", "", chromedp.Location(&url))
	return url, err
}

func (s *chromeSession) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, "title", "", chromedp.Title(&title))
	return title, err
}

func (s *chromeSession) Content(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, "content", "", chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromeSession) Info() Info {
	browserType := "chromium"
	if s.headlessRun {
		browserType = "chromium-headless"
	}
	return Info{
		BrowserType:  browserType,
		ViewportSize: s.viewport,
		UserAgent:    s.userAgent,
	}
}

// Close закрывает вкладки и браузер.
func (s *chromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.tabCancel != nil {
		s.tabCancel()
	}
	err := chromedp.Cancel(s.browserCtx)
	for _, fn := range s.closeFns {
		fn()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// mapError переводит ошибку chromedp в *Error по тексту сообщения.
func mapError(op, target string, err error) error {
	var dErr *Error
	if errors.As(err, &dErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(op, target, KindTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "net::err_"):
		return NewError(op, target, KindNetwork, err)
	case strings.Contains(msg, "could not find node"), strings.Contains(msg, "node not found"),
		strings.Contains(msg, "element not found"):
		return NewError(op, target, KindElementNotFound, err)
	case strings.Contains(msg, "not a valid selector"), strings.Contains(msg, "syntaxerror"):
		return NewError(op, target, KindInvalidSelector, err)
	case strings.Contains(msg, "page load error"), strings.Contains(msg, "navigat"):
		return NewError(op, target, KindNavigation, err)
	case strings.Contains(msg, "exception"), strings.Contains(msg, "uncaught"):
		return NewError(op, target, KindJavaScript, err)
	case strings.Contains(msg, "permission"):
		return NewError(op, target, KindPermission, err)
	default:
		return NewError(op, target, KindUnknown, err)
	}
}

// keyCode переводит имя клавиши в код для chromedp.KeyEvent.
func keyCode(key string) string {
	switch strings.ToLower(key) {
	case "enter", "return":
		return kb.Enter
	case "tab":
		return kb.Tab
	case "escape", "esc":
		return kb.Escape
	case "backspace":
		return kb.Backspace
	case "delete":
		return kb.Delete
	case "arrowdown", "down":
		return kb.ArrowDown
	case "arrowup", "up":
		return kb.ArrowUp
	case "arrowleft", "left":
		return kb.ArrowLeft
	case "arrowright", "right":
		return kb.ArrowRight
	case "home":
		return kb.Home
	case "end":
		return kb.End
	case "pagedown":
		return kb.PageDown
	case "pageup":
		return kb.PageUp
	default:
		return key
	}
}
