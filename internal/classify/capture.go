package classify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/driver"
	"github.com/spf13/afero"
)

// snapshotTimeout ограничивает время на снимки страницы.
const snapshotTimeout = 5 * time.Second

// Page — то, что Capturer читает со страницы.
type Page interface {
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string) error
}

// CapturerConfig — конфигурация Capturer.
type CapturerConfig struct {
	// FS — файловая система для DOM-снимков (default: OS).
	FS afero.Fs

	// Dir — корень каталога логов; снимки пишутся в screenshots/ и dom/.
	Dir string

	// Screenshots — делать ли скриншот при сбое.
	Screenshots bool

	Logger *slog.Logger
}

// Capturer создаёт ErrorContext в момент сбоя.
type Capturer struct {
	fs          afero.Fs
	dir         string
	screenshots bool
	logger      *slog.Logger
}

// NewCapturer создаёт Capturer.
func NewCapturer(cfg CapturerConfig) *Capturer {
	fs := cfg.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "logs"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{fs: fs, dir: dir, screenshots: cfg.Screenshots, logger: logger}
}

// Input — данные шага для ErrorContext.
type Input struct {
	Err error
	// Step — шаг после подстановки переменных, SourceStep — как в документе.
	Step         domain.Step
	SourceStep   domain.Step
	StepIndex    int
	WorkflowPath string
	RetryCount   int

	// Page — страница для снимков; nil — снимки не делаются.
	Page Page
	Info driver.Info

	Variables map[string]any
}

// Capture классифицирует ошибку и делает снимки страницы.
//
// Ошибки снимков не возвращаются: соответствующие поля остаются пустыми.
func (c *Capturer) Capture(ctx context.Context, in Input) domain.ErrorContext {
	kind, severity := Classify(in.Err)

	ec := domain.ErrorContext{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		Kind:         kind,
		Message:      errMessage(in.Err),
		Severity:     severity,
		WorkflowPath: in.WorkflowPath,
		StepIndex:    in.StepIndex,
		Step:         in.Step.Clone(),
		BrowserType:  in.Info.BrowserType,
		ViewportSize: in.Info.ViewportSize,
		UserAgent:    in.Info.UserAgent,
		RetryCount:   in.RetryCount,
		Details: map[string]any{
			"error_class": fmt.Sprintf("%T", in.Err),
		},
		ExecutionContext: map[string]any{
			"variables": in.Variables,
		},
	}

	if in.SourceStep.Type != "" && !reflect.DeepEqual(in.SourceStep, in.Step) {
		src := in.SourceStep.Clone()
		ec.SourceStep = &src
	}

	if in.Page != nil {
		c.snapshot(ctx, in.Page, &ec)
	}

	ec.IsHealable = IsHealable(ec)
	return ec
}

// snapshot заполняет состояние страницы; сбои только логируются.
func (c *Capturer) snapshot(ctx context.Context, page Page, ec *domain.ErrorContext) {
	// ctx шага может быть уже отменён гонкой с таймером
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
	defer cancel()

	if url, err := page.URL(ctx); err == nil {
		ec.PageURL = url
	}
	if title, err := page.Title(ctx); err == nil {
		ec.PageTitle = title
	}

	if c.screenshots {
		path := filepath.Join(c.dir, "screenshots", "error_"+ec.ID+".png")
		if err := page.Screenshot(ctx, path); err != nil {
			c.logger.Debug("error screenshot failed", "error_id", ec.ID, "error", err)
		} else {
			ec.ScreenshotPath = path
		}
	}

	html, err := page.Content(ctx)
	if err != nil {
		c.logger.Debug("dom snapshot failed", "error_id", ec.ID, "error", err)
		return
	}

	path := filepath.Join(c.dir, "dom", "error_"+ec.ID+".html")
	if err := c.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.logger.Debug("dom snapshot failed", "error_id", ec.ID, "error", err)
		return
	}
	if err := afero.WriteFile(c.fs, path, []byte(html), 0o644); err != nil {
		c.logger.Debug("dom snapshot failed", "error_id", ec.ID, "error", err)
		return
	}
	ec.DOMSnapshot = path
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
