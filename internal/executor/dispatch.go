package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/driver"
	"github.com/tidwall/gjson"
)

// Значения по умолчанию для действий.
const (
	DefaultPause          = 5 * time.Second
	DefaultScrollAmount   = 500
	DefaultScrollDir      = "down"
	DefaultSwitchTabIndex = 1
)

// output — результат действия. Переменные выполнения здесь не
// меняются: extract возвращает данные, а в контекст их пишет Execute.
type output struct {
	data       map[string]any
	extracted  map[string]any
	screenshot string
}

// target возвращает CSS-селектор шага, а при его отсутствии — xpath.
func target(step domain.Step) string {
	if step.Selector != "" {
		return step.Selector
	}
	return step.XPath
}

// checkStep проверяет, что у шага есть всё нужное для его типа.
// Ошибка конфигурации завершает шаг без лечения.
func checkStep(step domain.Step) error {
	sel := target(step)

	switch step.Type {
	case domain.ActionNavigate:
		if step.URL == "" {
			return invalidStep(step, "missing url")
		}
	case domain.ActionClick:
		if sel == "" && step.Key == "" {
			return invalidStep(step, "missing selector or key")
		}
	case domain.ActionFill, domain.ActionHover, domain.ActionExtract:
		if sel == "" {
			return invalidStep(step, "missing selector")
		}
	case domain.ActionSelect:
		if sel == "" || step.Value == "" {
			return invalidStep(step, "missing selector or value")
		}
	case domain.ActionPressKey:
		if step.Key == "" {
			return invalidStep(step, "missing key")
		}
	case domain.ActionWait, domain.ActionScroll, domain.ActionScreenshot, domain.ActionCustom:
	default:
		return invalidStep(step, "unknown action kind")
	}
	return nil
}

// dispatch выполняет одно действие шага.
//
// Единственная точка выбора поведения по ActionKind.
func dispatch(ctx context.Context, page driver.PageDriver, step domain.Step, timeout time.Duration) (output, error) {
	sel := target(step)

	switch step.Type {
	case domain.ActionNavigate:
		if err := page.Navigate(ctx, step.URL); err != nil {
			return output{}, err
		}
		return output{data: map[string]any{"url": step.URL, "navigated": true}}, nil

	case domain.ActionClick:
		return click(ctx, page, step)

	case domain.ActionFill:
		if err := page.Fill(ctx, sel, step.Value); err != nil {
			return output{}, err
		}
		return output{data: map[string]any{"selector": sel, "filled": true}}, nil

	case domain.ActionSelect:
		if err := page.SelectOption(ctx, sel, step.Value); err != nil {
			return output{}, err
		}
		return output{data: map[string]any{"selector": sel, "value": step.Value, "selected": true}}, nil

	case domain.ActionWait:
		if sel == "" {
			pause := step.TimeoutDuration(DefaultPause)
			if err := sleep(ctx, pause); err != nil {
				return output{}, err
			}
			return output{data: map[string]any{"timeout": pause.Milliseconds(), "waited": true}}, nil
		}
		cond := driver.ParseWaitCondition(step.WaitCondition)
		if err := page.WaitFor(ctx, sel, cond, timeout); err != nil {
			return output{}, err
		}
		return output{data: map[string]any{"selector": sel, "condition": string(cond), "waited": true}}, nil

	case domain.ActionScroll:
		dir := step.ScrollDirection
		if dir == "" {
			dir = DefaultScrollDir
		}
		amount := step.ScrollAmount
		if amount <= 0 {
			amount = DefaultScrollAmount
		}
		if err := page.Scroll(ctx, dir, amount); err != nil {
			return output{}, err
		}
		return output{data: map[string]any{"direction": dir, "amount": amount, "scrolled": true}}, nil

	case domain.ActionHover:
		if err := page.Hover(ctx, sel); err != nil {
			return output{}, err
		}
		return output{data: map[string]any{"selector": sel, "hovered": true}}, nil

	case domain.ActionPressKey:
		if err := page.PressKey(ctx, step.Key); err != nil {
			return output{}, err
		}
		return output{data: map[string]any{"key": step.Key, "pressed": true}}, nil

	case domain.ActionScreenshot:
		path := step.ScreenshotPath
		if path == "" {
			path = fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
		}
		if err := page.Screenshot(ctx, path); err != nil {
			return output{}, err
		}
		return output{
			data:       map[string]any{"screenshot_path": path, "captured": true},
			screenshot: path,
		}, nil

	case domain.ActionExtract:
		texts, err := page.ExtractText(ctx, sel)
		if err != nil {
			return output{}, err
		}
		return output{
			data:      map[string]any{"selector": sel, "extracted_count": len(texts)},
			extracted: map[string]any{"selector": sel, "data": texts},
		}, nil

	case domain.ActionCustom:
		return custom(ctx, page, step)
	}

	return output{}, invalidStep(step, "unknown action kind")
}

// click: только клавиша — нажатие; только селектор — ожидание (если
// задано wait_condition) и клик; оба — сначала клавиша, при её сбое клик.
func click(ctx context.Context, page driver.PageDriver, step domain.Step) (output, error) {
	sel := target(step)

	if sel == "" {
		if err := page.PressKey(ctx, step.Key); err != nil {
			return output{}, err
		}
		return output{data: map[string]any{"key": step.Key, "pressed": true}}, nil
	}

	if step.Key != "" {
		err := page.PressKey(ctx, step.Key)
		if err == nil {
			return output{data: map[string]any{"key": step.Key, "pressed": true, "method": "keyboard"}}, nil
		}
		if ctx.Err() != nil {
			return output{}, err
		}
		if err := clickSelector(ctx, page, step, sel); err != nil {
			return output{}, err
		}
		return output{data: map[string]any{"selector": sel, "clicked": true, "method": "click_fallback"}}, nil
	}

	if err := clickSelector(ctx, page, step, sel); err != nil {
		return output{}, err
	}
	return output{data: map[string]any{"selector": sel, "clicked": true}}, nil
}

func clickSelector(ctx context.Context, page driver.PageDriver, step domain.Step, sel string) error {
	if step.WaitCondition != "" {
		if err := page.WaitFor(ctx, sel, driver.ParseWaitCondition(step.WaitCondition), 0); err != nil {
			return err
		}
	}
	return page.Click(ctx, sel)
}

// custom разбирает value как JSON-объект с полем action.
// Неизвестные действия и не-JSON значения проходят без эффекта.
func custom(ctx context.Context, page driver.PageDriver, step domain.Step) (output, error) {
	if step.Value == "" || !gjson.Valid(step.Value) {
		return output{data: map[string]any{"custom": true}}, nil
	}
	parsed := gjson.Parse(step.Value)
	if !parsed.IsObject() {
		return output{data: map[string]any{"custom": true}}, nil
	}

	switch parsed.Get("action").String() {
	case "switch_tab":
		index := DefaultSwitchTabIndex
		if v := parsed.Get("page_id"); v.Exists() {
			index = int(v.Int())
		}
		if err := page.SwitchTab(ctx, index); err != nil {
			return output{}, err
		}
		return output{data: map[string]any{"switch_tab": true, "page_id": index}}, nil

	case "mark_completion":
		success := true
		if v := parsed.Get("success"); v.Exists() {
			success = v.Bool()
		}
		message := "Task completed"
		if v := parsed.Get("message"); v.Exists() {
			message = v.String()
		}
		return output{data: map[string]any{
			"completion_marked": true,
			"task_success":      success,
			"message":           message,
		}}, nil
	}

	return output{data: map[string]any{"custom": true, "value": step.Value}}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
