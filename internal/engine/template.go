package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/shaiso/Mender/internal/domain"
)

// Vars — контекст переменных одного выполнения.
//
// Принадлежит ровно одному выполнению workflow и не разделяется
// между параллельными выполнениями пакета.
type Vars struct {
	values map[string]any
}

// NewVars создаёт контекст с копией начальных значений.
func NewVars(initial map[string]any) *Vars {
	values := make(map[string]any, len(initial))
	maps.Copy(values, initial)
	return &Vars{values: values}
}

// Get возвращает значение по имени или по пути через точку (user.name).
func (v *Vars) Get(path string) (any, bool) {
	return lookup(v.values, path)
}

// Set устанавливает переменную.
func (v *Vars) Set(name string, value any) {
	v.values[name] = value
}

// Snapshot возвращает копию всех переменных.
func (v *Vars) Snapshot() map[string]any {
	out := make(map[string]any, len(v.values))
	maps.Copy(out, v.values)
	return out
}

var (
	// ${name} — простая подстановка.
	simplePattern = regexp.MustCompile(`\$\{\s*([A-Za-z_][\w.]*)\s*\}`)

	// {{ expr }} — выражение шаблона.
	exprPattern = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

	// Путь к переменной без функций и пайпов.
	pathPattern = regexp.MustCompile(`^[A-Za-z_]\w*(\.\w+)*$`)
)

// templateFuncs — функции для выражений: sprig плюс json/fromJSON.
var templateFuncs = func() template.FuncMap {
	funcs := sprig.TxtFuncMap()

	// json — сериализует значение в JSON строку
	funcs["json"] = func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	}

	// fromJSON — парсит JSON строку
	funcs["fromJSON"] = func(s string) any {
		var result any
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil
		}
		return result
	}

	return funcs
}()

// Render подставляет переменные в строку.
//
// Поддерживаются:
//
//	${name}
//	{{ name }}, {{ user.email }}
//	{{ .name | upper }}, {{ default "x" .name }}
//
// Неразрешённые выражения остаются в тексте как есть; Render никогда не
// возвращает ошибку.
func Render(tmpl string, vars *Vars) string {
	if !strings.Contains(tmpl, "{{") && !strings.Contains(tmpl, "${") {
		return tmpl
	}

	out := simplePattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := simplePattern.FindStringSubmatch(m)[1]
		if val, ok := vars.Get(name); ok {
			return stringify(val)
		}
		return m
	})

	return exprPattern.ReplaceAllStringFunc(out, func(m string) string {
		expr := exprPattern.FindStringSubmatch(m)[1]
		if expr == "" {
			return m
		}

		if pathPattern.MatchString(expr) {
			if val, ok := vars.Get(expr); ok {
				return stringify(val)
			}
			return m
		}

		rendered, err := evalExpr(expr, vars)
		if err != nil {
			return m
		}
		return rendered
	})
}

// evalExpr вычисляет выражение через text/template.
// Отсутствующий ключ — ошибка, чтобы выражение осталось литералом.
func evalExpr(expr string, vars *Vars) (string, error) {
	t, err := template.New("").
		Option("missingkey=error").
		Funcs(templateFuncs).
		Parse("{{" + expr + "}}")
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars.values); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderValue рекурсивно рендерит строки внутри map и slice.
func RenderValue(value any, vars *Vars) any {
	switch v := value.(type) {
	case string:
		return Render(v, vars)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = RenderValue(val, vars)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = RenderValue(val, vars)
		}
		return result

	default:
		// int, float, bool и nil возвращаем как есть
		return value
	}
}

// RenderStep возвращает копию шага с подставленными переменными.
//
// Рендерятся url, selector, xpath, value, description, key,
// wait_condition и строковые значения metadata.
func RenderStep(step domain.Step, vars *Vars) domain.Step {
	s := step.Clone()

	s.URL = Render(s.URL, vars)
	s.Selector = Render(s.Selector, vars)
	s.XPath = Render(s.XPath, vars)
	s.Value = Render(s.Value, vars)
	s.Description = Render(s.Description, vars)
	s.Key = Render(s.Key, vars)
	s.WaitCondition = Render(s.WaitCondition, vars)

	if s.Metadata != nil {
		s.Metadata = RenderValue(s.Metadata, vars).(map[string]any)
	}

	return s
}

// lookup ищет значение по пути через точку во вложенных map.
func lookup(values map[string]any, path string) (any, bool) {
	if val, ok := values[path]; ok {
		return val, true
	}

	parts := strings.Split(path, ".")
	var cur any = values
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
