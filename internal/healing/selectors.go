package healing

import (
	"regexp"
	"strings"
)

// Ограничения числа кандидатов.
const (
	MaxClickAlternatives = 3
	MaxFillAlternatives  = 2
)

// keywordSelectors — кандидаты, добавляемые при наличии ключевого слова.
type keywordSelectors struct {
	keywords  []string
	selectors []string
}

var clickTable = []keywordSelectors{
	{[]string{"search"}, []string{
		`input[type="submit"]`,
		`button[type="submit"]`,
		`.search-button`,
		`.btn-search`,
		`[value*="search"]`,
	}},
	{[]string{"button"}, []string{
		`button`,
		`input[type="button"]`,
		`input[type="submit"]`,
		`.btn`,
		`.button`,
		`[role="button"]`,
	}},
	{[]string{"link"}, []string{
		`a[href]`,
		`.link`,
		`[role="link"]`,
	}},
}

var fillTable = []keywordSelectors{
	{[]string{"search", "query", "find"}, []string{
		`input[name="q"]`,
		`input[name="query"]`,
		`input[name="search"]`,
		`input[placeholder*="search"]`,
		`input[type="search"]`,
		`#search-input`,
		`#query`,
		`.search-input`,
	}},
}

// genericInputs добавляются для любого fill.
var genericInputs = []string{
	`input[type="text"]`,
	`input:not([type])`,
	`textarea`,
	`[contenteditable="true"]`,
}

var attrBrackets = regexp.MustCompile(`\[.*?\]`)

// Generate возвращает упорядоченный список альтернативных селекторов.
//
// Для click ключевые слова ищутся в описании шага, для fill — в
// значении. Исходный селектор добавляется упрощённым в конец.
// Дубликаты удаляются с сохранением первого вхождения; результат
// обрезается до MaxClickAlternatives или MaxFillAlternatives.
func Generate(selector, description, value string, isClick bool) []string {
	var candidates []string

	if isClick {
		candidates = appendByKeywords(candidates, clickTable, description)
		if simplified := simplify(selector); simplified != "" {
			candidates = append(candidates, simplified)
			if base := strings.TrimSpace(attrBrackets.ReplaceAllString(simplified, "")); base != "" && base != simplified {
				candidates = append(candidates, base)
			}
		}
		return limit(dedupe(candidates), MaxClickAlternatives)
	}

	candidates = appendByKeywords(candidates, fillTable, value)
	candidates = append(candidates, genericInputs...)
	if simplified := simplify(selector); simplified != "" {
		candidates = append(candidates, simplified)
	}
	return limit(dedupe(candidates), MaxFillAlternatives)
}

func appendByKeywords(dst []string, table []keywordSelectors, text string) []string {
	lower := strings.ToLower(text)
	for _, row := range table {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				dst = append(dst, row.selectors...)
				break
			}
		}
	}
	return dst
}

// simplify оставляет первую альтернативу списка селекторов.
func simplify(selector string) string {
	first, _, _ := strings.Cut(selector, ",")
	return strings.TrimSpace(first)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func limit(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}
