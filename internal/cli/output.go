package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output — вывод команд: данные в stdout (таблица или JSON), сообщения
// в stderr, чтобы `mender ... --json | jq` получал чистый JSON.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками данных и сообщений.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

func (o *Output) JSONMode() bool {
	return o.jsonMode
}

// Print выводит rows таблицей либо jsonData в JSON-режиме.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит таблицу с подчёркнутой строкой заголовков.
func (o *Output) Table(headers []string, rows [][]string) {
	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}

	o.tabular(func(tw io.Writer) {
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
		fmt.Fprintln(tw, strings.Join(underline, "\t"))
		for _, row := range rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
	})
}

// Fields выводит сводку "Ключ: значение" с выравниванием значений.
// Пустые значения пропускаются.
func (o *Output) Fields(pairs [][2]string) {
	o.tabular(func(tw io.Writer) {
		for _, p := range pairs {
			if p[1] == "" {
				continue
			}
			fmt.Fprintf(tw, "%s:\t%s\n", p[0], p[1])
		}
	})
	fmt.Fprintln(o.w)
}

func (o *Output) tabular(write func(tw io.Writer)) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	write(tw)
	tw.Flush()
}

// JSON выводит v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Warn("encode output: " + err.Error())
	}
}

// Success выводит итоговое сообщение в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Warn выводит предупреждение в stderr.
func (o *Output) Warn(msg string) {
	fmt.Fprintln(o.errW, "Warning: "+msg)
}
