// Package mutator изменяет сохранённый документ workflow после лечения.
//
// Изменения применяются только к документу на диске и к копиям в
// памяти: workflow, который сейчас выполняется, не трогается. Перед
// записью создаётся резервная копия, запись идёт под файловой
// блокировкой, откат восстанавливает документ из копии.
package mutator
