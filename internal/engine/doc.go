// Package engine готовит workflow к выполнению.
//
// Включает:
//   - loader.go — загрузка документа workflow (JSON или YAML)
//   - parser.go — проверка определения и разрешение переменных
//   - template.go — подстановка переменных в поля шага
package engine
