// Package driver описывает границу с браузером.
//
// PageDriver — примитивные действия над страницей. Ядро не знает,
// как они выполняются физически; оно видит только типизированные
// ошибки *Error.
//
// Реализации:
//   - chrome.go — Chrome через chromedp
//   - drivertest — управляемый стаб для тестов
package driver
