package cli

import (
	"errors"

	"github.com/shaiso/Mender/internal/app"
	"github.com/shaiso/Mender/internal/config"
)

var (
	// ErrExecutionFailed — выполнение завершилось не в статусе completed.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrInvalidVars — переменные не разобраны.
	ErrInvalidVars = errors.New("invalid variables")
)

// Env — ленивые зависимости команд.
//
// Функции вызываются внутри RunE, после разбора PersistentFlags, чтобы
// флаги корневой команды успели попасть в конфигурацию.
type Env struct {
	// Config загружает конфигурацию; команда может изменить копию.
	Config func() (*config.Config, error)

	// App собирает компоненты по конфигурации.
	App func(cfg *config.Config) *app.App

	Client func() *Client
	Output func() *Output
}

// local загружает конфигурацию, применяет mutate и собирает App.
func (e Env) local(mutate func(cfg *config.Config)) (*app.App, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	return e.App(cfg), nil
}
