// Package config загружает конфигурацию Mender.
//
// Источники по возрастанию приоритета: значения по умолчанию,
// переменные AZURE_OPENAI_* (только секция openai), переменные MENDER_*.
// Двойное подчёркивание — вложенность: MENDER_EXECUTOR__DEFAULT_TIMEOUT
// задаёт executor.default_timeout.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "MENDER_"

// ErrInvalid — конфигурация не прошла проверку.
var ErrInvalid = errors.New("invalid configuration")

// Config — конфигурация процесса.
type Config struct {
	Executor ExecutorConfig `koanf:"executor"`
	Batch    BatchConfig    `koanf:"batch"`
	Browser  BrowserConfig  `koanf:"browser"`
	Healing  HealingConfig  `koanf:"healing"`
	OpenAI   OpenAIConfig   `koanf:"openai"`
	Storage  StorageConfig  `koanf:"storage"`

	// DatabaseURL — PostgreSQL для истории выполнений; пустой — только файлы.
	DatabaseURL string `koanf:"database_url"`

	// RabbitMQURL — брокер событий; пустой — без событий.
	RabbitMQURL string `koanf:"rabbitmq_url"`

	HTTPAddr string `koanf:"http_addr" validate:"required"`

	// APIURL — адрес mender-api для удалённых команд CLI.
	APIURL string `koanf:"api_url" validate:"omitempty,url"`
}

// ExecutorConfig — выполнение шагов.
type ExecutorConfig struct {
	DefaultTimeout   time.Duration `koanf:"default_timeout"   validate:"gt=0"`
	HealingEnabled   bool          `koanf:"healing_enabled"`
	TransientRetries int           `koanf:"transient_retries" validate:"min=0,max=10"`
	RetryBaseDelay   time.Duration `koanf:"retry_base_delay"  validate:"gt=0"`
	LaunchRetries    int           `koanf:"launch_retries"    validate:"min=0,max=10"`
}

// BatchConfig — пакетное выполнение.
type BatchConfig struct {
	ConcurrencyLimit int `koanf:"concurrency_limit" validate:"min=1,max=100"`
}

// BrowserConfig — запуск браузера.
type BrowserConfig struct {
	Headless bool `koanf:"headless"`

	// RemoteURL — DevTools уже запущенного браузера (ws://...).
	RemoteURL string `koanf:"remote_url" validate:"omitempty,url"`

	ExecPath string `koanf:"exec_path"`
	Width    int    `koanf:"width"     validate:"min=320"`
	Height   int    `koanf:"height"    validate:"min=240"`
}

// HealingConfig — лечение и запись результатов в документ.
type HealingConfig struct {
	AutoSave   bool          `koanf:"auto_save"`
	AITimeout  time.Duration `koanf:"ai_timeout" validate:"gt=0"`
	Heuristics bool          `koanf:"heuristics"`
}

// OpenAIConfig — AI-уровень лечения. Пустой APIKey выключает уровень.
type OpenAIConfig struct {
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"    validate:"omitempty,url"`
	Model       string  `koanf:"model"       validate:"required"`
	Temperature float64 `koanf:"temperature" validate:"min=0,max=2"`
}

// Enabled сообщает, настроен ли AI-уровень.
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// StorageConfig — файлы аудита и резервные копии.
type StorageConfig struct {
	LogsDir       string `koanf:"logs_dir"       validate:"required"`
	BackupDir     string `koanf:"backup_dir"     validate:"required"`
	RetentionDays int    `koanf:"retention_days" validate:"min=1"`
	Screenshots   bool   `koanf:"screenshots"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Executor: ExecutorConfig{
			DefaultTimeout:   30 * time.Second,
			HealingEnabled:   true,
			TransientRetries: 2,
			RetryBaseDelay:   500 * time.Millisecond,
			LaunchRetries:    2,
		},
		Batch: BatchConfig{ConcurrencyLimit: 10},
		Browser: BrowserConfig{
			Headless: true,
			Width:    1280,
			Height:   800,
		},
		Healing: HealingConfig{
			AutoSave:   true,
			AITimeout:  60 * time.Second,
			Heuristics: true,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
		},
		Storage: StorageConfig{
			LogsDir:       "logs",
			BackupDir:     "workflows/backups",
			RetentionDays: 30,
			Screenshots:   true,
		},
		HTTPAddr: ":8080",
		APIURL:   "http://localhost:8080",
	}
}

// azureKeys — переменные Azure OpenAI, используемые как запасные.
var azureKeys = map[string]string{
	"AZURE_OPENAI_API_KEY":         "openai.api_key",
	"AZURE_OPENAI_ENDPOINT":        "openai.base_url",
	"AZURE_OPENAI_DEPLOYMENT_NAME": "openai.model",
}

// Load собирает конфигурацию из значений по умолчанию и окружения.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "AZURE_OPENAI_",
		TransformFunc: func(key, value string) (string, any) {
			if value == "" {
				return "", nil
			}
			return azureKeys[key], value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load azure environment: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnvKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// transformEnvKey: MENDER_BATCH__CONCURRENCY_LIMIT → batch.concurrency_limit.
func transformEnvKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", "."), value
}

// Validate проверяет конфигурацию.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
