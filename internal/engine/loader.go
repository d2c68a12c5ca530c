package engine

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/spf13/afero"
)

// Format — формат документа workflow.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath определяет формат по расширению файла.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Parse разбирает документ workflow.
// YAML сначала переводится в JSON, чтобы оба формата читались одними тегами.
func Parse(data []byte, format Format) (*domain.Workflow, error) {
	if format == FormatYAML {
		converted, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		data = converted
	}

	var wf domain.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &wf, nil
}

// LoadFile читает и разбирает workflow из файловой системы.
func LoadFile(fs afero.Fs, path string) (*domain.Workflow, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}

	wf, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// Encode сериализует workflow в формат документа.
func Encode(wf *domain.Workflow, format Format) ([]byte, error) {
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal workflow: %w", err)
	}

	if format == FormatYAML {
		out, err := yaml.JSONToYAML(data)
		if err != nil {
			return nil, fmt.Errorf("convert workflow to yaml: %w", err)
		}
		return out, nil
	}

	return data, nil
}
