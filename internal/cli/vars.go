package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"

	"github.com/spf13/afero"
)

// parseVars собирает переменные выполнения из --vars и --vars-file.
// Значения из файла перекрывают значения из строки.
func parseVars(fsys afero.Fs, inline, file string) (map[string]any, error) {
	vars := make(map[string]any)

	if inline != "" {
		if err := json.Unmarshal([]byte(inline), &vars); err != nil {
			return nil, fmt.Errorf("%w: --vars: %v", ErrInvalidVars, err)
		}
	}

	if file != "" {
		data, err := afero.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidVars, err)
		}
		var fromFile map[string]any
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidVars, file, err)
		}
		maps.Copy(vars, fromFile)
	}

	return vars, nil
}

// parseBatchInputs читает JSON-массив наборов переменных.
func parseBatchInputs(fsys afero.Fs, file string) ([]map[string]any, error) {
	data, err := afero.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVars, err)
	}

	var inputs []map[string]any
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("%w: %s must contain a JSON array of objects: %v", ErrInvalidVars, file, err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidVars, file)
	}
	return inputs, nil
}

// writeJSON записывает v с отступами, создавая каталог.
func writeJSON(fsys afero.Fs, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return afero.WriteFile(fsys, path, data, 0o644)
}
