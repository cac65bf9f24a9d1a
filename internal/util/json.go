package util

import (
	"encoding/json"
	"fmt"
	"os"
)

// ReadJSONFile decodes a JSON document into v. A missing file is not an
// error; the target is left untouched and false is returned.
func ReadJSONFile(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}

	return true, nil
}

// WriteJSONFile overwrites path with an indented JSON rendering of v.
// Documents are always written wholesale; there are no partial updates.
func WriteJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
