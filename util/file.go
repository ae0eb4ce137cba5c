package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteJson writes JSON config object to a file creating the parent
// directories if required
func WriteJson(file string, obj interface{}) error {
	configDir := filepath.Dir(file)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("create config directory %s: %w", configDir, err)
	}

	bs, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(file, bs, 0600); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	return nil
}

// ReadJson reads JSON config file and maps to a provided interface
func ReadJson(file string, res interface{}) (interface{}, error) {

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bs, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(bs, &res)
	if err != nil {
		return nil, err
	}

	return res, nil
}
