package jobdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Collect loads every definition found in the given files or directories.
// Directories are walked recursively and only .yaml and .yml files are
// read. Each file may hold several documents.
func Collect(paths []string) ([]*Definition, error) {
	var defs []*Definition
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !isYAML(p) {
				return nil, fmt.Errorf("%s is not a YAML file", p)
			}
			if err := appendFile(p, &defs); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(p, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !isYAML(path) {
				return nil
			}
			return appendFile(path, &defs)
		})
		if err != nil {
			return nil, err
		}
	}
	return defs, nil
}

func appendFile(path string, defs *[]*Definition) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	parsed, err := Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*defs = append(*defs, parsed...)
	return nil
}

// Decode reads and validates every non-blank document from r.
func Decode(r io.Reader) ([]*Definition, error) {
	var defs []*Definition

	dec := yaml.NewDecoder(r)
	for {
		var def Definition
		if err := dec.Decode(&def); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if def.Blank() {
			continue
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, &def)
	}

	return defs, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
