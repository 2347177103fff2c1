// Package schemafile persists the schema catalog as a versioned YAML
// artifact so restarts reuse sampled metadata instead of re-sampling.
package schemafile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/halcyon-ai/queryguard/internal/domain/schema"
)

// Store reads and writes the catalog artifact at a fixed path.
type Store struct {
	path string
}

// New creates a file-backed artifact store.
func New(path string) *Store {
	return &Store{path: path}
}

// Save writes the catalog atomically (temp file + rename).
func (s *Store) Save(_ context.Context, c schema.Catalog) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog artifact: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace catalog artifact: %w", err)
	}
	return nil
}

// Load reads the catalog. A missing file is not an error; ok is false.
func (s *Store) Load(_ context.Context) (schema.Catalog, bool, error) {
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return schema.Catalog{}, false, nil
		}
		return schema.Catalog{}, false, fmt.Errorf("read catalog artifact: %w", err)
	}

	var c schema.Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return schema.Catalog{}, false, fmt.Errorf("parse catalog artifact: %w", err)
	}
	return c, true, nil
}
