package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileStore keeps the product collection in a single JSON document on disk.
// Every Load reads the file fresh; every Save rewrites it in full,
// pretty-printed with two-space indentation.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.path)
	return err
}

func (s *FileStore) Load(ctx context.Context) ([]Product, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return products, nil
}

func (s *FileStore) Save(ctx context.Context, products []Product) error {
	raw, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
