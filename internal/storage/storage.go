// Package storage keeps the raw uploaded bytes. The layout mirrors the
// hosted object store it stands in for: one object per document, keyed on
// owner id and document id. The store-relative path is persisted on the
// document row, so a document shared by several owners is read back from
// wherever its first uploader put it.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"exam-rag/internal/helper"
)

type Store struct {
	basePath string
}

func NewStore(basePath string) (*Store, error) {
	if err := helper.CreateFolder(basePath); err != nil {
		return nil, fmt.Errorf("failed to create storage folder: %v", err)
	}
	return &Store{basePath: basePath}, nil
}

// ObjectPath is the store-relative locator persisted on the document row.
func (s *Store) ObjectPath(ownerID, documentID string) string {
	return filepath.Join("uploads", ownerID, documentID)
}

func (s *Store) Save(path string, data []byte) error {
	full := filepath.Join(s.basePath, path)
	if err := helper.CreateFolder(filepath.Dir(full)); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func (s *Store) Load(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.basePath, path))
}

// Delete removes the stored object. A missing object is not an error.
func (s *Store) Delete(path string) error {
	err := os.Remove(filepath.Join(s.basePath, path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
