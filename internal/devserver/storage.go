package devserver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileStorage keeps uploaded files on local disk under a random id.
type FileStorage struct {
	root string
}

func NewFileStorage(root string) (*FileStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStorage{root: root}, nil
}

// Save writes r to a new file and returns its id and size.
func (s *FileStorage) Save(r io.Reader) (string, int64, error) {
	fileID := uuid.New().String()
	fh, err := os.Create(s.Path(fileID))
	if err != nil {
		return "", 0, fmt.Errorf("create file: %w", err)
	}
	defer fh.Close()

	n, err := io.Copy(fh, r)
	if err != nil {
		os.Remove(fh.Name())
		return "", 0, fmt.Errorf("write file: %w", err)
	}
	return fileID, n, nil
}

func (s *FileStorage) Path(fileID string) string {
	return filepath.Join(s.root, fileID)
}
