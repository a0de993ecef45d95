package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore хранит каждый ключ в отдельном файле внутри каталога состояния
// запись идёт через временный файл и rename, чтобы не оставить полузаписанное значение
type FileStore struct {
	dir string
}

// NewFileStore создаёт каталог, если его ещё нет
func NewFileStore(dir string) (*FileStore, error) {
	const op = "storage.NewFileStore"

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%s: failed to create state dir: %w", op, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Get(key string) (string, bool, error) {
	const op = "storage.FileStore.Get"

	path, err := f.path(key)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%s: failed to read %s: %w", op, key, err)
	}
	return string(data), true, nil
}

func (f *FileStore) Set(key, value string) error {
	const op = "storage.FileStore.Set"

	path, err := f.path(key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+".*")
	if err != nil {
		return fmt.Errorf("%s: failed to create temp file: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: failed to write %s: %w", op, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: failed to close temp file: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%s: failed to replace %s: %w", op, key, err)
	}
	return nil
}

func (f *FileStore) Delete(key string) error {
	const op = "storage.FileStore.Delete"

	path, err := f.path(key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: failed to delete %s: %w", op, key, err)
	}
	return nil
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}
