package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"tradectl/internal/errs"
)

// FileStore JSON 文件，先写临时文件再 rename，避免读到半个文件
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(_ context.Context) (*ParameterSet, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errs.Configurationf("load parameters", "parameters file %q not found, run with -optimize first", s.Path)
	}
	if err != nil {
		return nil, errs.Configuration("load parameters", err)
	}
	return Decode(data)
}

func (s *FileStore) Save(_ context.Context, ps *ParameterSet) error {
	data, err := Encode(ps)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}
