package recorder

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// JSON 文件记录器，每条记录一行
type JSONFileRecorder struct {
	Path string

	mu   sync.Mutex
	file *os.File
}

func NewJSONFileRecorder(path string) *JSONFileRecorder {
	return &JSONFileRecorder{Path: path}
}

func (r *JSONFileRecorder) Record(result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		if dir := filepath.Dir(r.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(r.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		r.file = file
	}
	_, err = r.file.Write(data)
	return err
}

func (r *JSONFileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
