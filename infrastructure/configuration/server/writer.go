package server

import (
	"encoding/json"
	"os"
	"path/filepath"
)

type Writer interface {
	Write(data any) error
}

type defaultWriter struct {
	path string
}

func newDefaultWriter(path string) *defaultWriter {
	return &defaultWriter{path: path}
}

// Write replaces the file through a rename so readers never see a partial
// document.
func (w *defaultWriter) Write(data any) error {
	jsonContent, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(w.path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(jsonContent); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), w.path)
}
