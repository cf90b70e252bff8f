package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend persists the session as a single JSON document. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// reader sees either the old or the new document, never a mix.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// DefaultSessionFile returns <user config dir>/weddingdesk/session.json.
func DefaultSessionFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "weddingdesk", "session.json"), nil
}

func (b *FileBackend) Load(_ context.Context) (Entries, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Entries{}, nil
	}
	if err != nil {
		return Entries{}, err
	}
	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return Entries{}, fmt.Errorf("decode %s: %w", b.path, err)
	}
	return Entries{
		AccessToken:  doc[keyAccessToken],
		RefreshToken: doc[keyRefreshToken],
		User:         doc[keyUser],
	}, nil
}

func (b *FileBackend) Store(_ context.Context, e Entries) error {
	data, err := json.Marshal(map[string]string{
		keyAccessToken:  e.AccessToken,
		keyRefreshToken: e.RefreshToken,
		keyUser:         e.User,
	})
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

func (b *FileBackend) Clear(_ context.Context) error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
