package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var allowedExtensions = []string{".wav", ".mp3", ".ogg"}

// AllowedExtension reports whether a filename carries a supported audio
// extension. Checked at the upload boundary before any job is created.
func AllowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// FileStore keeps uploaded audio under a base directory, one file per call id.
type FileStore struct {
	BaseDir string
}

func New(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &FileStore{BaseDir: baseDir}, nil
}

// SaveAudio writes the uploaded audio and returns the stored path. The stored
// filename is the call id plus the original extension.
func (fs *FileStore) SaveAudio(r io.Reader, callID, originalFilename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	path := filepath.Join(fs.BaseDir, callID+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// GetPath returns the stored path for a call id, or "" when no file exists.
func (fs *FileStore) GetPath(callID string) string {
	for _, ext := range allowedExtensions {
		path := filepath.Join(fs.BaseDir, callID+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// DeleteFile removes the stored audio for a call id. Returns false when no
// file existed.
func (fs *FileStore) DeleteFile(callID string) (bool, error) {
	path := fs.GetPath(callID)
	if path == "" {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}
