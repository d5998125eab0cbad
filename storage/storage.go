/*
Package storage stores attachment files on local disk.

PURPOSE:
  Owns the bytes behind document records: validates uploads, writes them
  under a date-partitioned layout, serves paths back for download, and
  removes files when records are deleted. The database keeps only the
  relative path this package hands out.

LAYOUT:
  <base>/<YYYY>/<MM>/<request-id>/<random12>.<ext>

  The stored filename is never derived from the client's filename, so a
  hostile original name cannot influence where bytes land. FullPath rejects
  any stored path that resolves outside the base directory.
*/
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adukes40/ReqPath/procure"
)

var (
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	ErrFileTooLarge        = errors.New("file exceeds maximum size")
	ErrInvalidPath         = errors.New("invalid file path")
)

// Service writes and removes attachment files under a base directory.
type Service struct {
	baseDir  string
	maxBytes int64
	allowed  map[string]bool

	// Now is the clock used for the year/month partition. Defaults to
	// time.Now in UTC.
	Now func() time.Time
}

// New returns a service rooted at baseDir. Extensions are lowercased and
// must carry their leading dot.
func New(baseDir string, maxBytes int64, allowedExtensions []string) *Service {
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &Service{baseDir: baseDir, maxBytes: maxBytes, allowed: allowed}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Saved describes a stored file: the generated filename, the relative path
// persisted in the document record, and the byte count written.
type Saved struct {
	Filename string
	Path     string
	Size     int64
}

// Save validates and writes an upload for the given request. originalName
// contributes only its extension. The reader is drained up to the size cap;
// one byte past it aborts the write and removes the partial file.
func (s *Service) Save(requestID procure.RequestID, originalName string, r io.Reader) (*Saved, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" || !s.allowed[ext] {
		return nil, ErrExtensionNotAllowed
	}

	now := s.now()
	relDir := filepath.Join(
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		string(requestID),
	)
	if err := os.MkdirAll(filepath.Join(s.baseDir, relDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	filename := strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + ext
	relPath := filepath.Join(relDir, filename)
	absPath := filepath.Join(s.baseDir, relPath)

	f, err := os.Create(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	// Copy one byte beyond the cap so an at-limit file passes and an
	// over-limit file is detected without reading it all.
	written, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(absPath)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if written > s.maxBytes {
		os.Remove(absPath)
		return nil, ErrFileTooLarge
	}

	return &Saved{Filename: filename, Path: relPath, Size: written}, nil
}

// FullPath resolves a stored relative path to an absolute one, rejecting
// anything that escapes the base directory.
func (s *Service) FullPath(relPath string) (string, error) {
	if relPath == "" || filepath.IsAbs(relPath) {
		return "", ErrInvalidPath
	}
	base, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(filepath.Join(base, relPath))
	if err != nil {
		return "", err
	}
	if abs != base && !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return abs, nil
}

// Delete removes a stored file. A file already gone is not an error; the
// document record is authoritative, the bytes are best effort.
func (s *Service) Delete(relPath string) error {
	abs, err := s.FullPath(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
