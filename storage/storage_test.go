package storage_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adukes40/ReqPath/storage"
)

func newTestService(t *testing.T, maxBytes int64) *storage.Service {
	t.Helper()
	svc := storage.New(t.TempDir(), maxBytes, []string{".pdf", ".png"})
	svc.Now = func() time.Time {
		return time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestSave_DatePartitionedLayout(t *testing.T) {
	svc := newTestService(t, 1024)

	saved, err := svc.Save("req-abc", "quote.pdf", strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(saved.Path, filepath.Join("2026", "08", "req-abc")+string(filepath.Separator)) {
		t.Errorf("path = %q, want 2026/08/req-abc/ prefix", saved.Path)
	}
	if !strings.HasSuffix(saved.Filename, ".pdf") {
		t.Errorf("filename = %q, extension not kept", saved.Filename)
	}
	if saved.Filename == "quote.pdf" {
		t.Error("client filename must not be reused")
	}
	if saved.Size != int64(len("pdf bytes")) {
		t.Errorf("size = %d", saved.Size)
	}

	abs, err := svc.FullPath(saved.Path)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("stored bytes = %q", data)
	}
}

func TestSave_ExtensionAllowlist(t *testing.T) {
	svc := newTestService(t, 1024)

	for _, name := range []string{"malware.exe", "script.sh", "noextension", "quote.pdf.exe"} {
		_, err := svc.Save("req-abc", name, strings.NewReader("x"))
		if !errors.Is(err, storage.ErrExtensionNotAllowed) {
			t.Errorf("%s: expected ErrExtensionNotAllowed, got %v", name, err)
		}
	}

	// Case-insensitive match on the extension.
	if _, err := svc.Save("req-abc", "SCAN.PDF", strings.NewReader("x")); err != nil {
		t.Errorf("uppercase extension rejected: %v", err)
	}
}

func TestSave_SizeCap(t *testing.T) {
	svc := newTestService(t, 10)

	// Exactly at the cap passes.
	if _, err := svc.Save("req-abc", "a.pdf", bytes.NewReader(make([]byte, 10))); err != nil {
		t.Fatalf("at-limit upload rejected: %v", err)
	}

	// One byte over fails and leaves no partial file behind.
	saved, err := svc.Save("req-abc", "b.pdf", bytes.NewReader(make([]byte, 11)))
	if !errors.Is(err, storage.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v (saved=%v)", err, saved)
	}
}

func TestFullPath_TraversalRejected(t *testing.T) {
	svc := newTestService(t, 1024)

	for _, p := range []string{
		"../outside.pdf",
		"2026/../../etc/passwd",
		"/etc/passwd",
		"",
	} {
		if _, err := svc.FullPath(p); !errors.Is(err, storage.ErrInvalidPath) {
			t.Errorf("%q: expected ErrInvalidPath, got %v", p, err)
		}
	}
}

func TestDelete_MissingFileIsNotAnError(t *testing.T) {
	svc := newTestService(t, 1024)

	saved, err := svc.Save("req-abc", "quote.pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(saved.Path); err != nil {
		t.Fatal(err)
	}
	// Second delete is a no-op.
	if err := svc.Delete(saved.Path); err != nil {
		t.Errorf("deleting an already-removed file errored: %v", err)
	}
}
