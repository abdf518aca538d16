package discover

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestFirst(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "ttyUSB1"))
	touch(t, filepath.Join(dir, "ttyUSB0"))
	touch(t, filepath.Join(dir, "other"))

	got, err := First(filepath.Join(dir, "ttyUSB?"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "ttyUSB0"); got != want {
		t.Errorf("First() = %q, want %q", got, want)
	}
}

func TestFirstNotFound(t *testing.T) {
	_, err := First(filepath.Join(t.TempDir(), "ttyUSB?"))
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("First() = %v, want ErrDeviceNotFound", err)
	}
}
