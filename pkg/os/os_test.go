package os

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDir(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "new", path: filepath.Join(root, "a", "b")},
		{name: "existing", path: root},
		{name: "file", path: file, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnsureDir(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, want error %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if fi, err := os.Stat(tt.path); err != nil || !fi.IsDir() {
				t.Errorf("%v is not a directory", tt.path)
			}
		})
	}
}

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "camstream.lock")
	a, err := NewFileLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if err = a.TryLock(); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer func() { _ = a.Unlock() }()

	b, err := NewFileLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if err = b.TryLock(); !errors.Is(err, ErrLocked) {
		t.Errorf("expected a held lock, got %v", err)
	}
	if err = a.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err = b.TryLock(); err != nil {
		t.Errorf("lock after unlock: %v", err)
	}
	_ = b.Unlock()
}
