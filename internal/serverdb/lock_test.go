//go:build unix

package serverdb

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hearth.db")

	first, err := AcquireLock(path, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	data, _ := os.ReadFile(path + ".lock")
	if !strings.Contains(string(data), "pid:") {
		t.Errorf("lock file = %q", data)
	}

	_, err = AcquireLock(path, 50*time.Millisecond)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second acquire: %v", err)
	}
	if !strings.Contains(err.Error(), "pid:") {
		t.Errorf("error should name the holder: %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatal(err)
	}
	if err := first.Release(); err != nil {
		t.Errorf("double release: %v", err)
	}

	again, err := AcquireLock(path, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again.Release()
}
