package serverdb

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	initialLockBackoff = 5 * time.Millisecond
	maxLockBackoff     = 50 * time.Millisecond
)

// ErrLocked is returned when another process serves the same database.
var ErrLocked = errors.New("database is served by another process")

// Lock is an exclusive OS file lock next to the database file. It is released
// when the process exits, including crashes.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the serve lock for the database at dbPath, retrying until
// timeout.
func AcquireLock(dbPath string, timeout time.Duration) (*Lock, error) {
	l := &Lock{path: dbPath + ".lock"}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	l.file = f

	deadline := time.Now().Add(timeout)
	backoff := initialLockBackoff
	for {
		if err := l.tryLock(); err == nil {
			l.writeHolder()
			return l, nil
		}
		if time.Now().After(deadline) {
			holder := l.readHolder()
			f.Close()
			return nil, fmt.Errorf("%w (holder %s)", ErrLocked, holder)
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, maxLockBackoff)
	}
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.file.Truncate(0)
	l.unlock()
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Lock) writeHolder() {
	l.file.Truncate(0)
	l.file.Seek(0, 0)
	fmt.Fprintf(l.file, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	l.file.Sync()
}

// readHolder describes the current holder for error messages.
func (l *Lock) readHolder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}
	var pid, since string
	for line := range strings.SplitSeq(strings.TrimSpace(string(data)), "\n") {
		if v, ok := strings.CutPrefix(line, "pid:"); ok {
			pid = v
		} else if v, ok := strings.CutPrefix(line, "time:"); ok {
			since = v
		}
	}
	if pid == "" {
		return "unknown"
	}
	if n, err := strconv.Atoi(pid); err == nil && !isProcessAlive(n) {
		return fmt.Sprintf("pid:%s since %s, stale", pid, since)
	}
	return fmt.Sprintf("pid:%s since %s", pid, since)
}
