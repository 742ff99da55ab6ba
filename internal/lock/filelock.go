// Package lock prevents concurrent pipeline runs for the same schedule slot
// using an exclusive flock(2) on a per-schedule lock file.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another run is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeouts for lock acquisition.
const (
	// TimeoutImmediate gives up at once if the lock is taken.
	TimeoutImmediate time.Duration = 0

	// TimeoutShort is suitable for fast-failing duplicate run detection.
	TimeoutShort = time.Second
)

const pollInterval = 50 * time.Millisecond

// FileLock is an exclusive advisory lock on a file. The kernel releases it
// when the holding process exits, so a crashed run never leaves it stuck.
type FileLock struct {
	path string
	file *os.File
	held bool
}

// NewFileLock creates a lock on path. The lock is not acquired until
// AcquireLock is called.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// AcquireLock tries to take the lock, polling until timeout elapses.
// Returns true if the lock was acquired, false if another holder kept it
// for the whole timeout. A zero timeout tries exactly once.
func (l *FileLock) AcquireLock(ctx context.Context, timeout time.Duration) (bool, error) {
	if l.held {
		return true, nil // Already holding the lock
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return false, fmt.Errorf("failed to open lock file %s: %w", l.path, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			_ = f.Close()
			return false, fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
		if !time.Now().Before(deadline) {
			_ = f.Close()
			return false, nil
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	// The holder's pid is informational only; a failed write does not
	// affect the lock.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	l.file = f
	l.held = true
	return true, nil
}

// TryAcquire attempts to acquire the lock without waiting.
func (l *FileLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.AcquireLock(ctx, TimeoutImmediate)
}

// ReleaseLock releases the lock. Returns false if it was not held.
// The lock file is left in place; removing it would race with a new holder.
func (l *FileLock) ReleaseLock() (bool, error) {
	if !l.held {
		return false, nil
	}

	f := l.file
	l.file = nil
	l.held = false

	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return false, fmt.Errorf("failed to unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return true, fmt.Errorf("failed to close lock file %s: %w", l.path, closeErr)
	}
	return true, nil
}

// IsHeld returns true if this lock is currently held by this instance.
func (l *FileLock) IsHeld() bool {
	return l.held
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// HolderPID returns the pid recorded by the last holder, or 0 if unknown.
func (l *FileLock) HolderPID() int {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func (l *FileLock) heldElsewhere() error {
	if pid := l.HolderPID(); pid > 0 {
		return fmt.Errorf("%w: %s is held by pid %d", ErrLockTimeout, l.path, pid)
	}
	return fmt.Errorf("%w: %s is held by another run", ErrLockTimeout, l.path)
}

// WithLock runs fn while holding the lock and releases it however fn exits,
// including by panic.
func (l *FileLock) WithLock(ctx context.Context, timeout time.Duration, fn func() error) error {
	acquired, err := l.AcquireLock(ctx, timeout)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return l.heldElsewhere()
	}

	defer func() {
		// Close releases the flock even if the explicit unlock fails.
		_, _ = l.ReleaseLock()
	}()

	return fn()
}

// ScheduleLockName returns the file name used for a schedule's lock.
// Characters outside [A-Za-z0-9_-] are replaced so the name is always a
// single path element.
//
// Example: ScheduleLockName("nightly") -> "cdcpipe.schedule.nightly.lock"
func ScheduleLockName(schedule string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, schedule)

	return fmt.Sprintf("cdcpipe.schedule.%s.lock", sanitized)
}

// NewScheduleLock creates the lock for a schedule slot under dir.
func NewScheduleLock(dir, schedule string) *FileLock {
	return NewFileLock(filepath.Join(dir, ScheduleLockName(schedule)))
}

// IsScheduleRunning reports whether a run currently holds the schedule's
// lock. The answer may be stale by the time it is returned.
func IsScheduleRunning(ctx context.Context, dir, schedule string) (bool, error) {
	l := NewScheduleLock(dir, schedule)

	acquired, err := l.TryAcquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check schedule %q: %w", schedule, err)
	}
	if acquired {
		if _, err := l.ReleaseLock(); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
