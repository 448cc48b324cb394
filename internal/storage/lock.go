package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrLocked is returned when another live fixbot process holds the lock.
var ErrLocked = errors.New("state directory is locked")

// ExclusiveLock is the content of the state directory lock file. Only the
// holder may write the processed-ticket ledger.
type ExclusiveLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// AcquireExclusiveLock creates the lock file in stateDir. A lock left by a
// process that no longer exists is replaced. Returns the lock file path for
// ReleaseExclusiveLock.
func AcquireExclusiveLock(stateDir, version string) (lockPath string, err error) {
	if err := EnsureStateDir(stateDir); err != nil {
		return "", err
	}
	lockPath = filepath.Join(stateDir, LockFile)

	if existing, err := ReadLock(lockPath); err == nil {
		if existing.PID != os.Getpid() && isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("%w: fixbot is already running (PID %d on %s, started %s)",
				ErrLocked, existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
		// stale lock, overwrite
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := ExclusiveLock{
		Holder:    "fixbot",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create exclusive lock: %w", err)
	}

	return lockPath, nil
}

// ReadLock reads the lock file at lockPath.
func ReadLock(lockPath string) (*ExclusiveLock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var lock ExclusiveLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &lock, nil
}

// ReleaseExclusiveLock removes the exclusive lock file.
func ReleaseExclusiveLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove exclusive lock: %w", err)
	}

	return nil
}

// isProcessAlive reports whether pid exists on hostname. Processes on
// other hosts cannot be checked and count as alive.
func isProcessAlive(pid int, hostname string) bool {
	if pid <= 0 {
		return false
	}
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// signal 0 checks existence without delivering anything
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM: the process exists but belongs to someone else
	return errors.Is(err, syscall.EPERM)
}
