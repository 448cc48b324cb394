package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultStateDir is the state directory, relative to the working directory.
const DefaultStateDir = ".fixbot"

// Files kept in the state directory.
const (
	DatabaseFile  = "fixbot.db"
	LedgerFile    = "processed.log"
	AgentLogFile  = "defect_agent_log.txt"
	LastBatchFile = "last_batch.md"
	ChangeLogFile = "jira_update.txt"
	SnapshotFile  = "snapshot.json"
	LockFile      = ".lock"
	SocketFile    = "fixbot.sock"
	ConfigFile    = "config.yaml"
)

// DiscoverStateDir returns the absolute state directory.
// FIXBOT_STATE_DIR overrides the default for test isolation.
func DiscoverStateDir() (string, error) {
	if dir := os.Getenv("FIXBOT_STATE_DIR"); dir != "" {
		return filepath.Abs(dir)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return filepath.Join(wd, DefaultStateDir), nil
}

// DatabasePath returns the sqlite path inside stateDir.
// FIXBOT_DB_PATH overrides it and may be ":memory:".
func DatabasePath(stateDir string) string {
	if dbPath := os.Getenv("FIXBOT_DB_PATH"); dbPath != "" {
		return dbPath
	}
	return filepath.Join(stateDir, DatabaseFile)
}

// EnsureStateDir creates the state directory if needed.
func EnsureStateDir(stateDir string) error {
	info, err := os.Stat(stateDir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("state path %s is not a directory", stateDir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat state directory: %w", err)
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}
