package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dataDirEnv     = "WHEEL_DATA_DIR"
	defaultDirName = ".wheel-overlay"
	dbFileName     = "local.db"
)

// GetDataDir はデータディレクトリのパスを返す（WHEEL_DATA_DIRが優先）
func GetDataDir() string {
	if dir := os.Getenv(dataDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

func GetDBPath() string {
	return filepath.Join(GetDataDir(), dbFileName)
}

func GetLogsDir() string {
	return filepath.Join(GetDataDir(), "logs")
}

// EnsureDataDirs creates the data and logs directories if missing.
func EnsureDataDirs() error {
	for _, dir := range []string{GetDataDir(), GetLogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
