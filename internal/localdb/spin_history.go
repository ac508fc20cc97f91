package localdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ichi0g0y/wheel-overlay/internal/shared/logger"
	"go.uber.org/zap"
)

// SpinHistory は1回のスピン結果を保持する。
type SpinHistory struct {
	ID           string    `json:"id"`
	WinnerName   string    `json:"winner_name"`
	WinnerAvatar string    `json:"winner_avatar"`
	IsSubscriber bool      `json:"is_subscriber"`
	Mode         string    `json:"mode"`
	TotalEntries int       `json:"total_entries"`
	WinnerIndex  int       `json:"winner_index"`
	EntriesJSON  string    `json:"entries_json"`
	SpunAt       time.Time `json:"spun_at"`
}

// SetupSpinHistoryTables creates the wheel_spin_history table.
func SetupSpinHistoryTables(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS wheel_spin_history (
			id TEXT PRIMARY KEY,
			winner_name TEXT NOT NULL,
			winner_avatar TEXT,
			is_subscriber BOOLEAN NOT NULL DEFAULT false,
			mode TEXT NOT NULL,
			total_entries INTEGER NOT NULL,
			winner_index INTEGER NOT NULL,
			entries_json TEXT,
			spun_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		logger.Error("Failed to create wheel_spin_history table", zap.Error(err))
		return fmt.Errorf("failed to create wheel_spin_history table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_wheel_spin_history_spun_at ON wheel_spin_history(spun_at DESC)`); err != nil {
		logger.Warn("Failed to create wheel_spin_history index", zap.Error(err))
	}

	return nil
}

// SaveSpinHistory saves one resolved spin.
func SaveSpinHistory(history SpinHistory) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	if history.ID == "" {
		return fmt.Errorf("spin history id is required")
	}

	if history.SpunAt.IsZero() {
		history.SpunAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO wheel_spin_history (
			id, winner_name, winner_avatar, is_subscriber, mode, total_entries, winner_index, entries_json, spun_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		history.ID,
		history.WinnerName,
		history.WinnerAvatar,
		history.IsSubscriber,
		history.Mode,
		history.TotalEntries,
		history.WinnerIndex,
		history.EntriesJSON,
		history.SpunAt,
	)
	if err != nil {
		logger.Error("Failed to save spin history", zap.Error(err), zap.String("id", history.ID))
		return fmt.Errorf("failed to save spin history: %w", err)
	}

	return nil
}

// GetSpinHistory returns spin history ordered by latest first.
func GetSpinHistory(limit int) ([]SpinHistory, error) {
	db := GetDB()
	if db == nil {
		return []SpinHistory{}, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT id, winner_name, COALESCE(winner_avatar, ''), is_subscriber, mode, total_entries, winner_index, COALESCE(entries_json, ''), spun_at
		FROM wheel_spin_history
		ORDER BY spun_at DESC, rowid DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = db.Query(query)
	}
	if err != nil {
		logger.Error("Failed to get spin history", zap.Error(err))
		return []SpinHistory{}, fmt.Errorf("failed to get spin history: %w", err)
	}
	defer rows.Close()

	history := []SpinHistory{}
	for rows.Next() {
		var item SpinHistory
		if err := rows.Scan(
			&item.ID,
			&item.WinnerName,
			&item.WinnerAvatar,
			&item.IsSubscriber,
			&item.Mode,
			&item.TotalEntries,
			&item.WinnerIndex,
			&item.EntriesJSON,
			&item.SpunAt,
		); err != nil {
			logger.Error("Failed to scan spin history", zap.Error(err))
			continue
		}
		history = append(history, item)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Error iterating spin history", zap.Error(err))
		return []SpinHistory{}, fmt.Errorf("failed to iterate spin history: %w", err)
	}

	return history, nil
}

// DeleteSpinHistory deletes one record. It reports whether a row was removed.
func DeleteSpinHistory(id string) (bool, error) {
	db := GetDB()
	if db == nil {
		return false, fmt.Errorf("database not initialized")
	}

	res, err := db.Exec(`DELETE FROM wheel_spin_history WHERE id = ?`, id)
	if err != nil {
		logger.Error("Failed to delete spin history", zap.Error(err), zap.String("id", id))
		return false, fmt.Errorf("failed to delete spin history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
