package lottery

import (
	"fmt"

	"github.com/ichi0g0y/wheel-overlay/internal/types"
)

// GenerateEntries はN件のテスト用エントリーを決定論的に生成する。
func GenerateEntries(n int) []types.WheelEntry {
	if n <= 0 {
		return []types.WheelEntry{}
	}

	entries := make([]types.WheelEntry, n)
	for i := 0; i < n; i++ {
		entries[i] = types.WheelEntry{
			Name:         fmt.Sprintf("user_%03d", i+1),
			Avatar:       DefaultAvatar,
			IsSubscriber: i%2 == 0,
		}
	}
	return entries
}
