// Package detection 定义检测服务下发的数据模型
//
// 线上格式：每个 SSE data 行是一个 JSON 对象，
// key 为 "row-col" 形式的格子坐标，value 为该格子内检测到的作物列表。
package detection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSectorKey 格子坐标字符串格式错误
var ErrInvalidSectorKey = errors.New("invalid sector key")

// SectorKey 格子坐标，对应线上格式 "row-col"
type SectorKey struct {
	Row int
	Col int
}

// String 返回线上格式 "row-col"
func (k SectorKey) String() string {
	return fmt.Sprintf("%d-%d", k.Row, k.Col)
}

// ParseSectorKey 解析 "row-col" 形式的格子坐标
// 参数:
//   - raw: 线上格式的 key，如 "2-3"
//
// 返回:
//   - SectorKey: 解析后的坐标
//   - error: 格式错误或坐标为负数时返回 ErrInvalidSectorKey
func ParseSectorKey(raw string) (SectorKey, error) {
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return SectorKey{}, fmt.Errorf("%w: %q", ErrInvalidSectorKey, raw)
	}

	row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return SectorKey{}, fmt.Errorf("%w: %q: bad row", ErrInvalidSectorKey, raw)
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return SectorKey{}, fmt.Errorf("%w: %q: bad col", ErrInvalidSectorKey, raw)
	}
	if row < 0 || col < 0 {
		return SectorKey{}, fmt.Errorf("%w: %q: negative coordinate", ErrInvalidSectorKey, raw)
	}

	return SectorKey{Row: row, Col: col}, nil
}
