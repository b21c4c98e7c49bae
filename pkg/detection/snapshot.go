package detection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/decker502/farm/pkg/types"
)

// ErrDecode 快照负载无法解析
var ErrDecode = errors.New("decode snapshot")

// MaxGridExtent 网格行数/列数上限，坐标不小于该值的作物不参与网格尺寸计算
const MaxGridExtent = 256

// InGridRange 坐标是否可能落在网格内（非负且小于 MaxGridExtent）
func InGridRange(row, col int) bool {
	return row >= 0 && col >= 0 && row < MaxGridExtent && col < MaxGridExtent
}

// DetectedObject 检测服务识别出的单个作物
// 线上字段名与内存字段名不同，通过 json tag 做显式映射
type DetectedObject struct {
	SectorRow  int    `json:"sector_row"`
	SectorCol  int    `json:"sector_col"`
	Level      string `json:"Lv"`   // "v1" ~ "v4"
	ObjectType string `json:"type"` // "cabbage" / "tomato" / "eggplant"
}

// Key 返回作物所在格子
func (o DetectedObject) Key() SectorKey {
	return SectorKey{Row: o.SectorRow, Col: o.SectorCol}
}

// PlantType 解析作物类型，无法识别时回退到卷心菜
func (o DetectedObject) PlantType() (types.PlantType, bool) {
	t, ok := types.ParsePlantType(o.ObjectType)
	if !ok {
		return types.PlantCabbage, false
	}
	return t, true
}

// PlantLevel 解析生长阶段，无法识别时回退到 Lv1
func (o DetectedObject) PlantLevel() (types.PlantLevel, bool) {
	l, ok := types.ParsePlantLevel(o.Level)
	if !ok {
		return types.Lv1, false
	}
	return l, true
}

// Snapshot 一次检测结果：格子 key -> 该格子内的作物列表
type Snapshot map[string][]DetectedObject

// DecodeSnapshot 解析一条 SSE data 负载
// 参数:
//   - payload: 去掉 "data:" 前缀后的 JSON 文本
//
// 返回:
//   - Snapshot: 解析结果（payload 为 null 时返回空快照）
//   - error: 解析失败时返回包装了 ErrDecode 的错误
func DecodeSnapshot(payload []byte) (Snapshot, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

// Extent 计算快照覆盖的网格尺寸（最大行/列 + 1）
// 同时统计格子 key 和作物自身的坐标，无法解析的 key 和超出 MaxGridExtent 的坐标被忽略
func (s Snapshot) Extent() (rows, cols int) {
	maxRow, maxCol := -1, -1
	for raw, objects := range s {
		if key, err := ParseSectorKey(raw); err == nil && InGridRange(key.Row, key.Col) {
			maxRow = max(maxRow, key.Row)
			maxCol = max(maxCol, key.Col)
		}
		for _, o := range objects {
			if !InGridRange(o.SectorRow, o.SectorCol) {
				continue
			}
			maxRow = max(maxRow, o.SectorRow)
			maxCol = max(maxCol, o.SectorCol)
		}
	}
	if maxRow < 0 || maxCol < 0 {
		return 0, 0
	}
	return maxRow + 1, maxCol + 1
}

// SortedKeys 返回按行优先排序的格子 key，保证遍历顺序稳定
// 无法解析的 key 排在最后，按字典序
func (s Snapshot) SortedKeys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		ki, errI := ParseSectorKey(keys[i])
		kj, errJ := ParseSectorKey(keys[j])
		switch {
		case errI != nil && errJ != nil:
			return keys[i] < keys[j]
		case errI != nil:
			return false
		case errJ != nil:
			return true
		case ki.Row != kj.Row:
			return ki.Row < kj.Row
		default:
			return ki.Col < kj.Col
		}
	})
	return keys
}

// OutOfRange 返回坐标超出 MaxGridExtent 或为负数的作物数量
func (s Snapshot) OutOfRange() int {
	n := 0
	for _, objects := range s {
		for _, o := range objects {
			if !InGridRange(o.SectorRow, o.SectorCol) {
				n++
			}
		}
	}
	return n
}

// ObjectCount 返回快照中作物总数
func (s Snapshot) ObjectCount() int {
	n := 0
	for _, objects := range s {
		n += len(objects)
	}
	return n
}
