package components

import (
	"time"

	"github.com/google/uuid"

	"github.com/decker502/farm/pkg/types"
)

// PlantComponent 标识实体为作物
// 包含作物类型、生长阶段、评级和所在格子位置信息
//
// 由农场网格独占：首次在某格子检测到作物时创建，
// 该格子从有作物变为未检测到时收获并销毁
type PlantComponent struct {
	// ID 作物的全局唯一标识，上报收获数据时使用
	ID uuid.UUID

	PlantType types.PlantType
	Level     types.PlantLevel
	// Rank 由 Level 通过固定映射得出
	Rank types.PlantRank

	// GridRow 所在行
	GridRow int
	// GridCol 所在列
	GridCol int

	// Exists 作物是否仍在网格中（收获后为 false）
	Exists bool

	PlantedAt time.Time
	UpdatedAt time.Time
}
