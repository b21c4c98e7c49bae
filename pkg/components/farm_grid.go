package components

import "github.com/decker502/farm/pkg/ecs"

// FarmGridComponent 农场网格数据
// 用于跟踪哪些格子已有作物，以及本轮快照访问过哪些格子
//
// Occupancy 是一个二维数组，存储每个格子的占用状态
// [row][col] = EntityID，其中 0 表示空格子
// Visited 与 Occupancy 同形，记录当前快照中检测到作物的格子
// 尺寸在收到第一份非空快照时确定，之后不再变化
type FarmGridComponent struct {
	Rows int
	Cols int

	Occupancy [][]ecs.EntityID
	Visited   [][]bool

	// Initialized 网格是否已分配
	Initialized bool
}
