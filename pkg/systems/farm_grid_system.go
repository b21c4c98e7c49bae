package systems

import (
	"errors"
	"fmt"

	"github.com/decker502/farm/pkg/components"
	"github.com/decker502/farm/pkg/detection"
	"github.com/decker502/farm/pkg/ecs"
)

var (
	// ErrOutOfBounds 坐标超出已初始化的网格范围
	ErrOutOfBounds = errors.New("grid position out of bounds")
	// ErrAlreadyInitialized 网格已初始化，不允许再次分配
	ErrAlreadyInitialized = errors.New("farm grid already initialized")
	// ErrNotInitialized 网格尚未初始化
	ErrNotInitialized = errors.New("farm grid not initialized")
	// ErrInvalidExtent 网格尺寸必须为正数且不超过 detection.MaxGridExtent
	ErrInvalidExtent = errors.New("invalid farm grid extent")
)

// FarmGridSystem 管理农场网格的占用状态
// 负责跟踪哪些格子已有作物、本轮快照访问过哪些格子，并提供带边界检查的读写方法
// 网格尺寸只分配一次，之后的快照即使范围更大也不会扩容
type FarmGridSystem struct {
	entityManager *ecs.EntityManager
	gridEntity    ecs.EntityID
}

// NewFarmGridSystem 创建农场网格系统
// 参数:
//   - em: EntityManager 实例，网格本身也作为一个实体挂载 FarmGridComponent
//
// 返回:
//   - *FarmGridSystem: 农场网格系统实例（尚未初始化尺寸）
func NewFarmGridSystem(em *ecs.EntityManager) *FarmGridSystem {
	gridEntity := em.CreateEntity()
	ecs.AddComponent(em, gridEntity, &components.FarmGridComponent{})

	return &FarmGridSystem{
		entityManager: em,
		gridEntity:    gridEntity,
	}
}

// GridEntity 返回网格实体ID
func (s *FarmGridSystem) GridEntity() ecs.EntityID {
	return s.gridEntity
}

// Initialize 按给定尺寸分配占用数组和访问数组
// 参数:
//   - rows: 行数
//   - cols: 列数
//
// 返回:
//   - error: 重复初始化返回 ErrAlreadyInitialized（已有状态保持不变），尺寸非法或超出上限返回 ErrInvalidExtent
func (s *FarmGridSystem) Initialize(rows, cols int) error {
	grid, err := s.component()
	if err != nil {
		return err
	}
	if grid.Initialized {
		return fmt.Errorf("%w: current extent %dx%d, requested %dx%d", ErrAlreadyInitialized, grid.Rows, grid.Cols, rows, cols)
	}
	if rows <= 0 || cols <= 0 || rows > detection.MaxGridExtent || cols > detection.MaxGridExtent {
		return fmt.Errorf("%w: %dx%d", ErrInvalidExtent, rows, cols)
	}

	grid.Occupancy = make([][]ecs.EntityID, rows)
	grid.Visited = make([][]bool, rows)
	for r := 0; r < rows; r++ {
		grid.Occupancy[r] = make([]ecs.EntityID, cols)
		grid.Visited[r] = make([]bool, cols)
	}
	grid.Rows = rows
	grid.Cols = cols
	grid.Initialized = true
	return nil
}

// IsInitialized 网格是否已分配
func (s *FarmGridSystem) IsInitialized() bool {
	grid, err := s.component()
	return err == nil && grid.Initialized
}

// Extent 返回网格尺寸，未初始化时为 (0, 0)
func (s *FarmGridSystem) Extent() (rows, cols int) {
	grid, err := s.component()
	if err != nil || !grid.Initialized {
		return 0, 0
	}
	return grid.Rows, grid.Cols
}

// Get 返回指定格子的作物实体ID，0 表示空格子
// 参数:
//   - row: 行索引
//   - col: 列索引
//
// 返回:
//   - ecs.EntityID: 占用该格子的作物实体ID
//   - error: 越界返回 ErrOutOfBounds，未初始化返回 ErrNotInitialized
func (s *FarmGridSystem) Get(row, col int) (ecs.EntityID, error) {
	grid, err := s.checked(row, col)
	if err != nil {
		return 0, err
	}
	return grid.Occupancy[row][col], nil
}

// Set 设置指定格子的作物实体ID，传入 0 表示清空
func (s *FarmGridSystem) Set(row, col int, plantEntity ecs.EntityID) error {
	grid, err := s.checked(row, col)
	if err != nil {
		return err
	}
	grid.Occupancy[row][col] = plantEntity
	return nil
}

// IsOccupied 检查指定格子是否有作物，越界视为无作物
func (s *FarmGridSystem) IsOccupied(row, col int) bool {
	id, err := s.Get(row, col)
	return err == nil && id != 0
}

// MarkVisited 标记指定格子在本轮快照中检测到作物
func (s *FarmGridSystem) MarkVisited(row, col int) error {
	grid, err := s.checked(row, col)
	if err != nil {
		return err
	}
	grid.Visited[row][col] = true
	return nil
}

// IsVisited 返回指定格子在本轮快照中是否被访问
func (s *FarmGridSystem) IsVisited(row, col int) (bool, error) {
	grid, err := s.checked(row, col)
	if err != nil {
		return false, err
	}
	return grid.Visited[row][col], nil
}

// ResetVisited 将整个访问数组重置为 false
func (s *FarmGridSystem) ResetVisited() error {
	grid, err := s.component()
	if err != nil {
		return err
	}
	if !grid.Initialized {
		return ErrNotInitialized
	}
	for r := range grid.Visited {
		clear(grid.Visited[r])
	}
	return nil
}

// ForEachCell 按行优先顺序遍历所有格子
// 回调参数为坐标、占用实体ID和访问标记；网格未初始化时不调用
func (s *FarmGridSystem) ForEachCell(fn func(row, col int, plantEntity ecs.EntityID, visited bool)) {
	grid, err := s.component()
	if err != nil || !grid.Initialized {
		return
	}
	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			fn(r, c, grid.Occupancy[r][c], grid.Visited[r][c])
		}
	}
}

// component 获取 FarmGridComponent
func (s *FarmGridSystem) component() (*components.FarmGridComponent, error) {
	grid, ok := ecs.GetComponent[*components.FarmGridComponent](s.entityManager, s.gridEntity)
	if !ok {
		return nil, fmt.Errorf("failed to get FarmGridComponent from entity %d", s.gridEntity)
	}
	return grid, nil
}

// checked 获取组件并做边界检查
func (s *FarmGridSystem) checked(row, col int) (*components.FarmGridComponent, error) {
	grid, err := s.component()
	if err != nil {
		return nil, err
	}
	if !grid.Initialized {
		return nil, ErrNotInitialized
	}
	if row < 0 || row >= grid.Rows || col < 0 || col >= grid.Cols {
		return nil, fmt.Errorf("%w: row=%d, col=%d (valid range: row 0-%d, col 0-%d)",
			ErrOutOfBounds, row, col, grid.Rows-1, grid.Cols-1)
	}
	return grid, nil
}
