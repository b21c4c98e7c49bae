package entities

import (
	"time"

	"github.com/google/uuid"

	"github.com/decker502/farm/pkg/components"
	"github.com/decker502/farm/pkg/ecs"
	"github.com/decker502/farm/pkg/types"
)

// NewPlantEntity 创建作物实体
// 在指定格子创建一个带 PlantComponent 的实体，类型和阶段由调用方随后更新
//
// 参数:
//   - em: 实体管理器
//   - row: 网格行索引
//   - col: 网格列索引
//
// 返回:
//   - ecs.EntityID: 创建的作物实体ID
//   - *components.PlantComponent: 挂在实体上的作物组件
func NewPlantEntity(em *ecs.EntityManager, row, col int) (ecs.EntityID, *components.PlantComponent) {
	now := time.Now()

	entityID := em.CreateEntity()
	plant := &components.PlantComponent{
		ID:        uuid.New(),
		PlantType: types.PlantUnknown,
		Level:     types.LevelUnknown,
		Rank:      types.RankUnknown,
		GridRow:   row,
		GridCol:   col,
		Exists:    true,
		PlantedAt: now,
		UpdatedAt: now,
	}
	ecs.AddComponent(em, entityID, plant)

	return entityID, plant
}
