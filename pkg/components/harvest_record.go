package components

import (
	"time"

	"github.com/google/uuid"

	"github.com/decker502/farm/pkg/types"
)

// HarvestRecord 一次收获的快照
// 作物实体在收获后被销毁，因此收获记录保存其最终状态的副本
type HarvestRecord struct {
	ID          uuid.UUID        `yaml:"id"`
	PlantType   types.PlantType  `yaml:"type"`
	Level       types.PlantLevel `yaml:"level"`
	Rank        types.PlantRank  `yaml:"rank"`
	GridRow     int              `yaml:"row"`
	GridCol     int              `yaml:"col"`
	PlantedAt   time.Time        `yaml:"plantedAt"`
	HarvestedAt time.Time        `yaml:"harvestedAt"`
}

// NewHarvestRecord 由作物组件生成收获记录
func NewHarvestRecord(plant *PlantComponent, harvestedAt time.Time) HarvestRecord {
	return HarvestRecord{
		ID:          plant.ID,
		PlantType:   plant.PlantType,
		Level:       plant.Level,
		Rank:        plant.Rank,
		GridRow:     plant.GridRow,
		GridCol:     plant.GridCol,
		PlantedAt:   plant.PlantedAt,
		HarvestedAt: harvestedAt,
	}
}
