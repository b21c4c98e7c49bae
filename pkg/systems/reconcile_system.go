package systems

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/components"
	"github.com/decker502/farm/pkg/detection"
	"github.com/decker502/farm/pkg/ecs"
	"github.com/decker502/farm/pkg/entities"
	"github.com/decker502/farm/pkg/logging"
	"github.com/decker502/farm/pkg/metrics"
	"github.com/decker502/farm/pkg/types"
)

// PlantEventListener 网格展示层，接收作物创建/更新/收获事件
// 所有回调都在主线程中、快照应用过程中同步调用
type PlantEventListener interface {
	OnPlantCreated(id ecs.EntityID, plant *components.PlantComponent)
	OnPlantUpdated(id ecs.EntityID, plant *components.PlantComponent)
	OnPlantHarvested(record components.HarvestRecord)
}

// FarmSizer 农场尺寸协作方，网格尺寸确定时调用一次
type FarmSizer interface {
	OnFarmSized(rows, cols int)
}

// HarvestRecorder 收获记录的接收方
type HarvestRecorder interface {
	RecordHarvest(record components.HarvestRecord)
}

// ReconcileResult 一次快照应用的统计
type ReconcileResult struct {
	// Initialized 本次快照是否确定了网格尺寸
	Initialized bool
	Created     int
	Updated     int
	Harvested   int
	// Skipped 因坐标越界被跳过的作物数量
	Skipped int
}

// ReconcileSystem 将检测快照应用到农场网格
//
// 每份快照的处理流程：
//  1. 网格未初始化时，按快照覆盖范围（最大行/列 + 1）分配网格，只发生一次
//  2. 重置访问数组，使收获严格表示"本轮快照未检测到"
//  3. 遍历快照中的作物：格子为空则创建作物（唯一的创建路径），标记访问，更新类型和阶段
//  4. 收获所有未访问但有作物的格子
type ReconcileSystem struct {
	entityManager *ecs.EntityManager
	grid          *FarmGridSystem
	recorder      HarvestRecorder
	listener      PlantEventListener
	sizer         FarmSizer
	logger        zerolog.Logger
	now           func() time.Time
}

// NewReconcileSystem 创建快照应用系统
// 参数:
//   - em: 实体管理器
//   - grid: 农场网格系统
//   - recorder: 收获记录接收方，可为 nil
//   - logger: 日志器
//
// 返回:
//   - *ReconcileSystem: 快照应用系统实例
func NewReconcileSystem(em *ecs.EntityManager, grid *FarmGridSystem, recorder HarvestRecorder, logger zerolog.Logger) *ReconcileSystem {
	return &ReconcileSystem{
		entityManager: em,
		grid:          grid,
		recorder:      recorder,
		logger:        logging.Component(logger, "reconcile"),
		now:           time.Now,
	}
}

// SetListener 设置展示层监听器
func (s *ReconcileSystem) SetListener(listener PlantEventListener) {
	s.listener = listener
}

// SetFarmSizer 设置农场尺寸协作方
func (s *ReconcileSystem) SetFarmSizer(sizer FarmSizer) {
	s.sizer = sizer
}

// Apply 应用一份快照，必须在主线程调用
func (s *ReconcileSystem) Apply(snapshot detection.Snapshot) ReconcileResult {
	var result ReconcileResult

	if !s.grid.IsInitialized() {
		if !s.initializeGrid(snapshot) {
			return result
		}
		result.Initialized = true
	}

	if err := s.grid.ResetVisited(); err != nil {
		s.logger.Error().Err(err).Msg("failed to reset visited flags")
		return result
	}

	for _, key := range snapshot.SortedKeys() {
		for _, obj := range snapshot[key] {
			s.applyObject(key, obj, &result)
		}
	}

	result.Harvested = s.harvestUnvisited()

	metrics.RecordReconcile(result.Created, result.Updated, result.Harvested, result.Skipped)
	s.logger.Debug().
		Int("sectors", len(snapshot)).
		Int("objects", snapshot.ObjectCount()).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("harvested", result.Harvested).
		Int("skipped", result.Skipped).
		Msg("snapshot applied")

	return result
}

// initializeGrid 按快照覆盖范围分配网格，快照为空时不分配
// 超出 detection.MaxGridExtent 的坐标不参与尺寸计算，随后在应用阶段作为越界跳过
func (s *ReconcileSystem) initializeGrid(snapshot detection.Snapshot) bool {
	if n := snapshot.OutOfRange(); n > 0 {
		s.logger.Warn().Int("objects", n).Int("max_extent", detection.MaxGridExtent).Msg("ignoring out-of-range coordinates when sizing farm grid")
	}

	rows, cols := snapshot.Extent()
	if rows == 0 || cols == 0 {
		s.logger.Debug().Msg("snapshot has no sectors, grid size still unknown")
		return false
	}

	if err := s.grid.Initialize(rows, cols); err != nil {
		s.logger.Error().Err(err).Int("rows", rows).Int("cols", cols).Msg("failed to initialize farm grid")
		return false
	}

	s.logger.Info().Int("rows", rows).Int("cols", cols).Msg("farm grid sized from first snapshot")
	if s.sizer != nil {
		s.sizer.OnFarmSized(rows, cols)
	}
	return true
}

// applyObject 处理单个检测结果，越界坐标跳过并记录警告
func (s *ReconcileSystem) applyObject(sectorKey string, obj detection.DetectedObject, result *ReconcileResult) {
	pos := obj.Key()
	row, col := pos.Row, pos.Col

	plantEntity, err := s.grid.Get(row, col)
	if err != nil {
		result.Skipped++
		gridRows, gridCols := s.grid.Extent()
		s.logger.Warn().
			Err(err).
			Str("sector", sectorKey).
			Int("row", row).
			Int("col", col).
			Int("grid_rows", gridRows).
			Int("grid_cols", gridCols).
			Msg("detected object outside farm grid, skipped")
		return
	}

	created := false
	var plant *components.PlantComponent
	if plantEntity == 0 {
		plantEntity, plant = entities.NewPlantEntity(s.entityManager, row, col)
		if err := s.grid.Set(row, col, plantEntity); err != nil {
			// 已通过边界检查，理论上不会发生
			s.logger.Error().Err(err).Int("row", row).Int("col", col).Msg("failed to place plant")
			s.entityManager.DestroyEntity(plantEntity)
			return
		}
		created = true
		result.Created++
	} else {
		var ok bool
		plant, ok = ecs.GetComponent[*components.PlantComponent](s.entityManager, plantEntity)
		if !ok {
			s.logger.Error().Uint64("entity", uint64(plantEntity)).Int("row", row).Int("col", col).Msg("grid cell references entity without PlantComponent")
			return
		}
	}

	if err := s.grid.MarkVisited(row, col); err != nil {
		s.logger.Error().Err(err).Int("row", row).Int("col", col).Msg("failed to mark cell visited")
	}

	changed := s.updatePlant(plant, obj)

	switch {
	case created:
		if s.listener != nil {
			s.listener.OnPlantCreated(plantEntity, plant)
		}
	case changed:
		result.Updated++
		if s.listener != nil {
			s.listener.OnPlantUpdated(plantEntity, plant)
		}
	}
}

// updatePlant 按检测结果更新作物类型、阶段和评级，返回是否有变化
func (s *ReconcileSystem) updatePlant(plant *components.PlantComponent, obj detection.DetectedObject) bool {
	plantType, ok := obj.PlantType()
	if !ok {
		s.logger.Warn().Str("type", obj.ObjectType).Int("row", obj.SectorRow).Int("col", obj.SectorCol).Msg("unknown plant type, using cabbage")
	}
	level, ok := obj.PlantLevel()
	if !ok {
		s.logger.Warn().Str("level", obj.Level).Int("row", obj.SectorRow).Int("col", obj.SectorCol).Msg("unknown plant level, using lv1")
	}
	rank := types.RankForLevel(level)

	if plant.PlantType == plantType && plant.Level == level && plant.Rank == rank {
		return false
	}

	plant.PlantType = plantType
	plant.Level = level
	plant.Rank = rank
	plant.UpdatedAt = s.now()
	return true
}

// harvestUnvisited 收获本轮未访问但有作物的格子，返回收获数量
func (s *ReconcileSystem) harvestUnvisited() int {
	type cell struct {
		row, col int
		entity   ecs.EntityID
	}

	var stale []cell
	s.grid.ForEachCell(func(row, col int, plantEntity ecs.EntityID, visited bool) {
		if plantEntity != 0 && !visited {
			stale = append(stale, cell{row: row, col: col, entity: plantEntity})
		}
	})

	harvested := 0
	for _, c := range stale {
		if err := s.grid.Set(c.row, c.col, 0); err != nil {
			s.logger.Error().Err(err).Int("row", c.row).Int("col", c.col).Msg("failed to clear harvested cell")
			continue
		}

		plant, ok := ecs.GetComponent[*components.PlantComponent](s.entityManager, c.entity)
		if !ok {
			s.logger.Error().Uint64("entity", uint64(c.entity)).Int("row", c.row).Int("col", c.col).Msg("harvested entity has no PlantComponent")
			s.entityManager.DestroyEntity(c.entity)
			continue
		}

		plant.Exists = false
		record := components.NewHarvestRecord(plant, s.now())
		if s.recorder != nil {
			s.recorder.RecordHarvest(record)
		}
		// 摘除作物组件，清理前的查询不再把它计为在场作物
		ecs.RemoveComponent[*components.PlantComponent](s.entityManager, c.entity)
		s.entityManager.DestroyEntity(c.entity)
		harvested++

		s.logger.Info().
			Str("plant", plant.ID.String()).
			Str("type", plant.PlantType.String()).
			Str("level", plant.Level.String()).
			Str("rank", plant.Rank.String()).
			Int("row", c.row).
			Int("col", c.col).
			Msg("plant harvested")

		if s.listener != nil {
			s.listener.OnPlantHarvested(record)
		}
	}
	return harvested
}
