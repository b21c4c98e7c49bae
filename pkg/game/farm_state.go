package game

import (
	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/components"
	"github.com/decker502/farm/pkg/detection"
	"github.com/decker502/farm/pkg/dispatcher"
	"github.com/decker502/farm/pkg/ecs"
	"github.com/decker502/farm/pkg/logging"
	"github.com/decker502/farm/pkg/systems"
)

// FarmState 农场运行时上下文
// 持有实体管理器、网格、快照应用系统、收获账本和主线程回调队列。
// 除 Dispatcher().Enqueue 外，所有方法都只能在主线程调用。
type FarmState struct {
	entityManager *ecs.EntityManager
	grid          *systems.FarmGridSystem
	reconcile     *systems.ReconcileSystem
	ledger        *HarvestLedger
	dispatcher    *dispatcher.Dispatcher
	logger        zerolog.Logger

	lastResult systems.ReconcileResult
	snapshots  int
}

// NewFarmState 创建农场上下文
func NewFarmState(logger zerolog.Logger) *FarmState {
	em := ecs.NewEntityManager()
	grid := systems.NewFarmGridSystem(em)
	ledger := NewHarvestLedger()

	return &FarmState{
		entityManager: em,
		grid:          grid,
		reconcile:     systems.NewReconcileSystem(em, grid, ledger, logger),
		ledger:        ledger,
		dispatcher:    dispatcher.New(logger),
		logger:        logging.Component(logger, "farm"),
	}
}

// Dispatcher 返回主线程回调队列，流式客户端通过它投递快照
func (fs *FarmState) Dispatcher() *dispatcher.Dispatcher {
	return fs.dispatcher
}

// Ledger 返回收获账本
func (fs *FarmState) Ledger() *HarvestLedger {
	return fs.ledger
}

// Grid 返回农场网格
func (fs *FarmState) Grid() *systems.FarmGridSystem {
	return fs.grid
}

// SetListener 设置展示层监听器
func (fs *FarmState) SetListener(listener systems.PlantEventListener) {
	fs.reconcile.SetListener(listener)
}

// SetFarmSizer 设置农场尺寸协作方
func (fs *FarmState) SetFarmSizer(sizer systems.FarmSizer) {
	fs.reconcile.SetFarmSizer(sizer)
}

// ApplySnapshot 应用一份检测快照
func (fs *FarmState) ApplySnapshot(snapshot detection.Snapshot) {
	fs.lastResult = fs.reconcile.Apply(snapshot)
	fs.snapshots++
}

// LastResult 返回最近一次快照应用的统计
func (fs *FarmState) LastResult() systems.ReconcileResult {
	return fs.lastResult
}

// SnapshotsApplied 返回已应用的快照数量
func (fs *FarmState) SnapshotsApplied() int {
	return fs.snapshots
}

// Tick 执行一帧：运行已投递的回调，然后清理被销毁的实体
// 返回本帧执行的回调数量
func (fs *FarmState) Tick() int {
	ran := fs.dispatcher.Drain()
	if removed := fs.entityManager.RemoveMarkedEntities(); removed > 0 {
		fs.logger.Debug().Int("removed", removed).Msg("destroyed entities cleaned up")
	}
	return ran
}

// PlantAt 返回某格子上的作物
func (fs *FarmState) PlantAt(row, col int) (ecs.EntityID, *components.PlantComponent, bool) {
	id, err := fs.grid.Get(row, col)
	if err != nil || id == 0 {
		return 0, nil, false
	}
	plant, ok := ecs.GetComponent[*components.PlantComponent](fs.entityManager, id)
	if !ok {
		return 0, nil, false
	}
	return id, plant, true
}

// PlantCount 返回在场作物数量（已收获待清理的实体不计入）
func (fs *FarmState) PlantCount() int {
	return len(ecs.GetEntitiesWith[*components.PlantComponent](fs.entityManager))
}

// Plants 返回网格上所有作物，按行优先顺序
func (fs *FarmState) Plants() []*components.PlantComponent {
	var plants []*components.PlantComponent
	fs.grid.ForEachCell(func(row, col int, id ecs.EntityID, _ bool) {
		if id == 0 {
			return
		}
		if plant, ok := ecs.GetComponent[*components.PlantComponent](fs.entityManager, id); ok {
			plants = append(plants, plant)
		}
	})
	return plants
}
