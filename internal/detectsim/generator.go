package detectsim

import (
	"math/rand"

	"github.com/decker502/farm/pkg/detection"
)

var (
	plantKinds = []string{"cabbage", "tomato", "eggplant"}
	levels     = []string{"v1", "v2", "v3", "v4"}
)

// 每次 Next 的事件概率
const (
	plantChance   = 0.15 // 空格子长出作物
	growChance    = 0.30 // 作物升一级
	harvestChance = 0.25 // 成熟作物被收获
)

type simPlant struct {
	kind  string
	level int // levels 下标
}

// Generator 生成随机变化的检测快照
// 每份快照包含全部格子（没有作物的格子为空列表），客户端据此确定网格尺寸
type Generator struct {
	rows, cols int
	rng        *rand.Rand
	plants     map[detection.SectorKey]*simPlant
}

// NewGenerator 创建快照生成器
func NewGenerator(rows, cols int, seed int64) *Generator {
	return &Generator{
		rows:   rows,
		cols:   cols,
		rng:    rand.New(rand.NewSource(seed)),
		plants: make(map[detection.SectorKey]*simPlant),
	}
}

// Next 推进一步并返回当前快照
func (g *Generator) Next() detection.Snapshot {
	snap := make(detection.Snapshot, g.rows*g.cols)
	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			key := detection.SectorKey{Row: row, Col: col}
			g.step(key)

			objects := []detection.DetectedObject{}
			if p, ok := g.plants[key]; ok {
				objects = append(objects, detection.DetectedObject{
					SectorRow:  row,
					SectorCol:  col,
					Level:      levels[p.level],
					ObjectType: p.kind,
				})
			}
			snap[key.String()] = objects
		}
	}
	return snap
}

// PlantCount 返回当前作物数量
func (g *Generator) PlantCount() int {
	return len(g.plants)
}

func (g *Generator) step(key detection.SectorKey) {
	p, ok := g.plants[key]
	if !ok {
		if g.rng.Float64() < plantChance {
			g.plants[key] = &simPlant{kind: plantKinds[g.rng.Intn(len(plantKinds))]}
		}
		return
	}

	if p.level == len(levels)-1 {
		if g.rng.Float64() < harvestChance {
			delete(g.plants, key)
		}
		return
	}
	if g.rng.Float64() < growChance {
		p.level++
	}
}
