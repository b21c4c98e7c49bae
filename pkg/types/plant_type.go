// Package types 定义共享的基础类型
// 这个包不依赖任何其他业务包，用于解决循环引用问题
package types

import "strings"

// PlantType 定义作物的类型
type PlantType int

const (
	// PlantUnknown 未知作物类型
	PlantUnknown PlantType = iota
	// PlantCabbage 卷心菜
	PlantCabbage
	// PlantTomato 番茄
	PlantTomato
	// PlantEggplant 茄子
	PlantEggplant
)

// String 返回作物类型的字符串表示
func (p PlantType) String() string {
	switch p {
	case PlantCabbage:
		return "Cabbage"
	case PlantTomato:
		return "Tomato"
	case PlantEggplant:
		return "Eggplant"
	default:
		return "Unknown"
	}
}

// ExportName 返回上报收获数据时使用的小写名称（"cabbage"、"tomato"、"eggplant"）
func (p PlantType) ExportName() string {
	switch p {
	case PlantCabbage:
		return "cabbage"
	case PlantTomato:
		return "tomato"
	case PlantEggplant:
		return "eggplant"
	default:
		return "error"
	}
}

// ParsePlantType 解析检测服务下发的作物类型字符串
// 参数:
//   - wire: 线上格式的类型，如 "cabbage"、"tomato"、"eggplant"（忽略大小写和首尾空白）
//
// 返回:
//   - PlantType: 解析结果，无法识别时为 PlantUnknown
//   - bool: 是否识别成功
func ParsePlantType(wire string) (PlantType, bool) {
	switch strings.ToLower(strings.TrimSpace(wire)) {
	case "cabbage":
		return PlantCabbage, true
	case "tomato":
		return PlantTomato, true
	case "eggplant":
		return PlantEggplant, true
	default:
		return PlantUnknown, false
	}
}

// PlantLevel 作物生长阶段
type PlantLevel int

const (
	// LevelUnknown 未知阶段
	LevelUnknown PlantLevel = iota
	Lv1
	Lv2
	Lv3
	Lv4
)

// String 返回生长阶段的字符串表示
func (l PlantLevel) String() string {
	switch l {
	case Lv1:
		return "Lv1"
	case Lv2:
		return "Lv2"
	case Lv3:
		return "Lv3"
	case Lv4:
		return "Lv4"
	default:
		return "Unknown"
	}
}

// ExportName 返回上报收获数据时使用的小写名称（"lv1" ~ "lv4"）
func (l PlantLevel) ExportName() string {
	switch l {
	case Lv1:
		return "lv1"
	case Lv2:
		return "lv2"
	case Lv3:
		return "lv3"
	case Lv4:
		return "lv4"
	default:
		return "error"
	}
}

// ParsePlantLevel 解析检测服务下发的阶段字符串（"v1" ~ "v4"）
func ParsePlantLevel(wire string) (PlantLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(wire)) {
	case "v1":
		return Lv1, true
	case "v2":
		return Lv2, true
	case "v3":
		return Lv3, true
	case "v4":
		return Lv4, true
	default:
		return LevelUnknown, false
	}
}

// PlantRank 作物评级，界面展示用
type PlantRank int

const (
	RankUnknown PlantRank = iota
	RankA
	RankB
	RankC
	RankD
)

// String 返回评级的字符串表示
func (r PlantRank) String() string {
	switch r {
	case RankA:
		return "A"
	case RankB:
		return "B"
	case RankC:
		return "C"
	case RankD:
		return "D"
	default:
		return "Unknown"
	}
}

// ExportName 返回上报收获数据时使用的小写名称（"a" ~ "d"）
func (r PlantRank) ExportName() string {
	switch r {
	case RankA:
		return "a"
	case RankB:
		return "b"
	case RankC:
		return "c"
	case RankD:
		return "d"
	default:
		return "error"
	}
}

// levelRanks 阶段到评级的固定映射
// 注意：Lv4 对应 D，并非单调递增，保持与线上客户端一致
var levelRanks = map[PlantLevel]PlantRank{
	Lv1: RankC,
	Lv2: RankB,
	Lv3: RankA,
	Lv4: RankD,
}

// RankForLevel 根据生长阶段返回评级，未知阶段返回 RankUnknown
func RankForLevel(level PlantLevel) PlantRank {
	if rank, ok := levelRanks[level]; ok {
		return rank
	}
	return RankUnknown
}
