package game

import (
	"sync"

	"github.com/decker502/farm/pkg/components"
)

// HarvestLedger 收获记录账本
// 只追加，记录在主线程写入；读取和 Drain 可以在任意 goroutine 调用（例如退出时持久化）
type HarvestLedger struct {
	mu      sync.Mutex
	records []components.HarvestRecord
}

// NewHarvestLedger 创建空账本
func NewHarvestLedger() *HarvestLedger {
	return &HarvestLedger{}
}

// RecordHarvest 追加一条收获记录
func (l *HarvestLedger) RecordHarvest(record components.HarvestRecord) {
	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()
}

// Records 返回全部记录的副本
func (l *HarvestLedger) Records() []components.HarvestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]components.HarvestRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len 返回记录数量
func (l *HarvestLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Drain 取走全部记录并清空账本
func (l *HarvestLedger) Drain() []components.HarvestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.records
	l.records = nil
	return out
}
