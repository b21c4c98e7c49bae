package game

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quasilyte/gdata/v2"
	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/components"
	"github.com/decker502/farm/pkg/types"
)

func sampleRecord(plantType types.PlantType, level types.PlantLevel) components.HarvestRecord {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return components.HarvestRecord{
		ID:          uuid.New(),
		PlantType:   plantType,
		Level:       level,
		Rank:        types.RankForLevel(level),
		GridRow:     1,
		GridCol:     2,
		PlantedAt:   now.Add(-time.Hour),
		HarvestedAt: now,
	}
}

// createTestGdataManager 创建用于测试的 gdata Manager
func createTestGdataManager(t *testing.T, testName string) *gdata.Manager {
	t.Helper()

	tempDir := t.TempDir()
	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	t.Cleanup(func() { os.Setenv("HOME", originalHome) })

	appName := fmt.Sprintf("farm_test_%s_%d", testName, time.Now().UnixNano())
	manager, err := gdata.Open(gdata.Config{
		AppName: appName,
	})
	if err != nil {
		return nil
	}

	t.Cleanup(func() {
		os.RemoveAll(filepath.Join(tempDir, ".local", "share", appName))
	})
	return manager
}

// TestHarvestStoreSaveLoad 测试保存并读取收获记录
func TestHarvestStoreSaveLoad(t *testing.T) {
	manager := createTestGdataManager(t, "save_load")
	if manager == nil {
		t.Skip("Cannot create gdata manager for testing")
	}
	store := NewHarvestStore(manager, zerolog.Nop())

	records := []components.HarvestRecord{
		sampleRecord(types.PlantCabbage, types.Lv1),
		sampleRecord(types.PlantEggplant, types.Lv4),
	}
	if err := store.Save("user-1", records); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load("user-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Loaded %d records, want 2", len(loaded))
	}
	if loaded[1].ID != records[1].ID || loaded[1].PlantType != types.PlantEggplant || loaded[1].Rank != types.RankD {
		t.Errorf("Loaded record mismatch: %+v", loaded[1])
	}
	if !loaded[0].HarvestedAt.Equal(records[0].HarvestedAt) {
		t.Errorf("HarvestedAt = %v, want %v", loaded[0].HarvestedAt, records[0].HarvestedAt)
	}
}

// TestHarvestStoreAppend 追加记录保留已有内容
func TestHarvestStoreAppend(t *testing.T) {
	manager := createTestGdataManager(t, "append")
	if manager == nil {
		t.Skip("Cannot create gdata manager for testing")
	}
	store := NewHarvestStore(manager, zerolog.Nop())

	if err := store.Append("user@example.com", []components.HarvestRecord{sampleRecord(types.PlantTomato, types.Lv2)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append("user@example.com", []components.HarvestRecord{sampleRecord(types.PlantTomato, types.Lv3)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	loaded, err := store.Load("user@example.com")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 || loaded[1].Level != types.Lv3 {
		t.Errorf("Loaded records = %+v", loaded)
	}
}

// TestHarvestStoreMissingUser 未保存过的用户返回空列表
func TestHarvestStoreMissingUser(t *testing.T) {
	manager := createTestGdataManager(t, "missing")
	if manager == nil {
		t.Skip("Cannot create gdata manager for testing")
	}
	store := NewHarvestStore(manager, zerolog.Nop())

	loaded, err := store.Load("nobody")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Expected no records, got %d", len(loaded))
	}
}

// TestHarvestStoreNilManager 降级模式下保存和读取都不报错
func TestHarvestStoreNilManager(t *testing.T) {
	store := NewHarvestStore(nil, zerolog.Nop())

	if store.Persistent() {
		t.Error("Store without manager should not be persistent")
	}
	if err := store.Save("user-1", []components.HarvestRecord{sampleRecord(types.PlantCabbage, types.Lv1)}); err != nil {
		t.Errorf("Save in degraded mode returned error: %v", err)
	}
	loaded, err := store.Load("user-1")
	if err != nil || loaded != nil {
		t.Errorf("Load in degraded mode = (%v, %v), want (nil, nil)", loaded, err)
	}
}

// TestPropertyName 测试用户 ID 转换为属性名
func TestPropertyName(t *testing.T) {
	tests := map[string]string{
		"":                 "anonymous",
		"user-1":           "user-1",
		"a b/c":            "a_b_c",
		"user@example.com": "user_example_com",
	}
	for in, want := range tests {
		if got := propertyName(in); got != want {
			t.Errorf("propertyName(%q) = %q, want %q", in, got, want)
		}
	}
}
