package game

import (
	"fmt"
	"regexp"

	"github.com/quasilyte/gdata/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/decker502/farm/pkg/components"
	"github.com/decker502/farm/pkg/logging"
)

// 存储路径常量
const (
	harvestObject = "harvested"
)

var unsafePropChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// harvestFile 持久化格式
type harvestFile struct {
	UserID  string                     `yaml:"userID"`
	Records []components.HarvestRecord `yaml:"records"`
}

// HarvestStore 收获记录的本地存储
// 每个用户一个属性，内容为 YAML
type HarvestStore struct {
	gdataManager *gdata.Manager // 可为 nil（降级模式，不持久化）
	logger       zerolog.Logger
}

// NewHarvestStore 创建收获记录存储
//
// 参数：
//   - gdataManager: gdata 跨平台存储管理器，可为 nil（降级模式）
//   - logger: 日志器
//
// 返回：
//   - *HarvestStore: 存储实例
func NewHarvestStore(gdataManager *gdata.Manager, logger zerolog.Logger) *HarvestStore {
	return &HarvestStore{
		gdataManager: gdataManager,
		logger:       logging.Component(logger, "harvest_store"),
	}
}

// OpenHarvestStore 按应用名打开 gdata 存储
// gdata 初始化失败时返回降级模式的存储，并记录警告
func OpenHarvestStore(appName string, logger zerolog.Logger) *HarvestStore {
	manager, err := gdata.Open(gdata.Config{
		AppName: appName,
	})
	if err != nil {
		logger.Warn().Err(err).Str("app", appName).Msg("gdata unavailable, harvest records will not be persisted")
		manager = nil
	}
	return NewHarvestStore(manager, logger)
}

// Persistent 是否能够持久化
func (s *HarvestStore) Persistent() bool {
	return s.gdataManager != nil
}

// propertyName 将用户 ID 转为合法的属性名
func propertyName(userID string) string {
	if userID == "" {
		return "anonymous"
	}
	return unsafePropChars.ReplaceAllString(userID, "_")
}

// Save 覆盖保存某用户的收获记录
//
// 如果 gdataManager 为 nil，返回 nil（降级模式，不报错）
func (s *HarvestStore) Save(userID string, records []components.HarvestRecord) error {
	if s.gdataManager == nil {
		return nil
	}

	data, err := yaml.Marshal(harvestFile{UserID: userID, Records: records})
	if err != nil {
		return fmt.Errorf("failed to marshal harvest records: %w", err)
	}

	if err := s.gdataManager.SaveObjectProp(harvestObject, propertyName(userID), data); err != nil {
		return fmt.Errorf("failed to save harvest records: %w", err)
	}

	s.logger.Info().Str("user", userID).Int("records", len(records)).Msg("harvest records saved")
	return nil
}

// Load 读取某用户的收获记录
//
// 降级模式或尚未保存过时返回空列表
func (s *HarvestStore) Load(userID string) ([]components.HarvestRecord, error) {
	if s.gdataManager == nil {
		return nil, nil
	}

	prop := propertyName(userID)
	if !s.gdataManager.ObjectPropExists(harvestObject, prop) {
		return nil, nil
	}

	data, err := s.gdataManager.LoadObjectProp(harvestObject, prop)
	if err != nil {
		return nil, fmt.Errorf("failed to load harvest records: %w", err)
	}

	var file harvestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal harvest records: %w", err)
	}
	return file.Records, nil
}

// Append 将新记录追加到已保存的记录之后
func (s *HarvestStore) Append(userID string, records []components.HarvestRecord) error {
	if s.gdataManager == nil || len(records) == 0 {
		return nil
	}

	existing, err := s.Load(userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user", userID).Msg("existing harvest records unreadable, overwriting")
		existing = nil
	}
	return s.Save(userID, append(existing, records...))
}
