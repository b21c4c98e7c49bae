// Package app 组装农场客户端运行时
//
// 该包把配置、日志、农场状态、流式客户端、本地存储和上报器串起来，
// 供窗口模式（main.go）和无窗口模式共用。本包不依赖 ebiten。
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/components"
	"github.com/decker502/farm/pkg/config"
	"github.com/decker502/farm/pkg/ecs"
	"github.com/decker502/farm/pkg/game"
	"github.com/decker502/farm/pkg/logging"
	"github.com/decker502/farm/pkg/metrics"
	"github.com/decker502/farm/pkg/stream"
	"github.com/decker502/farm/pkg/utils"
)

// maxRecentEvents 界面上保留的最近事件数量
const maxRecentEvents = 8

// ErrNoUserID 没有配置用户
var ErrNoUserID = errors.New("user ID is required")

// Options 运行时选项
type Options struct {
	// UserID 覆盖配置文件中的用户
	UserID string
	// HTTPClient 流式连接使用的客户端，为 nil 时使用无超时的默认客户端
	HTTPClient *http.Client
	// Store 收获记录存储，为 nil 时按配置打开 gdata
	Store *game.HarvestStore
}

// Runtime 农场客户端运行时
// 除 Start/Shutdown 外的方法都只能在主线程调用
type Runtime struct {
	cfg    *config.ClientConfig
	userID string
	logger zerolog.Logger

	farm     *game.FarmState
	client   *stream.Client
	store    *game.HarvestStore
	exporter *game.HarvestExporter
	layout   *utils.FarmLayout

	session    *stream.Session
	metricsSrv *http.Server

	recent   []string
	shutdown sync.Once
}

// New 创建运行时
//
// 参数：
//   - cfg: 已验证的客户端配置
//   - opts: 运行时选项
//   - logger: 日志器
//
// 返回：
//   - *Runtime: 运行时实例
//   - error: 没有用户或流式客户端配置无效时返回错误
func New(cfg *config.ClientConfig, opts Options, logger zerolog.Logger) (*Runtime, error) {
	userID := cfg.Server.UserID
	if opts.UserID != "" {
		userID = opts.UserID
	}
	if userID == "" {
		return nil, ErrNoUserID
	}

	farm := game.NewFarmState(logger)
	client, err := stream.NewClient(cfg.StreamClientConfig(), opts.HTTPClient, farm.Dispatcher(), farm.ApplySnapshot, logger)
	if err != nil {
		return nil, fmt.Errorf("create stream client: %w", err)
	}

	store := opts.Store
	if store == nil {
		store = game.OpenHarvestStore(cfg.Storage.AppName, logger)
	}

	var exporter *game.HarvestExporter
	if cfg.Server.ExportURL != "" {
		exporter = game.NewHarvestExporter(cfg.Server.ExportURL, nil, logger)
	}

	r := &Runtime{
		cfg:      cfg,
		userID:   userID,
		logger:   logging.Component(logger, "app").With().Str("user", userID).Logger(),
		farm:     farm,
		client:   client,
		store:    store,
		exporter: exporter,
		layout:   utils.NewFarmLayout(16, 48, cfg.Farm.CellSize),
	}
	farm.SetListener(r)
	farm.SetFarmSizer(r)
	return r, nil
}

// Farm 返回农场状态
func (r *Runtime) Farm() *game.FarmState {
	return r.farm
}

// Layout 返回网格布局
func (r *Runtime) Layout() *utils.FarmLayout {
	return r.layout
}

// UserID 返回当前用户
func (r *Runtime) UserID() string {
	return r.userID
}

// Session 返回当前流式会话，Start 之前为 nil
func (r *Runtime) Session() *stream.Session {
	return r.session
}

// RecentEvents 返回最近的作物事件，最新的在最后
func (r *Runtime) RecentEvents() []string {
	return r.recent
}

// Start 启动指标服务并连接检测服务
func (r *Runtime) Start(ctx context.Context) error {
	if previous, err := r.store.Load(r.userID); err != nil {
		r.logger.Warn().Err(err).Msg("failed to read saved harvest records")
	} else if len(previous) > 0 {
		r.logger.Info().Int("records", len(previous)).Msg("saved harvest records found")
	}

	if r.cfg.Metrics.Addr != "" {
		r.startMetrics(r.cfg.Metrics.Addr)
	}

	session, err := r.client.Connect(ctx, r.userID)
	if err != nil {
		return fmt.Errorf("connect detection stream: %w", err)
	}
	r.session = session
	r.logger.Info().Str("target", session.Target).Msg("farm client started")
	return nil
}

// Tick 执行一帧
func (r *Runtime) Tick() int {
	return r.farm.Tick()
}

// Frame 窗口模式的一帧：ctx 结束后不再执行回调并返回 false
func (r *Runtime) Frame(ctx context.Context) (int, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	return r.Tick(), true
}

// RunHeadless 无窗口模式主循环，ctx 结束后执行 Shutdown
func (r *Runtime) RunHeadless(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), game.DefaultExportTimeout)
			defer cancel()
			return r.Shutdown(shutdownCtx)
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Shutdown 取消所有会话，保存并上报本次运行的收获记录
// 可重复调用，只有第一次生效
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	r.shutdown.Do(func() {
		r.client.Close()

		records := r.farm.Ledger().Drain()
		r.logger.Info().Int("harvested", len(records)).Msg("shutting down")

		if err := r.store.Append(r.userID, records); err != nil {
			errs = append(errs, err)
		}
		if r.exporter != nil && len(records) > 0 {
			if err := r.exporter.Export(ctx, r.userID, records); err != nil {
				errs = append(errs, err)
			}
		}
		if r.metricsSrv != nil {
			if err := r.metricsSrv.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

func (r *Runtime) startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	r.metricsSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		r.logger.Info().Str("addr", addr).Msg("metrics server listening")
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
}

// OnFarmSized 网格尺寸确定后调整布局
func (r *Runtime) OnFarmSized(rows, cols int) {
	r.layout.Resize(rows, cols)
	r.pushEvent(fmt.Sprintf("farm sized %dx%d", rows, cols))
}

// OnPlantCreated 记录新作物
func (r *Runtime) OnPlantCreated(_ ecs.EntityID, plant *components.PlantComponent) {
	r.pushEvent(fmt.Sprintf("(%d,%d) new %s", plant.GridRow, plant.GridCol, plant.PlantType))
}

// OnPlantUpdated 记录作物变化
func (r *Runtime) OnPlantUpdated(_ ecs.EntityID, plant *components.PlantComponent) {
	r.pushEvent(fmt.Sprintf("(%d,%d) %s %s rank %s", plant.GridRow, plant.GridCol, plant.PlantType, plant.Level, plant.Rank))
}

// OnPlantHarvested 记录收获
func (r *Runtime) OnPlantHarvested(record components.HarvestRecord) {
	r.pushEvent(fmt.Sprintf("(%d,%d) harvested %s rank %s", record.GridRow, record.GridCol, record.PlantType, record.Rank))
}

func (r *Runtime) pushEvent(msg string) {
	r.recent = append(r.recent, msg)
	if len(r.recent) > maxRecentEvents {
		r.recent = r.recent[len(r.recent)-maxRecentEvents:]
	}
}
