package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"syscall"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/app"
	"github.com/decker502/farm/pkg/config"
	"github.com/decker502/farm/pkg/game"
	"github.com/decker502/farm/pkg/logging"
	"github.com/decker502/farm/pkg/types"
)

const (
	screenWidth  = 960
	screenHeight = 640
)

var (
	backgroundColor = color.RGBA{R: 144, G: 238, B: 144, A: 255}
	cellColor       = color.RGBA{R: 120, G: 90, B: 60, A: 255}
	gridLineColor   = color.RGBA{R: 60, G: 40, B: 20, A: 255}
	plantColors     = map[types.PlantType]color.RGBA{
		types.PlantCabbage:  {R: 110, G: 200, B: 90, A: 255},
		types.PlantTomato:   {R: 220, G: 60, B: 50, A: 255},
		types.PlantEggplant: {R: 120, G: 60, B: 160, A: 255},
	}
)

// Game 窗口模式的主循环
// 每次 Update 是一帧：执行流式客户端投递的回调，然后清理被销毁的实体
type Game struct {
	ctx     context.Context
	runtime *app.Runtime
}

// Update 每帧调用一次，收到退出信号后结束游戏循环
func (g *Game) Update() error {
	if _, ok := g.runtime.Frame(g.ctx); !ok {
		return ebiten.Termination
	}
	return nil
}

// Draw 绘制农场网格和作物
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	layout := g.runtime.Layout()
	farm := g.runtime.Farm()

	status := fmt.Sprintf("user %s  snapshots %d  plants %d  harvested %d",
		g.runtime.UserID(), farm.SnapshotsApplied(), farm.PlantCount(), farm.Ledger().Len())
	if s := g.runtime.Session(); s != nil && s.Connecting() {
		status += "  connecting..."
	}
	ebitenutil.DebugPrintAt(screen, status, 16, 8)

	if layout.Rows == 0 {
		ebitenutil.DebugPrintAt(screen, "waiting for the first detection snapshot", 16, 28)
		return
	}

	size := float32(layout.CellSize)
	for row := 0; row < layout.Rows; row++ {
		for col := 0; col < layout.Cols; col++ {
			x, y := layout.CellOrigin(row, col)
			vector.DrawFilledRect(screen, float32(x), float32(y), size, size, cellColor, false)
			vector.StrokeRect(screen, float32(x), float32(y), size, size, 1, gridLineColor, false)
		}
	}

	for _, plant := range farm.Plants() {
		cx, cy := layout.CellCenter(plant.GridRow, plant.GridCol)
		// 阶段越高方块越大
		side := float32(layout.CellSize) * (0.25 + 0.15*float32(plant.Level))
		vector.DrawFilledRect(screen, float32(cx)-side/2, float32(cy)-side/2, side, side, plantColors[plant.PlantType], true)
		ebitenutil.DebugPrintAt(screen, plant.Rank.String(), int(cx)-3, int(cy)-8)
	}

	// 鼠标悬停时显示作物信息
	mx, my := ebiten.CursorPosition()
	if row, col, ok := layout.ScreenToCell(float64(mx), float64(my)); ok {
		info := fmt.Sprintf("(%d,%d) empty", row, col)
		if _, plant, found := farm.PlantAt(row, col); found {
			info = fmt.Sprintf("(%d,%d) %s %s rank %s", row, col, plant.PlantType, plant.Level, plant.Rank)
		}
		ebitenutil.DebugPrintAt(screen, info, mx+12, my+12)
	}

	_, gridHeight := layout.Size()
	for i, event := range g.runtime.RecentEvents() {
		ebitenutil.DebugPrintAt(screen, event, 16, int(layout.OriginY+gridHeight)+16+i*16)
	}
}

// Layout 返回逻辑屏幕尺寸
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func main() {
	configPath := flag.String("config", "data/client.yaml", "配置文件路径（.yaml 或 .toml）")
	userID := flag.String("user", "", "用户 ID，覆盖配置文件")
	headless := flag.Bool("headless", false, "无窗口模式")
	verbose := flag.Bool("verbose", false, "显示调试日志")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	logger := logging.New("farm", cfg.Log)

	rt, err := app.New(cfg, app.Options{UserID: *userID}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create farm client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *headless {
		if err := rt.RunHeadless(ctx); err != nil {
			logger.Error().Err(err).Msg("farm client stopped with error")
			os.Exit(1)
		}
		return
	}

	runWindow(ctx, rt, logger)
}

// runWindow 窗口模式：关闭窗口或收到退出信号后保存并上报收获记录
func runWindow(ctx context.Context, rt *app.Runtime, logger zerolog.Logger) {
	if err := rt.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start farm client")
	}

	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("Farm - " + rt.UserID())

	runErr := ebiten.RunGame(&Game{ctx: ctx, runtime: rt})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), game.DefaultExportTimeout)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
	}
	if runErr != nil {
		logger.Fatal().Err(runErr).Msg("game loop failed")
	}
}

// loadConfig 读取配置文件，文件不存在时使用默认配置
func loadConfig(path string) (*config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return config.DefaultClientConfig(), nil
	}
	return nil, err
}
