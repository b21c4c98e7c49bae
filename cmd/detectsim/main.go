// detectsim 本地模拟检测服务
//
// 用法:
//
//	go run ./cmd/detectsim -config data/detectsim.toml
//	curl -X POST localhost:8000/detections/42 -d '{"0-0":[{"sector_row":0,"sector_col":0,"Lv":"v1","type":"cabbage"}]}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/decker502/farm/internal/detectsim"
	"github.com/decker502/farm/pkg/config"
	"github.com/decker502/farm/pkg/logging"
)

func main() {
	configPath := flag.String("config", "data/detectsim.toml", "配置文件路径（.yaml 或 .toml）")
	addr := flag.String("addr", "", "监听地址，覆盖配置文件")
	userID := flag.String("user", "", "自动推送快照的用户，覆盖配置文件")
	flag.Parse()

	cfg, err := config.LoadSimulatorConfig(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.DefaultSimulatorConfig(), nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *userID != "" {
		cfg.UserID = *userID
	}

	logger := logging.New("detectsim", cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := detectsim.NewServer(logger)

	if cfg.UserID != "" {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		gen := detectsim.NewGenerator(cfg.Rows, cfg.Cols, seed)
		logger.Info().Str("user", cfg.UserID).Int("rows", cfg.Rows).Int("cols", cfg.Cols).Int64("seed", seed).Dur("interval", cfg.Interval()).Msg("auto publishing snapshots")
		go server.RunGenerator(ctx, cfg.UserID, gen, cfg.Interval())
	}

	if err := server.ListenAndServe(ctx, cfg.Addr); err != nil {
		logger.Fatal().Err(err).Msg("detection simulator failed")
	}
}
