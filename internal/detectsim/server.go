// Package detectsim 模拟检测服务
//
// 提供与真实检测服务相同的接口：按用户推送 SSE 快照流，
// 接收手动推送的快照，以及接收客户端上报的收获记录。
package detectsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/detection"
	"github.com/decker502/farm/pkg/logging"
	"github.com/decker502/farm/pkg/metrics"
)

// HarvestEntry 客户端上报的单条收获记录
type HarvestEntry struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Rank   string `json:"rank"`
}

// Server 模拟检测服务
type Server struct {
	hub    *Hub
	router *gin.Engine
	logger zerolog.Logger

	mu        sync.Mutex
	harvested map[string][]HarvestEntry

	started time.Time
}

// NewServer 创建模拟服务并注册路由
func NewServer(logger zerolog.Logger) *Server {
	logger = logging.Component(logger, "detectsim")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
		MaxAge:          12 * time.Hour,
	}))

	s := &Server{
		hub:       NewHub(logger),
		router:    r,
		logger:    logger,
		harvested: make(map[string][]HarvestEntry),
		started:   time.Now(),
	}
	s.registerRoutes()
	return s
}

// Router 返回 HTTP 处理器
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub 返回快照分发中心
func (s *Server) Hub() *Hub {
	return s.hub
}

// Harvested 返回某用户上报过的收获记录
func (s *Server) Harvested(userID string) []HarvestEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]HarvestEntry, len(s.harvested[userID]))
	copy(out, s.harvested[userID])
	return out
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": "detectsim",
		})
	})
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.router.GET("/detection_stream/:user_id", s.handleStream)
	s.router.POST("/detections/:user_id", s.handlePush)
	s.router.POST("/harvested/:user_id", s.handleHarvested)
	s.router.GET("/harvested/:user_id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"records": s.Harvested(c.Param("user_id"))})
	})
}

// handleStream 推送 SSE 快照流，直到客户端断开
func (s *Server) handleStream(c *gin.Context) {
	userID := c.Param("user_id")
	sub := s.hub.Subscribe(userID)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case payload := <-sub.C:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				s.logger.Warn().Err(err).Str("user", userID).Msg("failed to write snapshot")
				return false
			}
			return true
		}
	})
}

// handlePush 校验并转发一份快照
func (s *Server) handlePush(c *gin.Context) {
	userID := c.Param("user_id")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := detection.DecodeSnapshot(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delivered, err := s.Publish(userID, snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
}

// handleHarvested 接收收获记录上报
func (s *Server) handleHarvested(c *gin.Context) {
	userID := c.Param("user_id")

	var entries []HarvestEntry
	if err := c.ShouldBindJSON(&entries); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.harvested[userID] = append(s.harvested[userID], entries...)
	total := len(s.harvested[userID])
	s.mu.Unlock()

	s.logger.Info().Str("user", userID).Int("received", len(entries)).Int("total", total).Msg("harvest records received")
	c.JSON(http.StatusOK, gin.H{"received": len(entries), "total": total})
}

// Publish 将快照编码后推送给某用户的订阅者
func (s *Server) Publish(userID string, snap detection.Snapshot) (int, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	return s.hub.Publish(userID, payload), nil
}

// RunGenerator 按固定间隔把生成器的快照推送给某用户，直到 ctx 结束
func (s *Server) RunGenerator(ctx context.Context, userID string, gen *Generator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := gen.Next()
			n, err := s.Publish(userID, snap)
			if err != nil {
				s.logger.Error().Err(err).Str("user", userID).Msg("failed to publish snapshot")
				continue
			}
			s.logger.Debug().Str("user", userID).Int("plants", gen.PlantCount()).Int("delivered", n).Msg("snapshot published")
		}
	}
}

// ListenAndServe 启动服务，ctx 结束时优雅关闭
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// SSE 连接随 ctx 结束
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("detection simulator listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown detection simulator: %w", err)
	}
	return nil
}
