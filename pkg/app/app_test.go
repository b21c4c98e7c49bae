package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/config"
	"github.com/decker502/farm/pkg/game"
)

// fakeDetector 简单的检测服务：按顺序推送预设快照，然后保持连接
type fakeDetector struct {
	payloads []string

	mu       sync.Mutex
	exported []string
	paths    []string
}

func (d *fakeDetector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		body, _ := io.ReadAll(r.Body)
		d.mu.Lock()
		d.exported = append(d.exported, string(body))
		d.paths = append(d.paths, r.URL.Path)
		d.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		return
	}

	d.mu.Lock()
	d.paths = append(d.paths, r.URL.Path)
	d.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for _, p := range d.payloads {
		fmt.Fprintf(w, "data: %s\n\n", p)
		flusher.Flush()
	}
	<-r.Context().Done()
}

func testConfig(baseURL string) *config.ClientConfig {
	cfg := config.DefaultClientConfig()
	cfg.Server.BaseURL = baseURL
	cfg.Server.UserID = "farmer"
	cfg.Server.ExportURL = baseURL + "/harvested"
	cfg.Stream.ReconnectDelaySeconds = 0.05
	return cfg
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// TestNewRequiresUser 没有用户时无法创建
func TestNewRequiresUser(t *testing.T) {
	cfg := config.DefaultClientConfig()
	_, err := New(cfg, Options{Store: game.NewHarvestStore(nil, zerolog.Nop())}, zerolog.Nop())
	if !errors.Is(err, ErrNoUserID) {
		t.Errorf("New() error = %v, want ErrNoUserID", err)
	}

	rt, err := New(cfg, Options{UserID: "override", Store: game.NewHarvestStore(nil, zerolog.Nop())}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() with user override failed: %v", err)
	}
	if rt.UserID() != "override" {
		t.Errorf("UserID() = %q", rt.UserID())
	}
}

// TestRuntimeLifecycle 连接、应用快照、收获，退出时上报
func TestRuntimeLifecycle(t *testing.T) {
	detector := &fakeDetector{payloads: []string{
		`{"0-0":[{"sector_row":0,"sector_col":0,"Lv":"v1","type":"cabbage"}],"1-1":[{"sector_row":1,"sector_col":1,"Lv":"v3","type":"tomato"}]}`,
		`{"0-0":[{"sector_row":0,"sector_col":0,"Lv":"v2","type":"cabbage"}],"1-1":[]}`,
	}}
	server := httptest.NewServer(detector)
	t.Cleanup(server.Close)

	rt, err := New(testConfig(server.URL), Options{Store: game.NewHarvestStore(nil, zerolog.Nop())}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { rt.Shutdown(context.Background()) })

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if !waitFor(2*time.Second, func() bool {
		rt.Tick()
		return rt.Farm().SnapshotsApplied() == 2
	}) {
		t.Fatalf("Applied %d snapshots, want 2", rt.Farm().SnapshotsApplied())
	}

	if rt.Layout().Rows != 2 || rt.Layout().Cols != 2 {
		t.Errorf("Layout = %dx%d, want 2x2", rt.Layout().Rows, rt.Layout().Cols)
	}
	events := rt.RecentEvents()
	if len(events) == 0 || !strings.Contains(events[len(events)-1], "harvested") {
		t.Errorf("RecentEvents() = %v", events)
	}
	if rt.Farm().Ledger().Len() != 1 {
		t.Fatalf("Ledger has %d records, want 1", rt.Farm().Ledger().Len())
	}

	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	if !rt.Session().Cancelled() {
		t.Error("Session should be cancelled after Shutdown")
	}

	detector.mu.Lock()
	defer detector.mu.Unlock()
	if len(detector.exported) != 1 || detector.exported[0] != `[{"type":"tomato","status":"lv3","rank":"a"}]` {
		t.Errorf("exported = %v", detector.exported)
	}
	if detector.paths[0] != "/detection_stream/farmer" || detector.paths[len(detector.paths)-1] != "/harvested/farmer" {
		t.Errorf("paths = %v", detector.paths)
	}
}

// TestRecentEventsBounded 最近事件数量有上限
func TestRecentEventsBounded(t *testing.T) {
	rt, err := New(testConfig("http://127.0.0.1:1"), Options{Store: game.NewHarvestStore(nil, zerolog.Nop())}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	for i := 0; i < maxRecentEvents*2; i++ {
		rt.OnFarmSized(i+1, i+1)
	}
	events := rt.RecentEvents()
	if len(events) != maxRecentEvents {
		t.Fatalf("len(RecentEvents()) = %d, want %d", len(events), maxRecentEvents)
	}
	if events[len(events)-1] != fmt.Sprintf("farm sized %dx%d", maxRecentEvents*2, maxRecentEvents*2) {
		t.Errorf("last event = %q", events[len(events)-1])
	}
}

// TestFrameStopsAfterCancel 退出信号到达后不再执行投递的回调
func TestFrameStopsAfterCancel(t *testing.T) {
	rt, err := New(testConfig("http://127.0.0.1:1"), Options{Store: game.NewHarvestStore(nil, zerolog.Nop())}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	rt.Farm().Dispatcher().Enqueue(func() { calls++ })
	if ran, ok := rt.Frame(ctx); !ok || ran != 1 {
		t.Fatalf("Frame() = (%d, %v), want (1, true)", ran, ok)
	}

	cancel()
	rt.Farm().Dispatcher().Enqueue(func() { calls++ })
	if _, ok := rt.Frame(ctx); ok {
		t.Error("Frame() should report stop after cancel")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
