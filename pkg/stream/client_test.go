package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/detection"
	"github.com/decker502/farm/pkg/dispatcher"
)

const testDelay = 100 * time.Millisecond

// snapshotSink 记录主线程收到的快照
type snapshotSink struct {
	mu    sync.Mutex
	snaps []detection.Snapshot
}

func (s *snapshotSink) handle(snap detection.Snapshot) {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
}

func (s *snapshotSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func newTestClient(t *testing.T, baseURL string, d *dispatcher.Dispatcher, sink *snapshotSink) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: baseURL, ReconnectDelay: testDelay}, nil, d, sink.handle, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// waitFor 轮询直到条件成立或超时
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func writeEvent(w http.ResponseWriter, line string) {
	fmt.Fprint(w, line)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// TestURLFor 测试流地址拼接
func TestURLFor(t *testing.T) {
	tests := []struct {
		cfg    Config
		userID string
		want   string
	}{
		{Config{BaseURL: "http://host:8000"}, "42", "http://host:8000/detection_stream/42"},
		{Config{BaseURL: "http://host:8000/", StreamPath: "events/"}, "a b", "http://host:8000/events/a%20b"},
		{Config{BaseURL: "https://host", StreamPath: "/s"}, "x/y", "https://host/s/x%2Fy"},
	}

	for _, tt := range tests {
		client, err := NewClient(tt.cfg, nil, dispatcher.New(zerolog.Nop()), func(detection.Snapshot) {}, zerolog.Nop())
		if err != nil {
			t.Fatalf("NewClient(%+v) failed: %v", tt.cfg, err)
		}
		if got := client.URLFor(tt.userID); got != tt.want {
			t.Errorf("URLFor(%q) = %q, want %q", tt.userID, got, tt.want)
		}
	}
}

// TestNewClientInvalidConfig 测试配置校验
func TestNewClientInvalidConfig(t *testing.T) {
	tests := []Config{
		{},
		{BaseURL: "ftp://host"},
		{BaseURL: "http://"},
		{BaseURL: "http://host", ReconnectDelay: -time.Second},
	}
	for _, cfg := range tests {
		_, err := NewClient(cfg, nil, dispatcher.New(zerolog.Nop()), func(detection.Snapshot) {}, zerolog.Nop())
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewClient(%+v) error = %v, want ErrInvalidConfig", cfg, err)
		}
	}

	_, err := NewClient(Config{BaseURL: "http://host"}, nil, nil, nil, zerolog.Nop())
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient without handler error = %v, want ErrInvalidConfig", err)
	}
}

// TestDefaults 测试默认值
func TestDefaults(t *testing.T) {
	cfg := Config{BaseURL: "http://host/"}.withDefaults()
	if cfg.StreamPath != DefaultStreamPath || cfg.ReconnectDelay != DefaultReconnectDelay || cfg.BaseURL != "http://host" {
		t.Errorf("withDefaults() = %+v", cfg)
	}
}

// TestStreamFraming 只处理 data 行，解码失败和空负载被跳过，后续行继续处理
func TestStreamFraming(t *testing.T) {
	type seenRequest struct {
		accept, cache, path string
	}
	seen := make(chan seenRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- seenRequest{accept: r.Header.Get("Accept"), cache: r.Header.Get("Cache-Control"), path: r.URL.Path}
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, ": comment\n")
		writeEvent(w, "event: detection\n")
		writeEvent(w, "data:\n")
		writeEvent(w, "data: not json\n")
		writeEvent(w, "data: {\"0-1\":[{\"sector_row\":0,\"sector_col\":1,\"Lv\":\"v2\",\"type\":\"tomato\"}]}\r\n")
		writeEvent(w, "\n")
		writeEvent(w, "data:{}\n")
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	d := dispatcher.New(zerolog.Nop())
	sink := &snapshotSink{}
	client := newTestClient(t, server.URL, d, sink)

	session, err := client.Connect(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return d.Len() == 2 }) {
		t.Fatalf("Expected 2 queued snapshots, got %d", d.Len())
	}
	if sink.count() != 0 {
		t.Fatal("Snapshots must only be handled on Drain")
	}
	d.Drain()

	if sink.count() != 2 {
		t.Fatalf("Handled %d snapshots, want 2", sink.count())
	}
	obj := sink.snaps[0]["0-1"][0]
	if obj.SectorCol != 1 || obj.Level != "v2" || obj.ObjectType != "tomato" {
		t.Errorf("Decoded object = %+v", obj)
	}
	if len(sink.snaps[1]) != 0 {
		t.Errorf("Second snapshot should be empty, got %v", sink.snaps[1])
	}

	req := <-seen
	if req.accept != "text/event-stream" || req.cache != "no-cache" {
		t.Errorf("Headers Accept=%q Cache-Control=%q", req.accept, req.cache)
	}
	if req.path != "/detection_stream/user-1" {
		t.Errorf("Path = %q", req.path)
	}
	if session.Attempts() != 1 {
		t.Errorf("Attempts() = %d, want 1", session.Attempts())
	}
}

// TestReconnectOnceAfterDelay 流被服务端关闭后，等待固定间隔重连一次
func TestReconnectOnceAfterDelay(t *testing.T) {
	var hits atomic.Int32
	var mu sync.Mutex
	var times []time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "data: {}\n")
		if n == 1 {
			return
		}
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	d := dispatcher.New(zerolog.Nop())
	client := newTestClient(t, server.URL, d, &snapshotSink{})

	session, err := client.Connect(context.Background(), "u")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return hits.Load() == 2 }) {
		t.Fatalf("Expected a reconnect, hits = %d", hits.Load())
	}

	mu.Lock()
	gap := times[1].Sub(times[0])
	mu.Unlock()
	if gap < testDelay {
		t.Errorf("Reconnected after %v, want at least %v", gap, testDelay)
	}

	session.Cancel()
	<-session.Done()
	time.Sleep(3 * testDelay)

	if got := hits.Load(); got != 2 {
		t.Errorf("hits = %d, want exactly 2", got)
	}
	if session.Attempts() != 2 {
		t.Errorf("Attempts() = %d, want 2", session.Attempts())
	}
}

// TestCancelSuppressesReconnect 取消后不再重连，已入队的快照也不会被处理
func TestCancelSuppressesReconnect(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "data: {\"0-0\":[]}\n")
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	d := dispatcher.New(zerolog.Nop())
	sink := &snapshotSink{}
	client := newTestClient(t, server.URL, d, sink)

	session, err := client.Connect(context.Background(), "u")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return d.Len() == 1 }) {
		t.Fatal("Expected a queued snapshot")
	}

	session.Cancel()
	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not stop after Cancel")
	}

	d.Drain()
	if sink.count() != 0 {
		t.Errorf("Cancelled session delivered %d snapshots", sink.count())
	}

	time.Sleep(3 * testDelay)
	if got := hits.Load(); got != 1 {
		t.Errorf("hits = %d, want 1", got)
	}
	if client.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions() = %d, want 0", client.ActiveSessions())
	}
}

// TestParentContextCancel 父 context 结束等同于取消
func TestParentContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, ": hello\n")
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL, dispatcher.New(zerolog.Nop()), &snapshotSink{})

	ctx, cancel := context.WithCancel(context.Background())
	session, err := client.Connect(ctx, "u")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	cancel()

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not stop after parent context cancel")
	}
	if !session.Cancelled() {
		t.Error("Session should report cancelled")
	}
}

// TestAtMostOneSessionPerTarget 同一目标重复连接时旧会话被取消
func TestAtMostOneSessionPerTarget(t *testing.T) {
	var open atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		open.Add(1)
		defer open.Add(-1)
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, ": open\n")
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL, dispatcher.New(zerolog.Nop()), &snapshotSink{})

	first, err := client.Connect(context.Background(), "same")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return open.Load() == 1 }) {
		t.Fatal("First session never connected")
	}

	second, err := client.Connect(context.Background(), "same")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-first.Done():
	default:
		t.Error("Previous session should be stopped before Connect returns")
	}
	if second.Cancelled() {
		t.Error("New session should be active")
	}
	if got, ok := client.Session("same"); !ok || got != second {
		t.Error("Session() should return the new session")
	}
	if client.ActiveSessions() != 1 {
		t.Errorf("ActiveSessions() = %d, want 1", client.ActiveSessions())
	}

	if _, err := client.Connect(context.Background(), "other"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return client.ActiveSessions() == 2 }) {
		t.Errorf("ActiveSessions() = %d, want 2", client.ActiveSessions())
	}

	client.CancelAll()
	if client.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions() after CancelAll = %d, want 0", client.ActiveSessions())
	}
}

// TestNon2xxIsConnectionFailure 非 2xx 响应视为连接失败
func TestNon2xxIsConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL, dispatcher.New(zerolog.Nop()), &snapshotSink{})

	session := newSession(context.Background(), client.URLFor("u"), "u")
	defer session.Cancel()

	err := client.attempt(session)
	if !errors.Is(err, ErrConnection) {
		t.Errorf("attempt() error = %v, want ErrConnection", err)
	}
	if session.Connecting() {
		t.Error("Connecting() should be false after the attempt")
	}
}

// TestConnectAfterClose 关闭后不能再连接
func TestConnectAfterClose(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, nil, dispatcher.New(zerolog.Nop()), func(detection.Snapshot) {}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.Close()

	if _, err := client.Connect(context.Background(), "u"); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Connect after Close error = %v, want ErrClientClosed", err)
	}
}
