package game

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/components"
	"github.com/decker502/farm/pkg/logging"
)

// DefaultExportTimeout 上报请求的超时时间
const DefaultExportTimeout = 30 * time.Second

// ErrExport 上报失败
var ErrExport = errors.New("export harvest records")

// exportEntry 上报格式，名称均为小写（"cabbage"、"lv1"、"a"）
type exportEntry struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Rank   string `json:"rank"`
}

// HarvestExporter 将收获记录上报到服务端
type HarvestExporter struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHarvestExporter 创建上报器
//
// 参数：
//   - baseURL: 上报地址，实际请求地址为 baseURL + "/" + userID
//   - client: HTTP 客户端，为 nil 时使用带 30 秒超时的默认客户端
//   - logger: 日志器
func NewHarvestExporter(baseURL string, client *http.Client, logger zerolog.Logger) *HarvestExporter {
	if client == nil {
		client = &http.Client{Timeout: DefaultExportTimeout}
	}
	return &HarvestExporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logging.Component(logger, "harvest_exporter"),
	}
}

// EncodeHarvestExport 生成上报 JSON
func EncodeHarvestExport(records []components.HarvestRecord) ([]byte, error) {
	entries := make([]exportEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, exportEntry{
			Type:   r.PlantType.ExportName(),
			Status: r.Level.ExportName(),
			Rank:   r.Rank.ExportName(),
		})
	}
	return json.Marshal(entries)
}

// Export 上报某用户的收获记录
// 非 2xx 响应返回包装了 ErrExport 的错误
func (e *HarvestExporter) Export(ctx context.Context, userID string, records []components.HarvestRecord) error {
	body, err := EncodeHarvestExport(records)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrExport, err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultExportTimeout)
	defer cancel()

	target := e.baseURL + "/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrExport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExport, target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: status %d", ErrExport, target, resp.StatusCode)
	}

	e.logger.Info().Str("user", userID).Str("target", target).Int("records", len(records)).Msg("harvest records exported")
	return nil
}
