package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-floor-alerts/internal/category"
	"price-floor-alerts/internal/config"
	"price-floor-alerts/internal/history"
)

const offersCSV = "source,category,label,price\n" +
	"Rival,facial,小顔コース,4500\n" +
	"Rival,slim_body,痩身コース,9000\n" +
	",facial,名無し,3000\n"

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Timezone: "Asia/Tokyo"},
		Self:      config.SourceConfig{Name: "自店"},
		Floors:    map[string]int64{"facial": 5000, "slim_body": 8000},
		Fetch:     config.FetchConfig{Timeout: 5 * time.Second, Concurrency: 2},
		History:   config.HistoryConfig{Backend: config.BackendMemory},
		Scheduler: config.SchedulerConfig{Interval: time.Hour},
		Alerting:  config.AlertingConfig{TopN: 3},
		Export:    config.ExportConfig{ChartWidth: 640, ChartHeight: 320},
	}
}

func newTestApp(cfg *config.Config) (*App, *bytes.Buffer) {
	a := NewApp(cfg, zerolog.Nop())
	out := &bytes.Buffer{}
	a.Out = out
	return a, out
}

func today(cfg *config.Config, offset int) string {
	return time.Now().In(cfg.Location()).AddDate(0, 0, offset).Format(history.DateLayout)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIngestSuggestResolveSummary(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(testConfig())

	path := filepath.Join(t.TempDir(), "offers.csv")
	writeFile(t, path, offersCSV)

	require.NoError(t, a.Ingest(ctx, path))
	assert.Contains(t, out.String(), "1 行を不備のため除外しました。")
	assert.Contains(t, out.String(), "【フェイシャル｜Rival】")
	assert.Contains(t, out.String(), "5,000円→4,800円")
	assert.Contains(t, out.String(), "新規 1 件")

	out.Reset()
	require.NoError(t, a.Suggest(ctx, SuggestOptions{}))
	assert.Contains(t, out.String(), "小顔コース")
	assert.Contains(t, out.String(), "差額：-500円（10.0%）")
	assert.Contains(t, out.String(), "5,000円 → 4,800円")

	out.Reset()
	require.NoError(t, a.SetState(ctx, StateOptions{Source: "Rival", Label: "小顔コース"}, history.Resolved))
	assert.Contains(t, out.String(), "1 件を対応済みにしました。")

	out.Reset()
	require.NoError(t, a.Suggest(ctx, SuggestOptions{}))
	assert.Contains(t, out.String(), "現在、提案はありません")

	out.Reset()
	require.NoError(t, a.Summary(ctx, 0))
	assert.Contains(t, out.String(), "総アラート：1")
	assert.Contains(t, out.String(), "対応済み率：100%")
	assert.Contains(t, out.String(), "平均差額：500円")
}

func TestIngestTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(testConfig())
	path := filepath.Join(t.TempDir(), "offers.csv")
	writeFile(t, path, offersCSV)

	require.NoError(t, a.Ingest(ctx, path))
	out.Reset()
	require.NoError(t, a.Ingest(ctx, path))
	assert.Contains(t, out.String(), "新規 0 件、重複 1 件")
}

type failingStore struct {
	*history.MemoryStore
}

func (failingStore) Save(context.Context, []history.Record) error {
	return errors.New("permission denied")
}

func TestIngestReportsUnsavedHistory(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(testConfig())
	a.store = failingStore{history.NewMemoryStore()}
	path := filepath.Join(t.TempDir(), "offers.csv")
	writeFile(t, path, offersCSV)

	require.NoError(t, a.Ingest(ctx, path))
	assert.Contains(t, out.String(), "【フェイシャル｜Rival】")
	assert.Contains(t, out.String(), "履歴の保存に失敗しました")
	assert.Contains(t, out.String(), "permission denied")
	assert.NotContains(t, out.String(), "検出結果を履歴に保存しました")
}

func TestSetStateWithoutMatch(t *testing.T) {
	a, out := newTestApp(testConfig())
	require.NoError(t, a.SetState(context.Background(), StateOptions{Date: "2024-01-01", Source: "x", Label: "y"}, history.Snoozed))
	assert.Contains(t, out.String(), "2024-01-01 の該当する履歴はありません。")
}

func TestScanFetchesPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/self", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<html><head><title>Self</title></head><body><ul>
			<li><h3>新規 小顔フェイシャル</h3>クーポン 6000円</li></ul></body></html>`)
	})
	mux.HandleFunc("/rival", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<html><head><title>Rival Salon</title></head><body><ul>
			<li><h3>新規 小顔フェイシャル</h3>クーポン 4000円</li></ul></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig()
	cfg.Self.URL = srv.URL + "/self"
	cfg.Competitors = []string{srv.URL + "/rival", srv.URL + "/missing"}

	ctx := context.Background()
	a, out := newTestApp(cfg)
	require.NoError(t, a.Scan(ctx))
	assert.Contains(t, out.String(), "Rival Salon")
	assert.Contains(t, out.String(), "【フェイシャル｜Rival Salon】")
	assert.Contains(t, out.String(), "4,000円")

	out.Reset()
	require.NoError(t, a.History(ctx, HistoryOptions{Categories: []string{"フェイシャル"}, States: []string{"未対応"}}))
	assert.Contains(t, out.String(), "Rival Salon")
	assert.Contains(t, out.String(), "未対応")
	assert.NotContains(t, out.String(), "自店")
}

func TestScanEmptyCatalogMessage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := testConfig()
	cfg.Competitors = []string{srv.URL + "/gone"}

	a, out := newTestApp(cfg)
	require.NoError(t, a.Scan(context.Background()))
	assert.Contains(t, out.String(), "有効なクーポン情報を読み取れませんでした")
}

func TestHistoryRejectsUnknownFilters(t *testing.T) {
	a, _ := newTestApp(testConfig())
	assert.Error(t, a.History(context.Background(), HistoryOptions{Categories: []string{"massage"}}))
	assert.Error(t, a.History(context.Background(), HistoryOptions{States: []string{"done"}}))
	assert.Error(t, a.History(context.Background(), HistoryOptions{Sort: "price"}))
}

func TestExportWritesCSVAndPNG(t *testing.T) {
	cfg := testConfig()
	a, _ := newTestApp(cfg)
	a.store = history.NewMemoryStore(
		history.Record{Date: today(cfg, 0), Source: "A", Category: category.Facial, Label: "x", Price: 4000, Floor: 5000, Deficit: 1000, State: history.Unhandled},
		history.Record{Date: today(cfg, -1), Source: "B", Category: category.HairRemoval, Label: "y", Price: 2000, Floor: 2500, Deficit: 500, State: history.Resolved},
	)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "history.csv")
	pngPath := filepath.Join(dir, "out", "summary.png")
	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: csvPath, PNGPath: pngPath}))

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(history.Columns, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], today(cfg, -1)))

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestExportDefaultsToExportDir(t *testing.T) {
	cfg := testConfig()
	cfg.Export.Dir = t.TempDir()
	a, out := newTestApp(cfg)

	require.NoError(t, a.Export(context.Background(), ExportOptions{}))
	assert.FileExists(t, filepath.Join(cfg.Export.Dir, "history_"+today(cfg, 0)+".csv"))
	assert.NoFileExists(t, filepath.Join(cfg.Export.Dir, "summary_"+today(cfg, 0)+".png"))
	assert.Contains(t, out.String(), "グラフは出力しません")
}

func TestBackfillReplaysSnapshots(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, today(cfg, -2)+".csv"), offersCSV)
	writeFile(t, filepath.Join(dir, today(cfg, -1)+".csv"), "source,category,label,price\nRival,facial,小顔コース,4200\n")

	a, out := newTestApp(cfg)
	require.NoError(t, a.Backfill(ctx, BackfillOptions{Dir: dir, From: today(cfg, -3), To: today(cfg, -1)}))
	assert.Contains(t, out.String(), "処理 2 日、スキップ 1 日、失敗 0 日、新規履歴 2 件")

	ledger, _, err := a.openLedger(ctx)
	require.NoError(t, err)
	records, err := ledger.Query(ctx, history.Filter{Sort: history.SortOldest})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, today(cfg, -2), records[0].Date)
	assert.Equal(t, int64(4500), records[0].Price)
	assert.Equal(t, today(cfg, -1), records[1].Date)
}

func TestBackfillDryRunLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, today(cfg, -1)+".csv"), offersCSV)

	a, _ := newTestApp(cfg)
	require.NoError(t, a.Backfill(ctx, BackfillOptions{Dir: dir, From: today(cfg, -1), To: today(cfg, -1), DryRun: true}))

	ledger, _, err := a.openLedger(ctx)
	require.NoError(t, err)
	records, err := ledger.Query(ctx, history.Filter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBackfillRejectsBadRange(t *testing.T) {
	a, _ := newTestApp(testConfig())
	assert.Error(t, a.Backfill(context.Background(), BackfillOptions{From: "2024-05-02", To: "2024-05-01"}))
	assert.Error(t, a.Backfill(context.Background(), BackfillOptions{From: "yesterday", To: "2024-05-01"}))
}

func TestSimulateAlertSendsDigest(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Alerting.Enabled = true
	cfg.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "1", APIBase: srv.URL}

	a, out := newTestApp(cfg)
	err := a.SimulateAlert(context.Background(), SimulateOptions{Source: "Test Salon", Label: "体験", Category: "facial", Price: 4000})
	require.NoError(t, err)
	assert.Contains(t, string(body), "Test Salon")
	assert.Contains(t, out.String(), "4,500円")
}

func TestSimulateAlertRequiresChannel(t *testing.T) {
	cfg := testConfig()
	a, _ := newTestApp(cfg)
	assert.Error(t, a.SimulateAlert(context.Background(), SimulateOptions{Category: "facial", Price: 4000}))

	cfg.Alerting.Enabled = true
	assert.Error(t, a.SimulateAlert(context.Background(), SimulateOptions{Category: "facial", Price: 4000}))
}
