package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-floor-alerts/internal/alerting"
	"price-floor-alerts/internal/category"
)

func TestCSVStore_MissingFileIsEmpty(t *testing.T) {
	store := NewCSVStore(filepath.Join(t.TempDir(), "history.csv"))
	records, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCSVStore_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.csv")
	store := NewCSVStore(path)
	ctx := context.Background()

	in := []Record{{
		Date: "2024-06-30", Source: "Salon, A", Category: category.Facial, Label: "小顔\"60分\"",
		Price: 4000, Floor: 5000, Deficit: 1000, SuggestedPrice: 4500,
		Locator: "https://example.com/a", State: Snoozed,
	}}
	require.NoError(t, store.Save(ctx, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), strings.Join(Columns, ",")+"\n"))

	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be cleaned up")
}

func TestReadCSV_LegacyHeadersAndLabels(t *testing.T) {
	input := "date,salon_name,coupon_name,genre,price,lower_limit,diff,suggested_price,url,state\n" +
		"2024-06-01,Salon A,小顔,フェイシャル,4000,5000,1000,4500,https://example.com,対応済み\n" +
		"not-a-date,Salon B,痩身,痩身,6000,7000,1000,6500,,未対応\n" +
		"2024-06-02,Salon C,脱毛,脱毛,4000.0,5000,1000,4500,,\n"

	records, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, category.Facial, records[0].Category)
	assert.Equal(t, Resolved, records[0].State)
	assert.Equal(t, int64(5000), records[0].Floor)

	assert.Equal(t, int64(4000), records[1].Price)
	assert.Equal(t, Unhandled, records[1].State)
}

func TestReadCSV_MissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("date,price\n2024-06-01,4000\n"))
	assert.Error(t, err)
}

func TestReadCSV_SkipsMalformedRows(t *testing.T) {
	input := strings.Join(Columns, ",") + "\n" +
		"2024-06-29,Salon A,facial,小顔,4000,5000,1000,4500,,resolved\n" +
		"2024-06-29,Salon \"B,slim_body,痩身,6000,7000,1000,6500,,unhandled\n" +
		"2024-06-29,Salon C,hair_removal,脱毛,4000,5000,1000,4500,,snoozed\n"

	records, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Salon A", records[0].Source)
	assert.Equal(t, Resolved, records[0].State)
	assert.Equal(t, "Salon C", records[1].Source)
	assert.Equal(t, Snoozed, records[1].State)
}

func TestCSVStore_AppendKeepsRowsAroundMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	content := strings.Join(Columns, ",") + "\n" +
		dayOffset(1) + ",Salon A,facial,小顔,4000,5000,1000,4500,,resolved\n" +
		dayOffset(1) + ",Salon \"B,slim_body,痩身,6000,7000,1000,6500,,unhandled\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	l := newTestLedger(NewCSVStore(path))
	ctx := context.Background()
	_, err := l.Append(ctx, []alerting.Alert{alertFor("Salon C", "脱毛", category.HairRemoval, 4000, 5000)}, l.Today())
	require.NoError(t, err)

	records, err := NewCSVStore(path).Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Salon A", records[0].Source)
	assert.Equal(t, Resolved, records[0].State)
	assert.Equal(t, "Salon C", records[1].Source)
}
