package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/headlines/internal/fetch"
)

var snapshotDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleRecords() []fetch.Record {
	return []fetch.Record{
		{
			URL:             "http://example.com/one",
			Title:           "One",
			Authors:         []string{"Author A", "Author B"},
			ArticleHTML:     `<div data-component="text-block"><p>Hello World</p></div>`,
			ArticleText:     "Hello World",
			FetchOK:         true,
			FirstAppearedAt: time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC),
		},
		{
			URL:             "http://example.com/two",
			FetchOK:         false,
			FirstAppearedAt: time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriter_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "article-content")
	w := NewWriter(dir)

	path, err := w.Write(sampleRecords(), snapshotDate)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024-01-01.parquet"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestWriter_RoundTrip(t *testing.T) {
	w := NewWriter(t.TempDir())

	path, err := w.Write(sampleRecords(), snapshotDate)
	require.NoError(t, err)

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "http://example.com/one", records[0].URL)
	assert.Equal(t, []string{"Author A", "Author B"}, records[0].Authors)
	assert.Equal(t, "Hello World", records[0].ArticleText)
	assert.True(t, records[0].FetchOK)
	assert.True(t, records[0].FirstAppearedAt.Equal(time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC)))

	assert.False(t, records[1].FetchOK)
	assert.Nil(t, records[1].Authors)
	assert.Empty(t, records[1].ArticleText)
}

func TestWriter_OverwriteIsIdempotent(t *testing.T) {
	w := NewWriter(t.TempDir())

	first, err := w.Write(sampleRecords(), snapshotDate)
	require.NoError(t, err)
	before, err := Read(first)
	require.NoError(t, err)

	second, err := w.Write(sampleRecords(), snapshotDate)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	after, err := Read(second)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].URL, after[i].URL)
		assert.Equal(t, before[i].Authors, after[i].Authors)
		assert.Equal(t, before[i].ArticleText, after[i].ArticleText)
		assert.Equal(t, before[i].FetchOK, after[i].FetchOK)
		assert.True(t, before[i].FirstAppearedAt.Equal(after[i].FirstAppearedAt))
	}
}

func TestWriter_ReplacesPreviousContent(t *testing.T) {
	w := NewWriter(t.TempDir())

	_, err := w.Write(sampleRecords(), snapshotDate)
	require.NoError(t, err)

	path, err := w.Write(sampleRecords()[:1], snapshotDate)
	require.NoError(t, err)

	rows, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriter_EmptyBatch(t *testing.T) {
	w := NewWriter(t.TempDir())

	path, err := w.Write(nil, snapshotDate)
	require.NoError(t, err)

	rows, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.parquet"))
	assert.Error(t, err)
}

func TestRowFromRecord_NormalizesTime(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	r := rowFromRecord(fetch.Record{FirstAppearedAt: time.Date(2024, 1, 1, 8, 0, 0, 1500, loc)})

	assert.Equal(t, time.UTC, r.FirstAppearedAt.Location())
	assert.Equal(t, time.Date(2024, 1, 1, 6, 0, 0, 1000, time.UTC), r.FirstAppearedAt)
}
