package snapshot

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/parquet-go/parquet-go"

	"github.com/pders01/headlines/internal/fetch"
	"github.com/pders01/headlines/internal/listing"
	"github.com/pders01/headlines/internal/logging"
)

const authorSeparator = ";"

// Row is the on-disk layout of one article in a snapshot file.
type Row struct {
	URL             string    `parquet:"url"`
	Title           string    `parquet:"title"`
	Authors         string    `parquet:"authors"`
	ArticleHTML     string    `parquet:"article_html"`
	ArticleText     string    `parquet:"article_text"`
	FetchOK         bool      `parquet:"fetch_ok"`
	FirstAppearedAt time.Time `parquet:"first_appeared_at,timestamp(microsecond)"`
}

func rowFromRecord(r fetch.Record) Row {
	return Row{
		URL:             r.URL,
		Title:           r.Title,
		Authors:         strings.Join(r.Authors, authorSeparator),
		ArticleHTML:     r.ArticleHTML,
		ArticleText:     r.ArticleText,
		FetchOK:         r.FetchOK,
		FirstAppearedAt: r.FirstAppearedAt.UTC().Truncate(time.Microsecond),
	}
}

// Record converts a stored row back into a fetch.Record.
func (r Row) Record() fetch.Record {
	var authors []string
	if r.Authors != "" {
		authors = strings.Split(r.Authors, authorSeparator)
	}
	return fetch.Record{
		URL:             r.URL,
		Title:           r.Title,
		Authors:         authors,
		ArticleHTML:     r.ArticleHTML,
		ArticleText:     r.ArticleText,
		FetchOK:         r.FetchOK,
		FirstAppearedAt: r.FirstAppearedAt.UTC(),
	}
}

// Writer persists one Parquet snapshot per date.
type Writer struct {
	dir string
	log *logging.FieldLogger
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, log: logging.Component("snapshot")}
}

// Path returns where the snapshot for date is written.
func (w *Writer) Path(date time.Time) string {
	return filepath.Join(w.dir, date.UTC().Format(listing.DateLayout)+".parquet")
}

// Write replaces the snapshot for date with records. The file is written to a
// temporary name and renamed, so readers never observe a partial snapshot.
func (w *Writer) Write(records []fetch.Record, date time.Time) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = rowFromRecord(r)
	}

	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows, parquet.Compression(&parquet.Snappy)); err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	path := w.Path(date)
	if err := atomic.WriteFile(path, &buf); err != nil {
		return "", fmt.Errorf("writing snapshot %s: %w", path, err)
	}

	w.log.With("path", path).Infof("wrote %d records", len(rows))
	return path, nil
}

// Read loads every row of a snapshot file.
func Read(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	return rows, nil
}

// ReadRecords loads a snapshot file as fetch records.
func ReadRecords(path string) ([]fetch.Record, error) {
	rows, err := Read(path)
	if err != nil {
		return nil, err
	}
	records := make([]fetch.Record, len(rows))
	for i, row := range rows {
		records[i] = row.Record()
	}
	return records, nil
}
