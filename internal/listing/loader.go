package listing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pders01/headlines/internal/logging"
)

const (
	// DateLayout names the per-day listing and snapshot files.
	DateLayout = "2006-01-02"
	// TimestampLayout is the observation time written to listing rows.
	TimestampLayout = "2006-01-02 15:04:05 UTC"

	columnTimestamp = "timestamp"
	columnLink      = "link"
)

// ErrMissingColumn is returned for a listing file without a timestamp or link column.
var ErrMissingColumn = errors.New("missing required column")

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	DateLayout,
}

// FileName returns the listing file name for prefix on date.
func FileName(prefix string, date time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, date.UTC().Format(DateLayout))
}

// Loader reads the per-day listing files written by the homepage collectors.
type Loader struct {
	dir      string
	prefixes []string
	log      *logging.FieldLogger
}

func NewLoader(dir string, prefixes []string) *Loader {
	return &Loader{
		dir:      dir,
		prefixes: append([]string(nil), prefixes...),
		log:      logging.Component("listing"),
	}
}

// Paths returns the candidate listing files for date, whether or not they exist.
func (l *Loader) Paths(date time.Time) []string {
	paths := make([]string, 0, len(l.prefixes))
	for _, prefix := range l.prefixes {
		paths = append(paths, filepath.Join(l.dir, FileName(prefix, date)))
	}
	return paths
}

// Load merges every listing file for date and returns one entry per URL,
// keeping the earliest observation. Missing files are skipped; with no files
// at all the result is empty and the error nil.
func (l *Loader) Load(date time.Time) ([]DedupedURL, error) {
	var entries []Entry
	found := 0

	for _, path := range l.Paths(date) {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				l.log.Debugf("listing %s not present, skipping", path)
				continue
			}
			return nil, fmt.Errorf("opening listing %s: %w", path, err)
		}

		rows, err := ReadEntries(f, path)
		f.Close()
		if err != nil {
			return nil, err
		}

		found++
		l.log.With("path", path).Debugf("read %d listing rows", len(rows))
		entries = append(entries, rows...)
	}

	if found == 0 {
		return []DedupedURL{}, nil
	}

	return Dedupe(entries), nil
}

// ReadEntries parses a listing CSV. The header must contain "timestamp" and
// "link"; other columns are ignored. Rows with an empty link or an
// unparseable timestamp are skipped.
func ReadEntries(r io.Reader, name string) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", name, err)
	}

	tsIdx, linkIdx := -1, -1
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		switch col {
		case columnTimestamp:
			tsIdx = i
		case columnLink:
			linkIdx = i
		}
	}
	if tsIdx < 0 {
		return nil, fmt.Errorf("%s: %w %q", name, ErrMissingColumn, columnTimestamp)
	}
	if linkIdx < 0 {
		return nil, fmt.Errorf("%s: %w %q", name, ErrMissingColumn, columnLink)
	}

	log := logging.Component("listing").With("path", name)

	var entries []Entry
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if tsIdx >= len(record) || linkIdx >= len(record) {
			log.Warnf("line %d: short row, skipping", line)
			continue
		}

		link := strings.TrimSpace(record[linkIdx])
		if link == "" {
			continue
		}

		observed, err := ParseTimestamp(record[tsIdx])
		if err != nil {
			log.Warnf("line %d: %v", line, err)
			continue
		}

		entries = append(entries, Entry{URL: link, ObservedAt: observed})
	}

	return entries, nil
}

// ParseTimestamp accepts the layouts listing files have been written with
// and returns the time in UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// Dedupe reduces entries to one DedupedURL per URL carrying the minimum
// ObservedAt. The result is ordered by first appearance.
func Dedupe(entries []Entry) []DedupedURL {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ObservedAt.Before(sorted[j].ObservedAt)
	})

	seen := make(map[string]bool, len(sorted))
	result := make([]DedupedURL, 0, len(sorted))
	for _, e := range sorted {
		if seen[e.URL] {
			continue
		}
		seen[e.URL] = true
		result = append(result, DedupedURL{URL: e.URL, FirstAppearedAt: e.ObservedAt})
	}
	return result
}
