package listing

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var listingHeader = []string{"timestamp", "rank", "title", "link"}

// Writer appends scraped stories to the dated listing files.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Append adds stories to the listing for prefix on the UTC day of at. All rows
// share the timestamp at. The header is written only into a new or empty file.
func (w *Writer) Append(prefix string, stories []Story, at time.Time) (string, error) {
	path := filepath.Join(w.dir, FileName(prefix, at))
	if len(stories) == 0 {
		return path, nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating listing directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("opening listing %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat listing %s: %w", path, err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(listingHeader); err != nil {
			return "", fmt.Errorf("writing header: %w", err)
		}
	}

	timestamp := at.UTC().Format(TimestampLayout)
	for _, story := range stories {
		row := []string{timestamp, strconv.Itoa(story.Rank), story.Title, story.Link}
		if err := cw.Write(row); err != nil {
			return "", fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("flushing listing %s: %w", path, err)
	}

	return path, nil
}
