package thermal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	FLUSH_THRESHOLD  = 10
	TIMESTAMP_LAYOUT = "2006-01-02 15:04:05"

	STATUS_SAVED_MANUAL = "Temperature data manually saved"
	STATUS_NOTHING      = "No temperature data to save"
)

var logHeader = []string{"Timestamp", "Temperature (°C)", "Temperature (°F)"}

// LogBuffer accumulates readings in memory and persists them to an
// append only CSV file in batches. All operations share one lock, so an
// automatic flush and a manual save cannot interleave.
type LogBuffer struct {
	path      string
	threshold int

	mu      sync.Mutex
	pending []Reading
}

func NewLogBuffer(path string, threshold int) *LogBuffer {
	if threshold <= 0 {
		threshold = FLUSH_THRESHOLD
	}
	return &LogBuffer{path: path, threshold: threshold}
}

// Append stores a reading. Reaching the batch threshold triggers a
// flush; the returned status is non empty only when that happened.
func (b *LogBuffer) Append(r Reading) (status string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, r)
	if len(b.pending) < b.threshold {
		return "", nil
	}

	return b.flushLocked()
}

// Flush persists whatever is buffered right now. Called with an empty
// buffer it reports so without touching the file.
func (b *LogBuffer) Flush() (status string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return STATUS_NOTHING, nil
	}

	if _, err = b.flushLocked(); err != nil {
		return "", err
	}
	return STATUS_SAVED_MANUAL, nil
}

// Len reports the number of buffered readings.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Path reports where flushed readings end up.
func (b *LogBuffer) Path() string {
	return b.path
}

// flushLocked writes every pending row. The buffer is only cleared once
// the rows have reached the file; a failed write keeps the batch for a
// later attempt.
func (b *LogBuffer) flushLocked() (status string, err error) {
	if err = b.writeRows(b.pending); err != nil {
		return "", fmt.Errorf("unable to save temperature log: %w", err)
	}

	b.pending = b.pending[:0]
	return fmt.Sprintf("Temperature data saved to %s", b.path), nil
}

func (b *LogBuffer) writeRows(rows []Reading) error {
	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	// the header is written exactly once, when the file first appears
	_, statErr := os.Stat(b.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if writeHeader {
		if err := w.Write(logHeader); err != nil {
			return err
		}
	}

	for _, r := range rows {
		record := []string{
			r.Timestamp.Format(TIMESTAMP_LAYOUT),
			strconv.FormatFloat(r.Celsius, 'f', 2, 64),
			strconv.FormatFloat(r.Fahrenheit, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
