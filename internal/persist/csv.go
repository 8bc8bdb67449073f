package persist

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

var csvHeader = []string{
	"activity", "sub_activity",
	"acc_x", "acc_y", "acc_z",
	"gyro_x", "gyro_y", "gyro_z",
	"timestamp",
}

// CSVSink appends records to a CSV archive file.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

// NewCSVSink returns a sink appending to path. The header is written when
// the file is new or empty.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// InsertMany appends one row per record and syncs the file.
func (s *CSVSink) InsertMany(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv sink: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat csv sink: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, r := range records {
		if err := w.Write(csvRow(r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv sink: %w", err)
	}
	return f.Sync()
}

// Close is a no-op; the file is opened per batch.
func (s *CSVSink) Close() error { return nil }

func csvRow(r Record) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		deref(r.Activity), deref(r.SubActivity),
		f(r.AccX), f(r.AccY), f(r.AccZ),
		f(r.GyroX), f(r.GyroY), f(r.GyroZ),
		strconv.FormatInt(r.Timestamp, 10),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
