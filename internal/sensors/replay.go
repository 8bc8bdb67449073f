package sensors

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/relabs-tech/motionsense/internal/imu"
)

// Replay plays back recorded samples, restamped with the current time.
type Replay struct {
	samples []imu.Sample
	loop    bool
	now     func() time.Time
	next    int
}

// LoadReplay reads a JSON array of flat or nested samples from path.
// Entries that do not normalize are skipped and logged.
func LoadReplay(path string, loop bool, log *slog.Logger) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()
	return ReadReplay(f, loop, log)
}

// ReadReplay is LoadReplay over a reader.
func ReadReplay(r io.Reader, loop bool, log *slog.Logger) (*Replay, error) {
	if log == nil {
		log = slog.Default()
	}
	var raw []map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode replay file: %w", err)
	}

	now := time.Now
	rp := &Replay{loop: loop, now: now}
	for i, entry := range raw {
		s, err := imu.Normalize(entry, now)
		if err != nil {
			log.Warn("skipping replay entry", "index", i, "error", err)
			continue
		}
		rp.samples = append(rp.samples, s)
	}
	if len(rp.samples) == 0 {
		return nil, fmt.Errorf("replay file has no valid samples")
	}
	return rp, nil
}

// Len returns the number of loaded samples.
func (r *Replay) Len() int { return len(r.samples) }

// Next returns the next sample, or io.EOF once the samples run out and
// looping is off.
func (r *Replay) Next() (imu.Sample, error) {
	if r.next >= len(r.samples) {
		if !r.loop {
			return imu.Sample{}, io.EOF
		}
		r.next = 0
	}
	s := r.samples[r.next]
	r.next++
	s.Timestamp = r.now().UnixMilli()
	return s, nil
}
