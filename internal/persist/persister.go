// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package persist writes labeled session buffers to an insert-only sink.
package persist

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/motionsense/internal/imu"
)

// Sink accepts a batch of records in one insert.
type Sink interface {
	InsertMany(ctx context.Context, records []Record) error
}

// Store is a Sink that owns a connection or file.
type Store interface {
	Sink
	io.Closer
}

// Buffer is the session buffer a save reads from. *stream.Session
// satisfies it. The epoch changes whenever the buffer is reset, so a save
// only drops the samples it actually stored.
type Buffer interface {
	SnapshotEpoch() ([]imu.TaggedSample, uint64)
	TruncateEpoch(epoch uint64, n int) bool
}

// Option customizes a Persister.
type Option func(*Persister)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Persister) { p.log = l.With("component", "persist") }
}

// WithClock replaces the clock used to stamp saved rows.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) { p.now = now }
}

// Persister saves a buffer to a sink. At most one save runs at a time.
type Persister struct {
	sink Sink
	log  *slog.Logger
	now  func() time.Time

	mu     sync.Mutex
	saving bool
}

// NewPersister creates a Persister writing to sink.
func NewPersister(sink Sink, opts ...Option) *Persister {
	p := &Persister{
		sink: sink,
		log:  slog.Default().With("component", "persist"),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Save inserts every buffered sample in one call and returns the count.
// On success the saved samples are dropped from buf; samples appended
// during the insert stay, and so does a buffer reset during the insert.
// On failure buf is left as it was.
func (p *Persister) Save(ctx context.Context, buf Buffer) (int, error) {
	p.mu.Lock()
	if p.saving {
		p.mu.Unlock()
		return 0, ErrSaveInProgress
	}
	p.saving = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.saving = false
		p.mu.Unlock()
	}()

	samples, epoch := buf.SnapshotEpoch()
	if len(samples) == 0 {
		return 0, ErrNothingToSave
	}

	records := Records(samples, p.now())
	if err := p.sink.InsertMany(ctx, records); err != nil {
		p.log.Error("save failed", "count", len(records), "error", err)
		return 0, &PersistenceError{Count: len(records), Err: err}
	}

	if !buf.TruncateEpoch(epoch, len(samples)) {
		p.log.Info("buffer was reset during save, keeping new samples", "count", len(records))
	}
	p.log.Info("saved samples", "count", len(records))
	return len(records), nil
}

// Saving reports whether a save is in flight.
func (p *Persister) Saving() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saving
}
