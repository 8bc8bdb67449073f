// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package labeling

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/motionsense/internal/imu"
)

// Recorder is the stream a Controller records from. *stream.Session
// satisfies it.
type Recorder interface {
	Reset()
	Connect(ctx context.Context, onSample func(imu.TaggedSample)) error
	Disconnect(ctx context.Context) error
}

// Status describes the controller's selection and current session.
type Status struct {
	Recording   bool      `json:"recording"`
	SessionID   string    `json:"sessionId,omitempty"`
	StartedAt   time.Time `json:"startedAt,omitzero"`
	Activity    string    `json:"activity"`
	SubActivity string    `json:"subActivity"`
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l.With("component", "labeling") }
}

// WithClock replaces the clock used for session start times.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller holds the operator's (activity, sub-activity) selection and
// the start/stop state of a recording. It is the single writer of the tag
// that the stream reads on every sample.
type Controller struct {
	log     *slog.Logger
	catalog *Catalog
	now     func() time.Time

	mu          sync.RWMutex
	rec         Recorder
	activity    string
	subActivity string
	recording   bool
	starting    bool
	sessionID   string
	startedAt   time.Time
}

// NewController creates a controller over catalog with nothing selected.
func NewController(catalog *Catalog, opts ...Option) *Controller {
	c := &Controller{
		log:     slog.Default().With("component", "labeling"),
		catalog: catalog,
		now:     time.Now,
	}
	if c.catalog == nil {
		c.catalog = DefaultCatalog()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind attaches the stream this controller records from. The stream is
// expected to read Tag for its labels.
func (c *Controller) Bind(rec Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = rec
}

// Catalog returns the activity catalog.
func (c *Controller) Catalog() *Catalog { return c.catalog }

// SelectActivity sets the current activity and clears the sub-activity.
func (c *Controller) SelectActivity(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activity = normalize(name)
	c.subActivity = ""
}

// SelectSubActivity sets the current sub-activity.
func (c *Controller) SelectSubActivity(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subActivity = normalizeSub(name)
}

// AddActivity adds name to the catalog and selects it.
func (c *Controller) AddActivity(name string) (string, error) {
	added, err := c.catalog.Add(name)
	if err != nil {
		c.log.Warn("rejected activity", "name", name, "error", err)
		return "", err
	}
	c.SelectActivity(added)
	c.log.Info("added activity", "name", added)
	return added, nil
}

// AddSubActivity adds name under activity in the catalog.
func (c *Controller) AddSubActivity(activity, name string) (string, error) {
	added, err := c.catalog.AddSubActivity(activity, name)
	if err != nil {
		c.log.Warn("rejected sub-activity", "activity", activity, "name", name, "error", err)
		return "", err
	}
	return added, nil
}

// Tag returns the live selection. The NoSubActivity choice is recorded as
// no sub-activity.
func (c *Controller) Tag() imu.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub := c.subActivity
	if strings.EqualFold(sub, NoSubActivity) {
		sub = ""
	}
	return imu.NewTag(c.activity, sub)
}

// StartSession clears the stream buffer and registers onSample for a new
// recording. An activity must be selected.
func (c *Controller) StartSession(ctx context.Context, onSample func(imu.TaggedSample)) (Status, error) {
	c.mu.Lock()
	switch {
	case c.rec == nil:
		c.mu.Unlock()
		return Status{}, ErrNoRecorder
	case c.activity == "":
		c.mu.Unlock()
		return Status{}, ErrNoActivity
	case c.recording || c.starting:
		c.mu.Unlock()
		return Status{}, ErrSessionActive
	}
	c.starting = true
	rec := c.rec
	c.mu.Unlock()

	// The stream reads Tag while ingesting, so it must not be called with c.mu held.
	rec.Reset()
	err := rec.Connect(ctx, onSample)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		c.log.Error("failed to start session", "error", err)
		return Status{}, err
	}
	c.recording = true
	c.sessionID = uuid.NewString()
	c.startedAt = c.now()
	st := c.statusLocked()
	c.mu.Unlock()

	c.log.Info("session started", "session_id", st.SessionID, "activity", st.Activity)
	return st, nil
}

// StopSession tears down the subscription. The buffer is kept for saving.
func (c *Controller) StopSession(ctx context.Context) (Status, error) {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec == nil {
		return Status{}, ErrNoRecorder
	}

	// The recorder stops delivering samples as soon as Disconnect begins,
	// so the session ends even when waiting for the broker fails.
	err := rec.Disconnect(ctx)

	c.mu.Lock()
	wasRecording := c.recording
	c.recording = false
	st := c.statusLocked()
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("disconnect did not complete", "session_id", st.SessionID, "error", err)
		return st, err
	}
	if wasRecording {
		c.log.Info("session stopped", "session_id", st.SessionID)
	}
	return st, nil
}

// Status reports the selection and the current or last session.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{
		Recording:   c.recording,
		SessionID:   c.sessionID,
		StartedAt:   c.startedAt,
		Activity:    c.activity,
		SubActivity: c.subActivity,
	}
}
