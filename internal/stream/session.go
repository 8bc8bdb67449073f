// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stream owns the live MQTT subscription to the sensor topic and
// the buffer of tagged samples recorded from it.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/relabs-tech/motionsense/internal/imu"
)

// DefaultWindowSize is the number of samples kept in the recent window.
const DefaultWindowSize = 20

// disconnectQuiesce is how long paho may spend flushing work on Disconnect, in ms.
const disconnectQuiesce = 250

// Config identifies the broker endpoint and topic of a Session.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

// TagSource returns the label that is live right now.
type TagSource func() imu.Tag

// ClientFactory builds the MQTT client for a configuration.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l.With("component", "stream") }
}

// WithWindowSize sets the length of the recent window.
func WithWindowSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.windowSize = n
		}
	}
}

// WithClock replaces the clock used to stamp samples without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithErrorHandler registers a callback for transport errors, including
// errors raised on an already streaming subscription.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Session) { s.onError = fn }
}

// WithClientFactory replaces mqtt.NewClient.
func WithClientFactory(fn ClientFactory) Option {
	return func(s *Session) { s.newClient = fn }
}

// attempt is one dial + subscribe cycle. Every Connect call made while it
// is pending waits on the same attempt.
type attempt struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newAttempt() *attempt {
	return &attempt{done: make(chan struct{})}
}

func (a *attempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// Session manages exactly one subscription and the samples recorded from it.
type Session struct {
	log        *slog.Logger
	tags       TagSource
	now        func() time.Time
	windowSize int
	newClient  ClientFactory
	onError    func(error)

	mu       sync.Mutex
	cfg      *Config
	client   mqtt.Client
	gen      uint64
	state    ConnState
	pending  *attempt
	lastErr  error
	onSample func(imu.TaggedSample)
	buffer   []imu.TaggedSample
	window   []imu.TaggedSample
	epoch    uint64 // bumped by Reset
}

// NewSession creates an unconfigured Session that labels each sample with
// the value tags returns at ingestion time.
func NewSession(tags TagSource, opts ...Option) *Session {
	s := &Session{
		log:        slog.Default().With("component", "stream"),
		tags:       tags,
		now:        time.Now,
		windowSize: DefaultWindowSize,
		newClient:  mqtt.NewClient,
	}
	if s.tags == nil {
		s.tags = func() imu.Tag { return imu.Tag{} }
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure establishes, or replaces, the transport for cfg and starts
// dialing. It does not wait for the connection. Calling it again with the
// same configuration while the transport is live is a no-op.
func (s *Session) Configure(cfg Config) error {
	if cfg.Broker == "" {
		return &ConfigurationError{Op: "configure", Reason: "broker address is required"}
	}
	if cfg.Topic == "" {
		return &ConfigurationError{Op: "configure", Reason: "topic is required"}
	}
	if cfg.QoS > 2 {
		return &ConfigurationError{Op: "configure", Reason: fmt.Sprintf("invalid QoS %d", cfg.QoS)}
	}

	s.mu.Lock()
	if s.cfg != nil && sameEndpoint(*s.cfg, cfg) && s.liveLocked() {
		s.mu.Unlock()
		return nil
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "motionsense-" + uuid.NewString()[:8]
	}

	old := s.client
	abandoned := s.pending
	s.gen++
	s.cfg = &cfg
	s.lastErr = nil
	s.client = s.newClient(s.clientOptions(cfg, s.gen))
	s.dialLocked()
	s.mu.Unlock()

	if abandoned != nil {
		abandoned.finish(ErrDisconnected)
	}
	if old != nil {
		old.Disconnect(disconnectQuiesce)
	}
	s.log.Info("configured stream session", "broker", cfg.Broker, "client_id", cfg.ClientID, "topic", cfg.Topic)
	return nil
}

// Connect registers onSample and blocks until the subscription is
// acknowledged. It returns immediately when already subscribed, and
// concurrent callers share one subscription attempt. Cancelling ctx
// abandons the wait only.
func (s *Session) Connect(ctx context.Context, onSample func(imu.TaggedSample)) error {
	s.mu.Lock()
	if s.cfg == nil {
		s.mu.Unlock()
		return &ConfigurationError{Op: "connect", Reason: "stream session is not configured"}
	}
	s.onSample = onSample

	switch s.state {
	case Subscribed, Streaming:
		s.mu.Unlock()
		return nil
	case Errored:
		err := s.lastErr
		s.mu.Unlock()
		return err
	case Disconnected:
		s.dialLocked()
	}
	a := s.pending
	s.mu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect ends the transport session. It is safe to call repeatedly and
// before any connection exists. The buffer is retained.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.onSample = nil
	if s.client == nil || s.state == Disconnected || s.state == Unconfigured {
		s.mu.Unlock()
		return nil
	}
	client := s.client
	topic := s.cfg.Topic
	abandoned := s.pending
	s.pending = nil
	s.state = Disconnected
	s.mu.Unlock()

	if abandoned != nil {
		abandoned.finish(ErrDisconnected)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if client.IsConnectionOpen() {
			client.Unsubscribe(topic).WaitTimeout(time.Second)
		}
		client.Disconnect(disconnectQuiesce)
	}()

	select {
	case <-done:
		s.log.Info("disconnected from broker", "topic", topic)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the transport error that moved the session into
// Errored, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Config returns the active configuration and whether there is one.
func (s *Session) Config() (Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return Config{}, false
	}
	return *s.cfg, true
}

// Len returns the number of buffered samples.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Snapshot returns a copy of the full session buffer in arrival order.
func (s *Session) Snapshot() []imu.TaggedSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]imu.TaggedSample(nil), s.buffer...)
}

// Window returns a copy of the most recent samples, oldest first. It is for
// display only and never feeds persistence.
func (s *Session) Window() []imu.TaggedSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]imu.TaggedSample(nil), s.window...)
}

// SnapshotEpoch is Snapshot plus the buffer's current epoch.
func (s *Session) SnapshotEpoch() ([]imu.TaggedSample, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]imu.TaggedSample(nil), s.buffer...), s.epoch
}

// Reset empties the buffer for a new recording and starts a new epoch.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = nil
	s.window = nil
	s.epoch++
}

// Truncate drops the oldest n samples.
func (s *Session) Truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncateLocked(n)
}

// TruncateEpoch drops the oldest n samples, the ones a save just persisted,
// unless the buffer was reset since epoch was read. It reports whether it
// truncated.
func (s *Session) TruncateEpoch(epoch uint64, n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.truncateLocked(n)
	return true
}

func (s *Session) truncateLocked(n int) {
	if n >= len(s.buffer) {
		s.buffer = nil
		s.window = nil
		return
	}
	if n <= 0 {
		return
	}
	s.buffer = append([]imu.TaggedSample(nil), s.buffer[n:]...)
	s.window = tail(s.buffer, s.windowSize)
}

func (s *Session) clientOptions(cfg Config, gen uint64) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOnConnectHandler(func(c mqtt.Client) {
			s.subscribe(gen, c)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.fail(gen, &BrokerError{Op: "stream", Broker: cfg.Broker, Err: err})
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return opts
}

// dialLocked starts a new attempt on the current client. s.mu must be held.
func (s *Session) dialLocked() {
	a := newAttempt()
	s.pending = a
	s.state = Connecting

	client := s.client
	gen := s.gen
	broker := s.cfg.Broker
	go func() {
		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			s.fail(gen, &BrokerError{Op: "connect", Broker: broker, Err: err})
		}
	}()
}

func (s *Session) subscribe(gen uint64, c mqtt.Client) {
	s.mu.Lock()
	if gen != s.gen || s.state != Connecting {
		s.mu.Unlock()
		return
	}
	topic, qos, broker := s.cfg.Topic, s.cfg.QoS, s.cfg.Broker
	s.mu.Unlock()

	token := c.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.ingest(gen, msg.Payload())
	})
	token.Wait()
	if err := subscribeError(token); err != nil {
		s.fail(gen, &BrokerError{Op: "subscribe", Broker: broker, Err: err})
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.state != Connecting {
		s.mu.Unlock()
		return
	}
	s.state = Subscribed
	a := s.pending
	s.pending = nil
	s.mu.Unlock()

	if a != nil {
		a.finish(nil)
	}
	s.log.Info("subscribed to sensor topic", "topic", topic, "qos", qos)
}

func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	s.state = Errored
	s.lastErr = err
	a := s.pending
	s.pending = nil
	onError := s.onError
	s.mu.Unlock()

	if a != nil {
		a.finish(err)
	}
	s.log.Error("broker error", "error", err)
	if onError != nil {
		onError(err)
	}
}

// ingest handles one inbound message. Bad payloads are dropped here and
// never reach the buffer or the callback.
func (s *Session) ingest(gen uint64, payload []byte) {
	sample, err := imu.Decode(payload, s.now)
	if err != nil {
		s.log.Warn("dropping sensor message", "error", err)
		return
	}
	// Read the live tag before taking s.mu; the tag source has its own lock.
	tag := s.tags()

	s.mu.Lock()
	if gen != s.gen || s.onSample == nil {
		s.mu.Unlock()
		return
	}
	tagged := imu.TaggedSample{Sample: sample, Tag: tag}
	s.buffer = append(s.buffer, tagged)
	s.window = tail(s.buffer, s.windowSize)
	if s.state == Subscribed {
		s.state = Streaming
	}
	onSample := s.onSample
	s.mu.Unlock()

	onSample(tagged)
}

func (s *Session) liveLocked() bool {
	switch s.state {
	case Connecting, Subscribed, Streaming:
		return true
	}
	return false
}

func sameEndpoint(a, b Config) bool {
	return a.Broker == b.Broker && a.Topic == b.Topic && a.QoS == b.QoS &&
		a.Username == b.Username && a.Password == b.Password &&
		(b.ClientID == "" || a.ClientID == b.ClientID)
}

func subscribeError(token mqtt.Token) error {
	if err := token.Error(); err != nil {
		return err
	}
	if st, ok := token.(*mqtt.SubscribeToken); ok {
		for topic, code := range st.Result() {
			if code == 0x80 {
				return fmt.Errorf("subscription to %q rejected by broker", topic)
			}
		}
	}
	return nil
}

func tail(buf []imu.TaggedSample, n int) []imu.TaggedSample {
	if len(buf) <= n {
		return buf
	}
	return buf[len(buf)-n:]
}
