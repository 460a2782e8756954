// Package connection owns the lifecycle of the per-topic push subscriptions
// and degrades to fallback polling when push connectivity is lost.
package connection

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"taproot-sync/internal/gateway"
	"taproot-sync/internal/observability/metrics"
)

// Phase is the lifecycle state of one topic subscription.
type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseOpen       Phase = "open"
	PhaseClosed     Phase = "closed"
)

// TopicState is a snapshot of one topic's connection state.
type TopicState struct {
	Topic             gateway.Topic
	Phase             Phase
	ReconnectAttempts int
}

// SyncStatus aggregates all topics for the UI.
type SyncStatus struct {
	Connected       bool `json:"connected"`
	Reconnecting    bool `json:"reconnecting"`
	FallbackPolling bool `json:"fallback_polling"`
}

// EnvelopeHandler receives push messages verbatim; the manager performs no
// parsing beyond the envelope type.
type EnvelopeHandler func(topic gateway.Topic, env gateway.Envelope)

// PollFunc is invoked on each fallback-poll tick.
type PollFunc func()

type topicState struct {
	phase    Phase
	attempts int
	sub      gateway.Subscription
}

// Manager maintains liveness of the three topic subscriptions.
type Manager struct {
	transport      gateway.Transport
	onEnvelope     EnvelopeHandler
	pollNow        PollFunc
	reconnectDelay time.Duration
	maxAttempts    int
	pollInterval   time.Duration
	logger         *log.Logger

	mu       sync.Mutex
	started  bool
	shutdown bool
	userID   string
	ctx      context.Context
	cancel   context.CancelFunc
	topics   map[gateway.Topic]*topicState
	timers   map[gateway.Topic]*time.Timer
	pollStop chan struct{}
	polling  bool
}

// Option configures the manager.
type Option func(*Manager)

// WithReconnectDelay overrides the fixed delay before a reconnect attempt.
func WithReconnectDelay(delay time.Duration) Option {
	return func(m *Manager) {
		if delay > 0 {
			m.reconnectDelay = delay
		}
	}
}

// WithMaxReconnectAttempts overrides the per-topic attempt cap.
func WithMaxReconnectAttempts(max int) Option {
	return func(m *Manager) {
		if max > 0 {
			m.maxAttempts = max
		}
	}
}

// WithPollInterval overrides the fallback-poll period.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

// NewManager constructs a manager. pollNow is invoked on a fixed period
// while every topic is down.
func NewManager(transport gateway.Transport, onEnvelope EnvelopeHandler, pollNow PollFunc, logger *log.Logger, opts ...Option) (*Manager, error) {
	if transport == nil {
		return nil, errors.New("connection: nil transport")
	}
	if onEnvelope == nil {
		return nil, errors.New("connection: nil envelope handler")
	}
	if pollNow == nil {
		return nil, errors.New("connection: nil poll func")
	}
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{
		transport:      transport,
		onEnvelope:     onEnvelope,
		pollNow:        pollNow,
		reconnectDelay: 5 * time.Second,
		maxAttempts:    5,
		pollInterval:   30 * time.Second,
		logger:         logger,
		topics:         make(map[gateway.Topic]*topicState),
		timers:         make(map[gateway.Topic]*time.Timer),
	}
	for _, topic := range gateway.Topics() {
		m.topics[topic] = &topicState{phase: PhaseClosed}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start opens all topic subscriptions for the user. ctx bounds the whole
// session; cancelling it tears the subscriptions down.
func (m *Manager) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("connection: empty user id")
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("connection: already started")
	}
	m.started = true
	m.userID = userID
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	for _, topic := range gateway.Topics() {
		go m.connect(topic, false)
	}
	return nil
}

// Connect re-opens one topic explicitly, resetting its attempt counter.
// Used when the consumer becomes active again after attempts were exhausted.
func (m *Manager) Connect(topic gateway.Topic) {
	m.mu.Lock()
	if !m.started || m.shutdown {
		m.mu.Unlock()
		return
	}
	if state, ok := m.topics[topic]; ok {
		state.attempts = 0
	}
	m.mu.Unlock()
	go m.connect(topic, false)
}

// Shutdown closes all subscriptions, cancels pending reconnect and polling
// timers and resets attempt counters. Idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	cancel := m.cancel
	for topic, timer := range m.timers {
		if timer != nil {
			timer.Stop()
		}
		delete(m.timers, topic)
	}
	if m.pollStop != nil {
		close(m.pollStop)
		m.pollStop = nil
	}
	m.polling = false
	var subs []gateway.Subscription
	for _, state := range m.topics {
		if state.sub != nil {
			subs = append(subs, state.sub)
			state.sub = nil
		}
		state.phase = PhaseClosed
		state.attempts = 0
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, sub := range subs {
		_ = sub.Close()
	}
	metrics.SetFallbackPolling(false)
	metrics.SetOpenTopics(0)
}

// Status aggregates per-topic state into one SyncStatus.
func (m *Manager) Status() SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := 0
	reconnecting := false
	for topic, state := range m.topics {
		switch state.phase {
		case PhaseOpen:
			open++
		case PhaseConnecting:
			reconnecting = true
		}
		if _, pending := m.timers[topic]; pending {
			reconnecting = true
		}
	}
	return SyncStatus{
		Connected:       open == len(m.topics) && len(m.topics) > 0,
		Reconnecting:    reconnecting,
		FallbackPolling: m.polling,
	}
}

// TopicStates returns a snapshot of every topic's state.
func (m *Manager) TopicStates() []TopicState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TopicState, 0, len(m.topics))
	for _, topic := range gateway.Topics() {
		state := m.topics[topic]
		out = append(out, TopicState{
			Topic:             topic,
			Phase:             state.phase,
			ReconnectAttempts: state.attempts,
		})
	}
	return out
}

func (m *Manager) connect(topic gateway.Topic, isReconnect bool) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	delete(m.timers, topic)
	state := m.topics[topic]
	if state.phase == PhaseOpen || state.phase == PhaseConnecting {
		m.mu.Unlock()
		return
	}
	state.phase = PhaseConnecting
	ctx := m.ctx
	userID := m.userID
	m.mu.Unlock()

	if isReconnect {
		metrics.IncReconnect(string(topic))
	}

	sub, err := m.transport.Subscribe(ctx, topic, userID)
	if err != nil {
		m.logger.Printf("connection: subscribe %s failed: %v", topic, err)
		m.handleClose(topic, nil)
		return
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		_ = sub.Close()
		return
	}
	state.phase = PhaseOpen
	state.attempts = 0
	state.sub = sub
	allOpen := true
	open := 0
	for _, st := range m.topics {
		if st.phase == PhaseOpen {
			open++
		} else {
			allOpen = false
		}
	}
	if allOpen {
		m.stopPollingLocked()
	}
	m.mu.Unlock()
	metrics.SetOpenTopics(open)

	go m.readLoop(topic, sub, ctx)
}

func (m *Manager) readLoop(topic gateway.Topic, sub gateway.Subscription, ctx context.Context) {
	for {
		env, err := sub.Next(ctx)
		if err != nil {
			m.mu.Lock()
			down := m.shutdown
			m.mu.Unlock()
			if !down {
				m.logger.Printf("connection: %s subscription closed: %v", topic, err)
				m.handleClose(topic, sub)
			}
			return
		}
		metrics.IncPushMessage(string(topic))
		m.onEnvelope(topic, env)
	}
}

// handleClose marks a topic closed, enters fallback polling when every topic
// is down, and schedules a reconnect while the attempt cap allows it.
func (m *Manager) handleClose(topic gateway.Topic, sub gateway.Subscription) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	state := m.topics[topic]
	if sub != nil && state.sub == sub {
		state.sub = nil
	}
	state.phase = PhaseClosed

	allClosed := true
	open := 0
	for _, st := range m.topics {
		if st.phase == PhaseOpen {
			open++
			allClosed = false
		}
	}
	if allClosed && !m.polling {
		m.startPollingLocked()
	}

	state.attempts++
	if state.attempts < m.maxAttempts {
		timer := time.AfterFunc(m.reconnectDelay, func() {
			m.connect(topic, true)
		})
		m.timers[topic] = timer
	} else {
		m.logger.Printf("connection: %s reconnect attempts exhausted, staying in fallback polling", topic)
	}
	m.mu.Unlock()

	metrics.SetOpenTopics(open)
	if sub != nil {
		_ = sub.Close()
	}
}

func (m *Manager) startPollingLocked() {
	m.polling = true
	stop := make(chan struct{})
	m.pollStop = stop
	ctx := m.ctx
	interval := m.pollInterval
	metrics.SetFallbackPolling(true)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.pollNow()
			}
		}
	}()
}

func (m *Manager) stopPollingLocked() {
	if !m.polling {
		return
	}
	m.polling = false
	if m.pollStop != nil {
		close(m.pollStop)
		m.pollStop = nil
	}
	metrics.SetFallbackPolling(false)
}
