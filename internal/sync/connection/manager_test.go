package connection

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"taproot-sync/internal/gateway"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

// fakeSubscription delivers pushed envelopes and blocks otherwise.
type fakeSubscription struct {
	ch     chan gateway.Envelope
	closed chan struct{}
	once   sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{ch: make(chan gateway.Envelope, 16), closed: make(chan struct{})}
}

func (s *fakeSubscription) push(env gateway.Envelope) {
	s.ch <- env
}

func (s *fakeSubscription) Next(ctx context.Context) (gateway.Envelope, error) {
	select {
	case env := <-s.ch:
		return env, nil
	case <-ctx.Done():
		return gateway.Envelope{}, ctx.Err()
	case <-s.closed:
		return gateway.Envelope{}, errors.New("subscription closed")
	}
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// fakeTransport fails the first failures subscribe calls per topic, then
// hands out live fake subscriptions.
type fakeTransport struct {
	mu       sync.Mutex
	failures int
	attempts map[gateway.Topic]int
	subs     map[gateway.Topic]*fakeSubscription
}

func newFakeTransport(failures int) *fakeTransport {
	return &fakeTransport{
		failures: failures,
		attempts: make(map[gateway.Topic]int),
		subs:     make(map[gateway.Topic]*fakeSubscription),
	}
}

func (t *fakeTransport) Subscribe(_ context.Context, topic gateway.Topic, _ string) (gateway.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[topic]++
	if t.attempts[topic] <= t.failures {
		return nil, errors.New("connection refused")
	}
	sub := newFakeSubscription()
	t.subs[topic] = sub
	return sub, nil
}

func (t *fakeTransport) attemptCount(topic gateway.Topic) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[topic]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestManagerDeliversEnvelopes(t *testing.T) {
	transport := newFakeTransport(0)
	var mu sync.Mutex
	var received []string
	manager, err := NewManager(transport, func(topic gateway.Topic, env gateway.Envelope) {
		mu.Lock()
		received = append(received, string(topic)+":"+env.Type)
		mu.Unlock()
	}, func() {}, testLogger())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer manager.Shutdown()

	if err := manager.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return manager.Status().Connected })

	transport.mu.Lock()
	sub := transport.subs[gateway.TopicInvoices]
	transport.mu.Unlock()
	sub.push(gateway.Envelope{Type: gateway.TypeInvoiceUpdate})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1 && received[0] == "invoices:invoice_update"
	})
}

func TestManagerFallsBackToPollingAfterMaxAttempts(t *testing.T) {
	transport := newFakeTransport(1000) // never succeeds
	var polls int
	var pollMu sync.Mutex
	manager, err := NewManager(transport,
		func(gateway.Topic, gateway.Envelope) {},
		func() {
			pollMu.Lock()
			polls++
			pollMu.Unlock()
		},
		testLogger(),
		WithReconnectDelay(2*time.Millisecond),
		WithMaxReconnectAttempts(5),
		WithPollInterval(5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer manager.Shutdown()

	if err := manager.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, state := range manager.TopicStates() {
			if state.ReconnectAttempts < 5 {
				return false
			}
		}
		return true
	})

	status := manager.Status()
	if !status.FallbackPolling {
		t.Fatal("expected fallback polling after exhausting attempts")
	}
	if status.Connected {
		t.Fatal("expected not connected")
	}

	// No further attempts are scheduled once the cap is reached.
	attempts := transport.attemptCount(gateway.TopicInvoices)
	time.Sleep(20 * time.Millisecond)
	if got := transport.attemptCount(gateway.TopicInvoices); got != attempts {
		t.Fatalf("expected no attempts past the cap, had %d then %d", attempts, got)
	}
	if attempts != 5 {
		t.Fatalf("expected exactly 5 connection attempts, got %d", attempts)
	}

	waitFor(t, time.Second, func() bool {
		pollMu.Lock()
		defer pollMu.Unlock()
		return polls >= 2
	})
}

func TestManagerExitsPollingWhenTopicsRecover(t *testing.T) {
	transport := newFakeTransport(2) // two failures per topic, then success
	manager, err := NewManager(transport,
		func(gateway.Topic, gateway.Envelope) {},
		func() {},
		testLogger(),
		WithReconnectDelay(2*time.Millisecond),
		WithMaxReconnectAttempts(5),
		WithPollInterval(time.Hour),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer manager.Shutdown()

	if err := manager.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		status := manager.Status()
		return status.Connected && !status.FallbackPolling
	})

	for _, state := range manager.TopicStates() {
		if state.Phase != PhaseOpen {
			t.Fatalf("expected %s open, got %s", state.Topic, state.Phase)
		}
		if state.ReconnectAttempts != 0 {
			t.Fatalf("expected attempts reset on success, got %d", state.ReconnectAttempts)
		}
	}
}

func TestManagerExplicitConnectResetsAttempts(t *testing.T) {
	transport := newFakeTransport(1000)
	manager, err := NewManager(transport,
		func(gateway.Topic, gateway.Envelope) {},
		func() {},
		testLogger(),
		WithReconnectDelay(2*time.Millisecond),
		WithMaxReconnectAttempts(2),
		WithPollInterval(time.Hour),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer manager.Shutdown()

	if err := manager.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return transport.attemptCount(gateway.TopicBalances) == 2
	})

	before := transport.attemptCount(gateway.TopicBalances)
	manager.Connect(gateway.TopicBalances)
	waitFor(t, time.Second, func() bool {
		return transport.attemptCount(gateway.TopicBalances) > before
	})
}

func TestManagerShutdownIsIdempotent(t *testing.T) {
	transport := newFakeTransport(0)
	manager, err := NewManager(transport,
		func(gateway.Topic, gateway.Envelope) {},
		func() {},
		testLogger(),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return manager.Status().Connected })

	manager.Shutdown()
	manager.Shutdown()

	status := manager.Status()
	if status.Connected || status.FallbackPolling || status.Reconnecting {
		t.Fatalf("expected quiescent status after shutdown, got %+v", status)
	}
}
