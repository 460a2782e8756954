package dispatch

import (
	"context"
	"testing"
	"time"
)

type notifierFunc func(context.Context, Notification)

func (f notifierFunc) Notify(ctx context.Context, notification Notification) {
	f(ctx, notification)
}

func TestMultiNotifierDeliversToAll(t *testing.T) {
	first := &recordingNotifier{}
	second := &recordingNotifier{}
	multi := NewMultiNotifier(first, nil, second)

	multi.Notify(context.Background(), Notification{ID: "n-1", Kind: KindInvoicePaid})

	if got := len(first.byKind(KindInvoicePaid)); got != 1 {
		t.Fatalf("first notifier got %d notifications, want 1", got)
	}
	if got := len(second.byKind(KindInvoicePaid)); got != 1 {
		t.Fatalf("second notifier got %d notifications, want 1", got)
	}
}

func TestMultiNotifierSlowNotifierDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	slow := notifierFunc(func(context.Context, Notification) { <-release })
	fast := &recordingNotifier{}
	multi := NewMultiNotifier(slow, fast)

	done := make(chan struct{})
	go func() {
		multi.Notify(context.Background(), Notification{ID: "n-1", Kind: KindInvoicePaid})
		close(done)
	}()

	// The fast notifier must receive the notification while the slow one is
	// still stuck.
	deadline := time.Now().Add(time.Second)
	for len(fast.byKind(KindInvoicePaid)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("fast notifier starved behind the slow one")
		}
		time.Sleep(time.Millisecond)
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify did not return after all notifiers finished")
	}
}
