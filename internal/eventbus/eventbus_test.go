package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/events"
	"github.com/rs/zerolog"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	got    []published
	fail   error
	closed bool
	seen   chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{seen: make(chan struct{}, 16)}
}

func (p *fakePublisher) Name() string { return "fake" }

func (p *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	p.got = append(p.got, published{subject, data})
	p.mu.Unlock()
	select {
	case p.seen <- struct{}{}:
	default:
	}
	return p.fail
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestForwarderPublishesEnvelope(t *testing.T) {
	bus := events.NewBus()
	good := newFakePublisher()
	bad := newFakePublisher()
	bad.fail = errors.New("broker down")

	f := NewForwarder(bus, "box-1", zerolog.Nop(), bad, good)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	// Subscriptions are made inside Run; keep publishing until one lands.
	deadline := time.After(5 * time.Second)
	for delivered := false; !delivered; {
		bus.Publish(events.EventPlaying, events.Payload{"id": "abc", "track": "/m/a.ogg"})
		select {
		case <-good.seen:
			delivered = true
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("event never forwarded")
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}

	good.mu.Lock()
	defer good.mu.Unlock()
	if !good.closed {
		t.Fatal("publisher not closed")
	}
	first := good.got[0]
	if first.subject != "playback.playing" {
		t.Fatalf("subject = %q", first.subject)
	}
	msg, err := Unmarshal(first.data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EventType != events.EventPlaying || msg.InstanceID != "box-1" || !msg.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected envelope %+v", msg)
	}
	if msg.Payload["id"] != "abc" || msg.MessageID == "" {
		t.Fatalf("unexpected payload %+v", msg)
	}
}

func TestBreaker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newBreaker(2, time.Minute)
	b.now = func() time.Time { return now }
	boom := errors.New("boom")

	if !b.allow() {
		t.Fatal("new breaker should allow")
	}
	if b.record(boom) {
		t.Fatal("one failure should not trip")
	}
	if !b.record(boom) {
		t.Fatal("second failure should trip")
	}
	if b.allow() {
		t.Fatal("open breaker should refuse")
	}
	now = now.Add(time.Minute)
	if !b.allow() {
		t.Fatal("breaker should allow a probe after the interval")
	}
	if b.record(boom) {
		t.Fatal("failed probe should not report a new trip")
	}
	if b.allow() {
		t.Fatal("failed probe should reopen the breaker")
	}
	b.record(nil)
	if !b.allow() {
		t.Fatal("success should close the breaker")
	}
}

func TestSubjectFor(t *testing.T) {
	if got := subjectFor("", "state"); got != "jukebox.events.state" {
		t.Fatalf("default subject = %q", got)
	}
	if got := subjectFor("radio", "queue.added"); got != "radio.queue.added" {
		t.Fatalf("subject = %q", got)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("{not json")); err == nil {
		t.Fatal("expected error")
	}
}
