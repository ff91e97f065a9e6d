package eventbus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/inbox-deck/internal/logging"
)

// collector records the events it is handed.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.SetOutput(&buf, slog.LevelDebug)
	t.Cleanup(func() { logging.SetOutput(io.Discard, slog.LevelError) })
	return &buf
}

func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestEventBus_IngestSequenceReachesEverySubscriber(t *testing.T) {
	bus := New()
	a, b := &collector{}, &collector{}
	bus.Subscribe(a.handle)
	bus.Subscribe(b.handle)
	require.Equal(t, 2, bus.SubscriberCount())

	bus.Emit(Event{Type: EventEmailReceived, Channel: "e1", Data: "<m1@example>"})
	bus.Emit(Event{Type: EventSuggestionsUpdated, Channel: "e1", Data: []string{"river", "main"}})
	bus.Emit(Event{Type: EventEmailLinked, Channel: "e1", Data: "river"})

	for _, c := range []*collector{a, b} {
		got := c.snapshot()
		require.Len(t, got, 3)
		assert.Equal(t, EventEmailReceived, got[0].Type)
		assert.Equal(t, []string{"river", "main"}, got[1].Data)
		assert.Equal(t, EventEmailLinked, got[2].Type)
		assert.Equal(t, "e1", got[2].Channel)
	}
}

func TestEventBus_UnsubscribeStopsProjectEvents(t *testing.T) {
	bus := New()
	c := &collector{}
	unsub := bus.Subscribe(c.handle)

	bus.Emit(Event{Type: EventProjectCreated, Channel: "river"})
	unsub()
	bus.Emit(Event{Type: EventProjectRemoved, Channel: "river"})

	got := c.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, EventProjectCreated, got[0].Type)
	assert.Zero(t, bus.SubscriberCount())

	// A second call is harmless.
	unsub()
	assert.Zero(t, bus.SubscriberCount())
}

func TestEventBus_PanickingHandlerIsLogged(t *testing.T) {
	logs := captureLogs(t)
	bus := New()
	c := &collector{}
	bus.Subscribe(func(e Event) {
		if e.Type == EventEmailUnlinked {
			panic("lost link to e7")
		}
	})
	bus.Subscribe(c.handle)

	bus.Emit(Event{Type: EventEmailUnlinked, Channel: "e7"})
	bus.Emit(Event{Type: EventProjectUpdated, Channel: "river"})

	got := c.snapshot()
	require.Len(t, got, 2, "the healthy handler sees both events")

	recs := logRecords(t, logs)
	require.Len(t, recs, 1)
	assert.Equal(t, "event_handler_panic", recs[0]["msg"])
	assert.Equal(t, "ERROR", recs[0]["level"])
	assert.Equal(t, logging.CompEvents, recs[0]["component"])
	assert.Equal(t, string(EventEmailUnlinked), recs[0]["event"])
	assert.Equal(t, "lost link to e7", recs[0]["panic"])
}

func TestEventBus_ConcurrentIngest(t *testing.T) {
	bus := New()
	c := &collector{}
	bus.Subscribe(c.handle)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Emit(Event{Type: EventEmailReceived, Channel: "e1"})
		}()
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(func(Event) {})
			unsub()
		}()
	}
	wg.Wait()

	assert.Len(t, c.snapshot(), 50)
	assert.Equal(t, 1, bus.SubscriberCount())
}
