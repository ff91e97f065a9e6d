package eventbus

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements WSConn for testing.
type mockConn struct {
	mu       sync.Mutex
	messages []any
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, v)
	return nil
}

func (m *mockConn) lastMessage() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

func (m *mockConn) messageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// --- Protocol parsing tests ---

func TestProtocol_ParseSubscribe(t *testing.T) {
	raw := json.RawMessage(`{"type":"subscribe","channel":"emails"}`)
	msg, err := ParseClientMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "subscribe", msg.Type)
	assert.Equal(t, "emails", msg.Channel)
}

func TestProtocol_ParseSubscribeEmail(t *testing.T) {
	raw := json.RawMessage(`{"type":"subscribe","channel":"email","emailId":"abc-123"}`)
	msg, err := ParseClientMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "subscribe", msg.Type)
	assert.Equal(t, "email", msg.Channel)
	assert.Equal(t, "abc-123", msg.EmailID)
}

func TestProtocol_ParseUnsubscribe(t *testing.T) {
	raw := json.RawMessage(`{"type":"unsubscribe","subscriptionId":"sub-1"}`)
	msg, err := ParseClientMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "unsubscribe", msg.Type)
	assert.Equal(t, "sub-1", msg.SubscriptionID)
}

func TestProtocol_ParsePing(t *testing.T) {
	raw := json.RawMessage(`{"type":"ping"}`)
	msg, err := ParseClientMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "ping", msg.Type)
}

func TestProtocol_ParseInvalid(t *testing.T) {
	raw := json.RawMessage(`not valid json`)
	_, err := ParseClientMessage(raw)
	require.Error(t, err)
}

// --- Hub client tracking tests ---

func TestHub_ClientTracking(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	assert.Equal(t, 0, hub.ClientCount())

	conn := &mockConn{}
	clientID := hub.RegisterClient(conn)
	assert.NotEmpty(t, clientID)
	assert.Equal(t, 1, hub.ClientCount())

	ids := hub.ConnectedClientIDs()
	assert.Contains(t, ids, clientID)

	hub.UnregisterClient(clientID)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_MultipleClients(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn1 := &mockConn{}
	conn2 := &mockConn{}

	id1 := hub.RegisterClient(conn1)
	id2 := hub.RegisterClient(conn2)

	assert.Equal(t, 2, hub.ClientCount())
	assert.NotEqual(t, id1, id2)

	hub.UnregisterClient(id1)
	assert.Equal(t, 1, hub.ClientCount())

	ids := hub.ConnectedClientIDs()
	assert.NotContains(t, ids, id1)
	assert.Contains(t, ids, id2)
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn := &mockConn{}
	id := hub.RegisterClient(conn)

	hub.UnregisterClient(id)
	hub.UnregisterClient(id) // should not panic
	assert.Equal(t, 0, hub.ClientCount())
}

// --- Hub message handling tests ---

func TestHub_HandlePing(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn := &mockConn{}
	clientID := hub.RegisterClient(conn)

	raw := json.RawMessage(`{"type":"ping"}`)
	err := hub.HandleMessage(clientID, raw)
	require.NoError(t, err)

	require.Equal(t, 1, conn.messageCount())
	msg, ok := conn.lastMessage().(*ServerMessage)
	require.True(t, ok)
	assert.Equal(t, "pong", msg.Type)
}

func TestHub_HandleSubscribeAndBroadcast(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn := &mockConn{}
	clientID := hub.RegisterClient(conn)

	// Subscribe to emails channel
	raw := json.RawMessage(`{"type":"subscribe","channel":"emails"}`)
	err := hub.HandleMessage(clientID, raw)
	require.NoError(t, err)

	// The subscribe response should contain a subscriptionId
	require.GreaterOrEqual(t, conn.messageCount(), 1)

	// Emit an email event on the bus
	bus.Emit(Event{
		Type:    EventEmailReceived,
		Channel: "e1",
		Data:    map[string]string{"id": "e1"},
	})

	// Client should receive the event
	require.GreaterOrEqual(t, conn.messageCount(), 2)
}

func TestHub_HandleUnsubscribe(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn := &mockConn{}
	clientID := hub.RegisterClient(conn)

	// Subscribe to emails channel
	raw := json.RawMessage(`{"type":"subscribe","channel":"emails"}`)
	err := hub.HandleMessage(clientID, raw)
	require.NoError(t, err)

	// Get the subscription ID from the response
	require.GreaterOrEqual(t, conn.messageCount(), 1)
	subResp, ok := conn.messages[0].(*ServerMessage)
	require.True(t, ok)
	subID := subResp.SubscriptionID

	// Unsubscribe
	unsubRaw := json.RawMessage(`{"type":"unsubscribe","subscriptionId":"` + subID + `"}`)
	err = hub.HandleMessage(clientID, unsubRaw)
	require.NoError(t, err)

	countBefore := conn.messageCount()

	// Emit an email event; the client should not receive it
	bus.Emit(Event{
		Type:    EventEmailReceived,
		Channel: "e1",
		Data:    map[string]string{"id": "e1"},
	})

	assert.Equal(t, countBefore, conn.messageCount(), "should not receive events after unsubscribe")
}

func TestHub_EmailChannelRouting(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn := &mockConn{}
	clientID := hub.RegisterClient(conn)

	// Subscribe to a single email
	raw := json.RawMessage(`{"type":"subscribe","channel":"email","emailId":"abc-123"}`)
	err := hub.HandleMessage(clientID, raw)
	require.NoError(t, err)

	// Emit an event for the matching email
	bus.Emit(Event{
		Type:    EventEmailLinked,
		Channel: "abc-123",
		Data:    map[string]string{"projectId": "p1"},
	})

	// Should receive this event (subscribe response + event)
	require.GreaterOrEqual(t, conn.messageCount(), 2)

	// Emit an event for a different email
	countBefore := conn.messageCount()
	bus.Emit(Event{
		Type:    EventEmailLinked,
		Channel: "different-email",
		Data:    map[string]string{"projectId": "p2"},
	})

	// Should NOT receive this event
	assert.Equal(t, countBefore, conn.messageCount(), "should not receive events for other emails")
}

func TestHub_EventChannelMapping(t *testing.T) {
	tests := []struct {
		eventType EventType
		channel   string
		wire      string
	}{
		{EventEmailReceived, "emails", "received"},
		{EventEmailLinked, "emails", "linked"},
		{EventEmailUnlinked, "emails", "unlinked"},
		{EventSuggestionsUpdated, "emails", "suggestions-updated"},
		{EventProjectCreated, "projects", "created"},
		{EventProjectUpdated, "projects", "updated"},
		{EventProjectRemoved, "projects", "removed"},
		{EventType("debug.trace"), "", "debug.trace"},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.channel, eventChannel(tt.eventType))
			assert.Equal(t, tt.wire, wireEventType(tt.eventType))
		})
	}
}

func TestHub_EmailSubscriptionIgnoresProjectEvents(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn := &mockConn{}
	clientID := hub.RegisterClient(conn)
	require.NoError(t, hub.HandleMessage(clientID, json.RawMessage(`{"type":"subscribe","channel":"email","emailId":"p1"}`)))

	countBefore := conn.messageCount()
	bus.Emit(Event{Type: EventProjectUpdated, Channel: "p1"})
	assert.Equal(t, countBefore, conn.messageCount())
}

func TestHub_SubscribeEmailRequiresID(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	clientID := hub.RegisterClient(&mockConn{})
	err := hub.HandleMessage(clientID, json.RawMessage(`{"type":"subscribe","channel":"email"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires emailId")
}

func TestHub_BroadcastPayload(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn := &mockConn{}
	clientID := hub.RegisterClient(conn)
	require.NoError(t, hub.HandleMessage(clientID, json.RawMessage(`{"type":"subscribe","channel":"projects"}`)))

	bus.Emit(Event{Type: EventProjectCreated, Channel: "p1", Data: "payload"})

	msg, ok := conn.lastMessage().(*ServerMessage)
	require.True(t, ok)
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, "projects", msg.Channel)
	assert.Equal(t, "created", msg.EventType)
	assert.Equal(t, "payload", msg.Data)
}

func TestHub_HandleMessageUnknownClient(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	raw := json.RawMessage(`{"type":"ping"}`)
	err := hub.HandleMessage("nonexistent", raw)
	require.Error(t, err)
}

func TestHub_HandleMessageUnknownType(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn := &mockConn{}
	clientID := hub.RegisterClient(conn)

	raw := json.RawMessage(`{"type":"invalid"}`)
	err := hub.HandleMessage(clientID, raw)
	require.Error(t, err)
}

func TestHub_HandleSubscribeInvalidChannel(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn := &mockConn{}
	clientID := hub.RegisterClient(conn)

	raw := json.RawMessage(`{"type":"subscribe","channel":"bogus"}`)
	err := hub.HandleMessage(clientID, raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")
}

func TestHub_Close(t *testing.T) {
	bus := New()
	hub := NewHub(bus)

	conn := &mockConn{}
	hub.RegisterClient(conn)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_UnroutedEventsAreDropped(t *testing.T) {
	bus := New()
	hub := NewHub(bus)
	defer hub.Close()

	conn := &mockConn{}
	clientID := hub.RegisterClient(conn)
	require.NoError(t, hub.HandleMessage(clientID, json.RawMessage(`{"type":"subscribe","channel":"emails"}`)))
	require.NoError(t, hub.HandleMessage(clientID, json.RawMessage(`{"type":"subscribe","channel":"projects"}`)))

	countBefore := conn.messageCount()
	bus.Emit(Event{Type: EventType("debug.trace"), Channel: "e1"})
	assert.Equal(t, countBefore, conn.messageCount())

	err := hub.HandleMessage(clientID, json.RawMessage(`{"type":"subscribe","channel":"system"}`))
	assert.Error(t, err)
}
