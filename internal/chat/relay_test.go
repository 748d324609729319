package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/teamspace-service/internal/domain"
	"github.com/spec-kit/teamspace-service/internal/observability"
)

// fakeStore keeps events in append order and serves Recent newest-first,
// mirroring the persistence layer's ordering contract.
type fakeStore struct {
	mu        sync.Mutex
	events    []domain.ChatEvent
	nextID    int64
	appendErr error
	recentErr error
}

func (s *fakeStore) Append(_ context.Context, event *domain.ChatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.nextID++
	event.ID = s.nextID
	s.events = append(s.events, *event)
	return nil
}

func (s *fakeStore) Recent(_ context.Context, projectID int64, limit int) ([]domain.ChatEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	var out []domain.ChatEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].ProjectID == projectID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *fakeStore) all() []domain.ChatEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatEvent(nil), s.events...)
}

// jsonEncoder is a minimal wire encoder for exercising the fan-out path.
type jsonEncoder struct{}

func (jsonEncoder) EncodeEvent(event domain.ChatEvent) ([]byte, error) {
	return json.Marshal(event)
}

func newTestRelay(store Store, rooms *Registry) *Relay {
	return NewRelay(store, rooms, jsonEncoder{}, nil, observability.NewMetrics(), zap.NewNop(), RelayConfig{
		HistoryLimit:    10,
		MaxContentBytes: 255,
	})
}

func decodeQueued(t *testing.T, conn *Connection) domain.ChatEvent {
	t.Helper()
	select {
	case payload := <-conn.send:
		var event domain.ChatEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("unmarshal queued frame: %v", err)
		}
		return event
	default:
		t.Fatal("no frame queued")
		return domain.ChatEvent{}
	}
}

func TestRelay_HandleJoinRecordsEnterAndReturnsHistory(t *testing.T) {
	store := &fakeStore{}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)
	conn := newTestConnection(1, "alice")

	history, err := relay.HandleJoin(context.Background(), conn, 42)
	if err != nil {
		t.Fatalf("HandleJoin: %v", err)
	}

	persisted := store.all()
	if len(persisted) != 1 {
		t.Fatalf("persisted events = %d, want 1", len(persisted))
	}
	if persisted[0].Kind != domain.MessageTypeEnter {
		t.Errorf("kind = %q, want %q", persisted[0].Kind, domain.MessageTypeEnter)
	}
	if persisted[0].Content != "alice joined" {
		t.Errorf("content = %q, want %q", persisted[0].Content, "alice joined")
	}
	if persisted[0].OccurredAt.IsZero() {
		t.Error("timestamp not assigned")
	}

	// The joiner is already subscribed, so the ENTER echo is queued and
	// the history includes the persisted event.
	got := decodeQueued(t, conn)
	if got.Kind != domain.MessageTypeEnter {
		t.Errorf("echoed kind = %q, want %q", got.Kind, domain.MessageTypeEnter)
	}
	if len(history) != 1 || history[0].Content != "alice joined" {
		t.Errorf("history = %+v, want the ENTER event", history)
	}
}

func TestRelay_HandleJoinRejectsAnonymous(t *testing.T) {
	relay := newTestRelay(&fakeStore{}, NewRegistry())
	conn := NewConnection(domain.Identity{}, "", &fakeSocket{}, 8)

	if _, err := relay.HandleJoin(context.Background(), conn, 42); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestRelay_FailedJoinRollsBackMembership(t *testing.T) {
	store := &fakeStore{appendErr: ErrPersistence}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)
	conn := newTestConnection(1, "alice")

	if _, err := relay.HandleJoin(context.Background(), conn, 42); !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	if got := rooms.Members(42); got != 0 {
		t.Errorf("Members(42) after failed join = %d, want 0", got)
	}

	// The connection must not linger as a delivery target either.
	if delivered, _ := rooms.Broadcast(42, []byte("x")); delivered != 0 {
		t.Errorf("delivered after failed join = %d, want 0", delivered)
	}
	if got := len(conn.send); got != 0 {
		t.Errorf("queued frames after failed join = %d, want 0", got)
	}
}

func TestRelay_HistoryFailureRollsBackJoin(t *testing.T) {
	store := &fakeStore{recentErr: ErrPersistence}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)
	conn := newTestConnection(1, "alice")

	if _, err := relay.HandleJoin(context.Background(), conn, 42); !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	if got := rooms.Members(42); got != 0 {
		t.Errorf("Members(42) after failed join = %d, want 0", got)
	}
}

func TestRelay_SenderDerivedFromIdentityNotPayload(t *testing.T) {
	store := &fakeStore{}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)
	conn := newTestConnection(7, "mallory")
	rooms.Join(42, conn)

	err := relay.HandleMessage(context.Background(), conn, 42, Inbound{
		Kind:    domain.MessageTypeTalk,
		Content: "hi",
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	persisted := store.all()
	if len(persisted) != 1 {
		t.Fatalf("persisted events = %d, want 1", len(persisted))
	}
	if persisted[0].SenderID != 7 {
		t.Errorf("senderID = %d, want 7", persisted[0].SenderID)
	}
	if persisted[0].SenderName != "mallory" {
		t.Errorf("senderName = %q, want %q", persisted[0].SenderName, "mallory")
	}
}

func TestRelay_TalkReachesRoomMembersOnly(t *testing.T) {
	store := &fakeStore{}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)

	a := newTestConnection(1, "alice")
	b := newTestConnection(2, "bob")
	c := newTestConnection(3, "carol")
	rooms.Join(42, a)
	rooms.Join(42, b)
	rooms.Join(43, c)

	err := relay.HandleMessage(context.Background(), a, 42, Inbound{
		Kind:    domain.MessageTypeTalk,
		Content: "hi",
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if got := decodeQueued(t, b); got.Content != "hi" || got.SenderID != 1 {
		t.Errorf("b received %+v, want content %q from sender 1", got, "hi")
	}
	if got := len(c.send); got != 0 {
		t.Errorf("c queued frames = %d, want 0", got)
	}

	recent, err := store.Recent(context.Background(), 42, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Content != "hi" {
		t.Errorf("recent = %+v, want the TALK event newest-first", recent)
	}
}

func TestRelay_OversizedTalkRejectedWithoutPersisting(t *testing.T) {
	store := &fakeStore{}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)
	conn := newTestConnection(1, "alice")
	rooms.Join(42, conn)

	err := relay.HandleMessage(context.Background(), conn, 42, Inbound{
		Kind:    domain.MessageTypeTalk,
		Content: strings.Repeat("x", 256),
	})
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("err = %v, want ErrMessageTooLarge", err)
	}
	if got := len(store.all()); got != 0 {
		t.Errorf("persisted events = %d, want 0", got)
	}
	if got := len(conn.send); got != 0 {
		t.Errorf("queued frames = %d, want 0", got)
	}
}

func TestRelay_InvalidKindRejected(t *testing.T) {
	relay := newTestRelay(&fakeStore{}, NewRegistry())
	conn := newTestConnection(1, "alice")

	err := relay.HandleMessage(context.Background(), conn, 42, Inbound{Kind: "SHOUT"})
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("err = %v, want ErrInvalidMessage", err)
	}
}

func TestRelay_EmptyTalkRejected(t *testing.T) {
	store := &fakeStore{}
	relay := newTestRelay(store, NewRegistry())
	conn := newTestConnection(1, "alice")

	err := relay.HandleMessage(context.Background(), conn, 42, Inbound{Kind: domain.MessageTypeTalk})
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("HandleMessage err = %v, want ErrInvalidMessage", err)
	}

	if err := relay.Publish(context.Background(), testIdentity(1, "alice"), "alice", 42, ""); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Publish err = %v, want ErrInvalidMessage", err)
	}
	if got := len(store.all()); got != 0 {
		t.Errorf("persisted events = %d, want 0", got)
	}
}

func TestRelay_PersistFailureSuppressesBroadcast(t *testing.T) {
	store := &fakeStore{appendErr: ErrPersistence}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)

	sender := newTestConnection(1, "alice")
	listener := newTestConnection(2, "bob")
	rooms.Join(42, sender)
	rooms.Join(42, listener)

	err := relay.HandleMessage(context.Background(), sender, 42, Inbound{
		Kind:    domain.MessageTypeTalk,
		Content: "hi",
	})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	if got := len(listener.send); got != 0 {
		t.Errorf("queued frames after failed append = %d, want 0", got)
	}
}

func TestRelay_HandleLeaveAnnouncesQuitToRemaining(t *testing.T) {
	store := &fakeStore{}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)

	leaver := newTestConnection(1, "alice")
	stayer := newTestConnection(2, "bob")
	rooms.Join(42, leaver)
	rooms.Join(42, stayer)

	if err := relay.HandleLeave(context.Background(), leaver, 42); err != nil {
		t.Fatalf("HandleLeave: %v", err)
	}

	got := decodeQueued(t, stayer)
	if got.Kind != domain.MessageTypeQuit {
		t.Errorf("kind = %q, want %q", got.Kind, domain.MessageTypeQuit)
	}
	if got.Content != "alice left" {
		t.Errorf("content = %q, want %q", got.Content, "alice left")
	}
	// Deregistration precedes the broadcast, so the leaver sees nothing.
	if got := len(leaver.send); got != 0 {
		t.Errorf("leaver queued frames = %d, want 0", got)
	}
}

func TestRelay_PublishRESTFallback(t *testing.T) {
	store := &fakeStore{}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)

	listener := newTestConnection(2, "bob")
	rooms.Join(42, listener)

	identity := testIdentity(1, "alice")
	if err := relay.Publish(context.Background(), identity, "Alice P", 42, "from rest"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := decodeQueued(t, listener)
	if got.Content != "from rest" || got.SenderName != "Alice P" {
		t.Errorf("received %+v, want content %q from %q", got, "from rest", "Alice P")
	}
}

func TestRelay_HistoryClampsLimit(t *testing.T) {
	store := &fakeStore{}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)
	identity := testIdentity(1, "alice")

	for i := 0; i < 15; i++ {
		if err := relay.Publish(context.Background(), identity, "alice", 42, "msg"); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	history, err := relay.History(context.Background(), 42, 100)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 10 {
		t.Errorf("history length = %d, want 10", len(history))
	}
	// Newest first: IDs descend.
	for i := 1; i < len(history); i++ {
		if history[i].ID >= history[i-1].ID {
			t.Fatalf("history not newest-first at index %d: %d >= %d", i, history[i].ID, history[i-1].ID)
		}
	}
}

func TestRelay_DisplayNameFallsBackToSubject(t *testing.T) {
	store := &fakeStore{}
	rooms := NewRegistry()
	relay := newTestRelay(store, rooms)

	identity := testIdentity(1, "alice")
	if err := relay.Publish(context.Background(), identity, "", 42, "hello"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	persisted := store.all()
	if len(persisted) != 1 || persisted[0].SenderName != "alice" {
		t.Errorf("senderName = %q, want subject fallback %q", persisted[0].SenderName, "alice")
	}
}
