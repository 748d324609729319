package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/teamspace-service/internal/api/dto"
	"github.com/spec-kit/teamspace-service/internal/chat"
	"github.com/spec-kit/teamspace-service/internal/domain"
	"github.com/spec-kit/teamspace-service/internal/observability"
)

func TestParsePublishDestination(t *testing.T) {
	cases := []struct {
		name        string
		destination string
		want        int64
		wantErr     bool
	}{
		{"valid", "chat/42", 42, false},
		{"large id", "chat/9007199254740993", 9007199254740993, false},
		{"wrong prefix", "topic/42", 0, true},
		{"empty", "", 0, true},
		{"no id", "chat/", 0, true},
		{"non-numeric", "chat/abc", 0, true},
		{"zero id", "chat/0", 0, true},
		{"negative id", "chat/-1", 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parsePublishDestination(tc.destination)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parsePublishDestination(%q) = %d, want error", tc.destination, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePublishDestination(%q): %v", tc.destination, err)
			}
			if got != tc.want {
				t.Errorf("parsePublishDestination(%q) = %d, want %d", tc.destination, got, tc.want)
			}
		})
	}
}

func TestFrameEncoder_EncodeEvent(t *testing.T) {
	occurred := time.Date(2026, time.March, 4, 12, 30, 0, 0, time.UTC)
	payload, err := FrameEncoder{}.EncodeEvent(domain.ChatEvent{
		ID:         7,
		ProjectID:  42,
		SenderID:   9,
		SenderName: "alice",
		Content:    "hi",
		Kind:       domain.MessageTypeTalk,
		OccurredAt: occurred,
	})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}

	var frame map[string]json.RawMessage
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}

	var destination string
	if err := json.Unmarshal(frame["destination"], &destination); err != nil {
		t.Fatalf("unmarshal destination: %v", err)
	}
	if destination != "projects/42" {
		t.Errorf("destination = %q, want %q", destination, "projects/42")
	}

	var msg map[string]interface{}
	if err := json.Unmarshal(frame["message"], &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	for _, key := range []string{"projectId", "senderId", "senderName", "displayName", "messageContent", "type", "timestamp"} {
		if _, ok := msg[key]; !ok {
			t.Errorf("message missing field %q", key)
		}
	}
	if msg["messageContent"] != "hi" {
		t.Errorf("messageContent = %v, want %q", msg["messageContent"], "hi")
	}
	if msg["type"] != "TALK" {
		t.Errorf("type = %v, want %q", msg["type"], "TALK")
	}
	if msg["senderId"] != float64(9) {
		t.Errorf("senderId = %v, want 9", msg["senderId"])
	}
}

type stubSocket struct{}

func (stubSocket) WriteMessage(int, []byte) error   { return nil }
func (stubSocket) SetWriteDeadline(time.Time) error { return nil }
func (stubSocket) Close() error                     { return nil }

// flakyStore fails appends from a given call count onward.
type flakyStore struct {
	appends  int
	failFrom int
}

func (s *flakyStore) Append(_ context.Context, event *domain.ChatEvent) error {
	s.appends++
	if s.failFrom > 0 && s.appends >= s.failFrom {
		return chat.ErrPersistence
	}
	event.ID = int64(s.appends)
	return nil
}

func (s *flakyStore) Recent(context.Context, int64, int) ([]domain.ChatEvent, error) {
	return nil, nil
}

func TestDispatch_FailedRoomSwitchForgetsOldRoom(t *testing.T) {
	store := &flakyStore{}
	rooms := chat.NewRegistry()
	relay := chat.NewRelay(store, rooms, FrameEncoder{}, nil, observability.NewMetrics(), zap.NewNop(), chat.RelayConfig{})
	h := NewHandler(relay, nil, observability.NewMetrics(), zap.NewNop(), 8, nil)

	now := time.Now()
	conn := chat.NewConnection(domain.Identity{
		SubjectName: "alice",
		UserID:      1,
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
	}, "alice", stubSocket{}, 8)

	room := h.dispatch(conn, 0, 1, dto.ChatMessage{Type: domain.MessageTypeEnter})
	if room != 1 {
		t.Fatalf("room after first join = %d, want 1", room)
	}

	// Switching rooms leaves room 1 (QUIT append) and then fails the
	// ENTER append for room 2. The connection is a member of neither
	// room afterwards, and the returned room must reflect that so the
	// disconnect path does not synthesize a QUIT for a room already
	// left.
	store.failFrom = 3
	room = h.dispatch(conn, room, 2, dto.ChatMessage{Type: domain.MessageTypeEnter})
	if room != 0 {
		t.Errorf("room after failed switch = %d, want 0", room)
	}
	if got := rooms.Members(1); got != 0 {
		t.Errorf("Members(1) = %d, want 0", got)
	}
	if got := rooms.Members(2); got != 0 {
		t.Errorf("Members(2) = %d, want 0", got)
	}
}

func TestInboundFrameDecode(t *testing.T) {
	raw := []byte(`{"destination":"chat/42","message":{"messageContent":"hello","type":"TALK","senderId":999}}`)

	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Destination != "chat/42" {
		t.Errorf("destination = %q, want %q", frame.Destination, "chat/42")
	}
	if frame.Message.MessageContent != "hello" {
		t.Errorf("messageContent = %q, want %q", frame.Message.MessageContent, "hello")
	}
	if frame.Message.Type != domain.MessageTypeTalk {
		t.Errorf("type = %q, want %q", frame.Message.Type, domain.MessageTypeTalk)
	}
}
