package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/custody-ledger/internal/core/domain"
	"github.com/rl1809/custody-ledger/internal/port"
)

var (
	_ port.EventPublisher = (*KafkaPublisher)(nil)
	_ port.EventPublisher = (*LogPublisher)(nil)
)

// Mock kafka writer
type mockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &mockWriter{}
	pub := &KafkaPublisher{writer: w, topic: "custody-events"}

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := domain.Event{
		Type:       domain.EventRequestApproved,
		EmployeeID: "E",
		SubjectID:  "SREQ-1",
		Payload:    map[string]int{"quantity": 3},
		OccurredAt: at,
	}
	if err := pub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if len(w.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.messages))
	}
	msg := w.messages[0]
	if string(msg.Key) != "E" {
		t.Errorf("expected key E, got %q", msg.Key)
	}
	if !msg.Time.Equal(at) {
		t.Errorf("expected message time %v, got %v", at, msg.Time)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(domain.EventRequestApproved) {
		t.Errorf("unexpected headers: %+v", msg.Headers)
	}

	var decoded struct {
		Type      string         `json:"type"`
		SubjectID string         `json:"subjectId"`
		Payload   map[string]int `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != "request.approved" || decoded.SubjectID != "SREQ-1" || decoded.Payload["quantity"] != 3 {
		t.Errorf("unexpected value: %s", msg.Value)
	}

	if err := pub.Close(); err != nil || !w.closed {
		t.Errorf("expected writer closed, err=%v", err)
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &mockWriter{err: errors.New("broker unavailable")}
	pub := &KafkaPublisher{writer: w, topic: "custody-events"}

	err := pub.Publish(context.Background(), domain.Event{Type: domain.EventSaleCreated, EmployeeID: "E"})
	if err == nil || !errors.Is(err, w.err) {
		t.Errorf("expected wrapped writer error, got: %v", err)
	}
}

func TestKafkaPublisher_UnencodablePayload(t *testing.T) {
	pub := &KafkaPublisher{writer: &mockWriter{}, topic: "custody-events"}

	err := pub.Publish(context.Background(), domain.Event{Type: domain.EventSaleCreated, Payload: make(chan int)})
	if err == nil {
		t.Error("expected marshal error")
	}
}
