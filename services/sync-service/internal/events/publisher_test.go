package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/calendarsync/libs/kafkax"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/model"
)

type recordingWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_DisabledWithoutBrokers(t *testing.T) {
	p := NewPublisher(discardLogger(), PublisherConfig{})
	if p.Enabled() {
		t.Fatalf("expected disabled publisher")
	}
	if err := p.AppointmentSynced(context.Background(), "pass-1", model.Appointment{Client: "Ana"}); err != nil {
		t.Fatalf("disabled publish should be a no-op, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPublisher_MessageShape(t *testing.T) {
	w := &recordingWriter{}
	p := &Publisher{writer: w, topic: EventTypeAppointmentSynced, logger: discardLogger()}

	at := "8:45 am"
	a := model.Appointment{Client: "Ana", Service: "Manicure", TimeLabel: &at, Status: model.StatusPaid}
	if err := p.AppointmentSynced(context.Background(), "pass-1", a); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "Ana|Manicure|8:45 am|" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	if kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventType) != EventTypeAppointmentSynced {
		t.Fatalf("event type header missing: %v", msg.Headers)
	}
	if kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID) == "" {
		t.Fatalf("event id header missing")
	}

	var evt AppointmentSynced
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.PassID != "pass-1" || evt.Appointment.Status != model.StatusPaid {
		t.Fatalf("unexpected payload %+v", evt)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v closed=%v", err, w.closed)
	}
}
