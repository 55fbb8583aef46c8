package notification

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"leadflow_backend/internal/notification/sse"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

func TestTaskRoutedLogsAndPushes(t *testing.T) {
	var buf bytes.Buffer
	feed := sse.New(logger.Discard())
	m := New(feed, logger.NewWithWriter("production", &buf))
	bus := events.NewInMemoryBus(logger.Discard())
	m.RegisterHandlers(bus)

	leadID := uuid.New()
	err := bus.PublishSync(context.Background(), events.TaskRouted{
		BaseEvent: events.NewBaseEvent(),
		TaskID:    uuid.New(),
		LeadID:    &leadID,
		TaskType:  "support",
		Team:      "support",
		Priority:  "high",
		Intent:    "SUPPORT",
		DueAt:     time.Now().Add(4 * time.Hour),
		Title:     "Support Task",
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "team notified of routed task") || !strings.Contains(out, `"team":"support"`) {
		t.Fatalf("log output = %s", out)
	}
}

func TestFollowUpFailedLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	m := New(nil, logger.NewWithWriter("production", &buf))
	err := m.handleFollowUpFailed(context.Background(), events.FollowUpFailed{
		EventID:  uuid.New(),
		LeadID:   uuid.New(),
		Channel:  "sms",
		Attempts: 5,
		Reason:   "invalid number",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) || !strings.Contains(buf.String(), "invalid number") {
		t.Fatalf("log output = %s", buf.String())
	}
}

func TestHandlersRejectForeignEvents(t *testing.T) {
	m := New(nil, nil)
	if err := m.handleLeadAssigned(context.Background(), events.FollowUpSent{}); err == nil {
		t.Fatal("expected type error")
	}
}
