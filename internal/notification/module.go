// Package notification tells teams about routing outcomes and delivery
// failures. It subscribes to domain events so routing and dispatch never
// depend on how teams are notified.
package notification

import (
	"context"
	"fmt"

	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/notification/sse"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Module handles team notifications.
type Module struct {
	log *logger.Logger
	sse *sse.Service
}

// New creates the notification module.
func New(feed *sse.Service, log *logger.Logger) *Module {
	if log == nil {
		log = logger.Discard()
	}
	return &Module{log: log, sse: feed}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts the team feed.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.sse == nil {
		return
	}
	// GET /api/v1/notifications/stream?team=sales
	ctx.Protected.GET("/notifications/stream", m.sse.Handler())
}

// RegisterHandlers subscribes the module to the events it reports on.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.TaskRouted{}.EventName(), events.HandlerFunc(m.handleTaskRouted))
	bus.Subscribe(events.LeadAssigned{}.EventName(), events.HandlerFunc(m.handleLeadAssigned))
	bus.Subscribe(events.FollowUpFailed{}.EventName(), events.HandlerFunc(m.handleFollowUpFailed))
}

func (m *Module) handleTaskRouted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.TaskRouted)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	m.log.WithContext(ctx).Info("team notified of routed task",
		"team", e.Team,
		"taskId", e.TaskID,
		"taskType", e.TaskType,
		"priority", e.Priority,
		"intent", e.Intent,
		"dueAt", e.DueAt,
	)

	var leadID uuid.UUID
	if e.LeadID != nil {
		leadID = *e.LeadID
	}
	m.push(sse.Event{
		Type:    sse.EventTaskRouted,
		Team:    e.Team,
		LeadID:  leadID,
		Message: fmt.Sprintf("New %s task (%s priority): %s", e.TaskType, e.Priority, e.Title),
		Data:    e,
	})
	return nil
}

func (m *Module) handleLeadAssigned(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadAssigned)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	m.log.WithContext(ctx).Info("lead assigned", "team", e.Team, "leadId", e.LeadID, "memberId", e.AssignedMemberID, "score", e.Score)

	msg := fmt.Sprintf("Lead routed to %s (score %.0f)", e.Team, e.Score)
	if e.AssignedMemberID == nil {
		msg += ", no member available"
	}
	m.push(sse.Event{Type: sse.EventLeadAssigned, Team: e.Team, LeadID: e.LeadID, Message: msg, Data: e})
	return nil
}

func (m *Module) handleFollowUpFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(events.FollowUpFailed)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	m.log.WithContext(ctx).Warn("follow-up abandoned",
		"eventId", e.EventID,
		"leadId", e.LeadID,
		"channel", e.Channel,
		"attempts", e.Attempts,
		"reason", e.Reason,
	)
	m.push(sse.Event{
		Type:    sse.EventFollowUpFailed,
		LeadID:  e.LeadID,
		Message: fmt.Sprintf("Follow-up via %s failed after %d attempts", e.Channel, e.Attempts),
		Data:    e,
	})
	return nil
}

func (m *Module) push(e sse.Event) {
	if m.sse != nil {
		m.sse.Publish(e)
	}
}

var _ apphttp.Module = (*Module)(nil)
