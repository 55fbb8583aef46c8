// Package sse provides Server-Sent Events feeds for operator dashboards.
package sse

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventTaskRouted     EventType = "task_routed"
	EventLeadAssigned   EventType = "lead_assigned"
	EventFollowUpFailed EventType = "follow_up_failed"
)

// AllTeams receives every event regardless of team.
const AllTeams = "*"

// Event represents an SSE event payload
type Event struct {
	Type    EventType `json:"type"`
	Team    string    `json:"team,omitempty"`
	LeadID  uuid.UUID `json:"leadId,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// client represents a connected SSE client
type client struct {
	team   string
	events chan Event
}

// Service fans events out to clients subscribed to a team feed.
type Service struct {
	mu      sync.RWMutex
	clients map[string][]*client
	log     *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		clients: make(map[string][]*client),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.team] = append(s.clients[c.team], c)
}

// removeClient unregisters c. It reports false when Close already dropped it.
func (s *Service) removeClient(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.team]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.team] = append(clients[:i], clients[i+1:]...)
			if len(s.clients[c.team]) == 0 {
				delete(s.clients, c.team)
			}
			close(c.events)
			return true
		}
	}
	return false
}

// Publish sends an event to the team's subscribers and to AllTeams subscribers.
// A full client buffer drops the event for that client.
func (s *Service) Publish(event Event) int {
	team := normalizeTeam(event.Team)

	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := s.clients[AllTeams]
	if team != AllTeams {
		targets = append(append([]*client(nil), targets...), s.clients[team]...)
	}
	delivered := 0
	for _, c := range targets {
		select {
		case c.events <- event:
			delivered++
		default:
			s.log.Warn("sse buffer full", "team", c.team, "event", event.Type)
		}
	}
	return delivered
}

// Subscribers returns the number of connected clients.
func (s *Service) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, cs := range s.clients {
		n += len(cs)
	}
	return n
}

// Handler streams a team feed. The team comes from the "team" query
// parameter; an empty value subscribes to every team.
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		team := normalizeTeam(c.Query("team"))

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		cl := &client{team: team, events: make(chan Event, 32)}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"team": team})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close disconnects every client.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[string][]*client)
}

func normalizeTeam(team string) string {
	team = strings.ToLower(strings.TrimSpace(team))
	if team == "" {
		return AllTeams
	}
	return team
}
