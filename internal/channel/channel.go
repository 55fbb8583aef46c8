// Package channel delivers follow-up content over email, SMS, WhatsApp and
// chat. Expected delivery failures are reported in the Result, never as errors.
package channel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"leadflow_backend/platform/logger"

	"golang.org/x/time/rate"
)

const (
	MetadataSubject      = "subject"
	MetadataEventID      = "eventId"
	MetadataSequenceType = "sequenceType"
)

// Message is one outbound send.
type Message struct {
	Channel   string
	Recipient string
	Content   string
	Metadata  map[string]string
}

// Subject returns the subject metadata or a generic fallback.
func (m Message) Subject() string {
	if s := strings.TrimSpace(m.Metadata[MetadataSubject]); s != "" {
		return s
	}
	if t := m.Metadata[MetadataSequenceType]; t != "" {
		return "Follow-up: " + t
	}
	return "Follow-up"
}

// Result is the outcome of a send.
type Result struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Delivered builds a successful Result.
func Delivered(providerMessageID string) Result {
	return Result{Success: true, ProviderMessageID: providerMessageID}
}

// Failed builds a failed Result.
func Failed(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Sender delivers messages for one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) Result
}

// Transport sends content over a named channel.
type Transport interface {
	Send(ctx context.Context, channel, recipient, content string, metadata map[string]string) Result
}

type route struct {
	sender  Sender
	limiter *rate.Limiter
}

// Router dispatches sends to registered channel senders, throttled per channel.
type Router struct {
	mu     sync.RWMutex
	routes map[string]route
	log    *logger.Logger
}

// NewRouter creates an empty Router.
func NewRouter(log *logger.Logger) *Router {
	return &Router{routes: make(map[string]route), log: log}
}

// Register binds a sender to a channel. A zero limit disables throttling.
func (r *Router) Register(channel string, sender Sender, limit rate.Limit, burst int) {
	var limiter *rate.Limiter
	if limit > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(limit, burst)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[strings.ToLower(channel)] = route{sender: sender, limiter: limiter}
}

// Alias makes channel share the sender and limiter of target.
func (r *Router) Alias(channel, target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routes[strings.ToLower(target)]
	if !ok {
		return false
	}
	r.routes[strings.ToLower(channel)] = rt
	return true
}

// Channels lists the registered channel names.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for name := range r.routes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Send waits for the channel's rate limiter and delivers the message.
func (r *Router) Send(ctx context.Context, channel, recipient, content string, metadata map[string]string) Result {
	name := strings.ToLower(strings.TrimSpace(channel))
	r.mu.RLock()
	rt, ok := r.routes[name]
	r.mu.RUnlock()
	if !ok {
		return Failed("channel %q is not configured", channel)
	}
	if strings.TrimSpace(recipient) == "" {
		return Failed("missing recipient")
	}

	if rt.limiter != nil {
		if err := rt.limiter.Wait(ctx); err != nil {
			return Failed("rate limit wait: %v", err)
		}
	}

	res := rt.sender.Send(ctx, Message{Channel: name, Recipient: recipient, Content: content, Metadata: metadata})
	if !res.Success && res.Error == "" {
		res.Error = "send failed"
	}
	if !res.Success && r.log != nil {
		r.log.Debug("channel send failed", "channel", name, "error", res.Error)
	}
	return res
}

var _ Transport = (*Router)(nil)
