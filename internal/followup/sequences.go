// Package followup turns named sequence templates into scheduled follow-up
// events and manages their lifecycle up to dispatch.
package followup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// Step is one message of a sequence, offset from the sequence start.
type Step struct {
	Key      string `json:"key"`
	Template string `json:"template"`
}

// Offset returns the delay encoded in the step key: hour_N is N hours,
// day_N is N days and anything else is one day.
func (s Step) Offset() time.Duration {
	return parseStepOffset(s.Key)
}

// Definition is a named, immutable sequence template.
type Definition struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

var definitions = map[string]Definition{
	"nurture": {Name: "nurture", Steps: []Step{
		{Key: "day_1", Template: "Thank you for your interest!"},
		{Key: "day_3", Template: "Here are some resources that might help..."},
		{Key: "day_7", Template: "Still interested? Let's schedule a call."},
		{Key: "day_14", Template: "Final reminder about our services"},
	}},
	"reminder": {Name: "reminder", Steps: []Step{
		{Key: "hour_1", Template: "Quick reminder about your inquiry"},
		{Key: "day_1", Template: "Following up on your request"},
	}},
	"post_demo": {Name: "post_demo", Steps: []Step{
		{Key: "hour_24", Template: "Thank you for attending the demo!"},
		{Key: "day_3", Template: "Questions about the demo?"},
		{Key: "day_7", Template: "Ready to move forward?"},
	}},
}

// UnknownSequenceError reports a sequence type with no template.
type UnknownSequenceError struct {
	Name string
}

func (e *UnknownSequenceError) Error() string {
	return fmt.Sprintf("unknown sequence type: %s", e.Name)
}

// Lookup returns the definition for a sequence type. An unknown type is a
// KindConfiguration error wrapping *UnknownSequenceError.
func Lookup(name string) (Definition, error) {
	def, ok := definitions[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		unknown := &UnknownSequenceError{Name: name}
		return Definition{}, apperr.Wrap(apperr.KindConfiguration, unknown.Error(), unknown)
	}
	return copyDefinition(def), nil
}

// Definitions lists every sequence template ordered by name.
func Definitions() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, def := range definitions {
		out = append(out, copyDefinition(def))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func copyDefinition(def Definition) Definition {
	steps := make([]Step, len(def.Steps))
	copy(steps, def.Steps)
	return Definition{Name: def.Name, Steps: steps}
}

func parseStepOffset(key string) time.Duration {
	unit, raw, ok := strings.Cut(key, "_")
	if !ok {
		return 24 * time.Hour
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 24 * time.Hour
	}
	switch unit {
	case "hour":
		return time.Duration(n) * time.Hour
	case "day":
		return time.Duration(n) * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Plan expands a definition into pending events, one per step, scheduled
// relative to base. Nothing is persisted.
func Plan(def Definition, leadID uuid.UUID, channel string, base time.Time) []Event {
	out := make([]Event, 0, len(def.Steps))
	for _, step := range def.Steps {
		out = append(out, Event{
			ID:           uuid.New(),
			LeadID:       leadID,
			SequenceType: def.Name,
			Channel:      channel,
			ScheduledAt:  base.Add(step.Offset()),
			Content:      step.Template,
			Status:       StatusPending,
		})
	}
	return out
}
