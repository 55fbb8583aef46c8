package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskMaterializeSequence = "followups.materialize"

const TaskDispatchSweep = "followups.sweep"

type MaterializeSequencePayload struct {
	LeadID       string     `json:"leadId"`
	SequenceType string     `json:"sequenceType"`
	Channel      string     `json:"channel,omitempty"`
	BaseTime     *time.Time `json:"baseTime,omitempty"`
}

func NewMaterializeSequenceTask(payload MaterializeSequencePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMaterializeSequence, data), nil
}

func ParseMaterializeSequencePayload(task *asynq.Task) (MaterializeSequencePayload, error) {
	var payload MaterializeSequencePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return MaterializeSequencePayload{}, err
	}
	return payload, nil
}

// NewDispatchSweepTask carries no payload; the sweep reads the clock when it runs.
func NewDispatchSweepTask() *asynq.Task {
	return asynq.NewTask(TaskDispatchSweep, nil)
}
