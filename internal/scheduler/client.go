package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/followup"
	"leadflow_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueMaterialize hands a sequence to the worker. A failed run is retried
// as a whole; the repository inserts the sequence in one transaction.
func (c *Client) EnqueueMaterialize(ctx context.Context, p followup.MaterializeParams) error {
	if c == nil || c.client == nil {
		return nil
	}

	payload := MaterializeSequencePayload{
		LeadID:       p.LeadID.String(),
		SequenceType: p.SequenceType,
		Channel:      p.Channel,
	}
	if !p.BaseTime.IsZero() {
		base := p.BaseTime.UTC()
		payload.BaseTime = &base
	}

	task, err := NewMaterializeSequenceTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(5))
	return err
}

// EnqueueSweep asks a worker to sweep now. Requests inside the same window
// collapse into one task.
func (c *Client) EnqueueSweep(ctx context.Context, window time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}

	_, err := c.client.EnqueueContext(ctx, NewDispatchSweepTask(),
		asynq.Queue(c.queue),
		asynq.Unique(window),
		asynq.MaxRetry(0),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func queueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqQueueName(); q != "" {
		return q
	}
	return "default"
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
