package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aluga-erp/aluga/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis options.
func NewJobsCLI(opts asynq.RedisClientOpt) (*JobsCLI, error) {
	client := asynq.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{client: client, inspector: inspector}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name. The recalculation job takes
// "contract_id" and "YYYY-MM" as arguments.
func (c *JobsCLI) Trigger(ctx context.Context, name string, args ...string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, opts, err := BuildTask(name, args...)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, opts...)
}

// BuildTask prepares the task and enqueue options for a job name.
func BuildTask(name string, args ...string) (*asynq.Task, []asynq.Option, error) {
	switch name {
	case jobs.TaskOwnershipIntegrity:
		return jobs.NewIntegrityTask(), nil, nil
	case jobs.TaskSettlementRecalculate:
		if len(args) != 2 {
			return nil, nil, fmt.Errorf("jobs cli: %s needs <contract_id> <YYYY-MM>", name)
		}
		contractID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || contractID <= 0 {
			return nil, nil, fmt.Errorf("jobs cli: invalid contract id %q", args[0])
		}
		p, err := time.Parse("2006-01", strings.TrimSpace(args[1]))
		if err != nil {
			return nil, nil, fmt.Errorf("jobs cli: invalid period %q (expected YYYY-MM)", args[1])
		}
		payload := jobs.RecalculatePayload{ContractID: contractID, Month: int(p.Month()), Year: p.Year()}
		task, err := jobs.NewRecalculateTask(payload)
		if err != nil {
			return nil, nil, err
		}
		return task, []asynq.Option{asynq.TaskID(payload.TaskID())}, nil
	default:
		return nil, nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueues reports the metrics of every application queue.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, queue := range []string{jobs.QueueDefault, jobs.QueueMaintenance} {
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				out = append(out, QueueStats{Queue: queue})
				continue
			}
			return nil, err
		}
		out = append(out, QueueStats{
			Queue:     queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
		})
	}
	return out, nil
}
