package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMaintenance runs scheduled scans.
	QueueMaintenance = "maintenance"

	// TaskSettlementRecalculate recomputes one contract period.
	TaskSettlementRecalculate = "settlement:recalculate"
	// TaskOwnershipIntegrity scans active contracts for invalid shares.
	TaskOwnershipIntegrity = "ownership:integrity"
)

const (
	recalculateMaxRetry = 5
	recalculateTimeout  = 2 * time.Minute
	integrityTimeout    = 15 * time.Minute
)

// RecalculatePayload identifies the settlement to recompute.
type RecalculatePayload struct {
	ContractID int64 `json:"contract_id"`
	Month      int   `json:"month"`
	Year       int   `json:"year"`
	ActorID    int64 `json:"actor_id,omitempty"`
}

// TaskID keeps at most one pending recalculation per contract period.
func (p RecalculatePayload) TaskID() string {
	return fmt.Sprintf("recalculate:%d:%04d-%02d", p.ContractID, p.Year, p.Month)
}

// NewRecalculateTask constructs a recalculation task.
func NewRecalculateTask(payload RecalculatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementRecalculate, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(recalculateMaxRetry),
		asynq.Timeout(recalculateTimeout),
	), nil
}

// NewIntegrityTask constructs the ownership integrity scan task.
func NewIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskOwnershipIntegrity, nil,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(1),
		asynq.Timeout(integrityTimeout),
	)
}
