package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/aluga-erp/aluga/internal/jobs"
	"github.com/aluga-erp/aluga/internal/ownership"
	"github.com/aluga-erp/aluga/internal/settlement"
	"github.com/aluga-erp/aluga/internal/shared"
)

type stubRecalculator struct {
	in  settlement.RecalculateInput
	err error
}

func (s *stubRecalculator) Recalculate(ctx context.Context, in settlement.RecalculateInput) (settlement.Result, error) {
	s.in = in
	if s.err != nil {
		return settlement.Result{}, s.err
	}
	return settlement.Result{Settlement: settlement.Settlement{
		ContractID: in.ContractID,
		Period:     in.Period,
		Status:     settlement.StatusRecalculated,
		Net:        decimal.RequireFromString("1683.94"),
	}}, nil
}

func TestRecalculatePayloadRoundTrip(t *testing.T) {
	task, err := NewRecalculateTask(RecalculatePayload{ContractID: 7, Month: 3, Year: 2024})
	require.NoError(t, err)
	require.Equal(t, TaskSettlementRecalculate, task.Type())
	require.JSONEq(t, `{"contract_id":7,"month":3,"year":2024}`, string(task.Payload()))
	require.Equal(t, "recalculate:7:2024-03", RecalculatePayload{ContractID: 7, Month: 3, Year: 2024}.TaskID())
}

func TestRecalculateJobRunsService(t *testing.T) {
	svc := &stubRecalculator{}
	job := NewRecalculateJob(svc, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	payload, _ := json.Marshal(RecalculatePayload{ContractID: 7, Month: 3, Year: 2024, ActorID: 5})

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskSettlementRecalculate, payload)))
	require.Equal(t, int64(7), svc.in.ContractID)
	require.Equal(t, settlement.Period{Month: 3, Year: 2024}, svc.in.Period)
	require.Equal(t, int64(5), svc.in.ActorID)
}

func TestRecalculateJobRetryPolicy(t *testing.T) {
	payload, _ := json.Marshal(RecalculatePayload{ContractID: 7, Month: 3, Year: 2024})
	task := asynq.NewTask(TaskSettlementRecalculate, payload)

	permanentErrs := []error{
		fmt.Errorf("contract: %w", shared.ErrNotFound),
		&ownership.ShareIntegrityError{ContractID: 7, Role: ownership.RoleLandlord, Sum: decimal.RequireFromString("99.5")},
		&settlement.LockedError{ContractID: 7, Period: settlement.Period{Month: 3, Year: 2024}, Status: settlement.StatusPaid},
	}
	for _, cause := range permanentErrs {
		err := NewRecalculateJob(&stubRecalculator{err: cause}, nil, nil).Handle(context.Background(), task)
		require.ErrorIs(t, err, asynq.SkipRetry, cause.Error())
	}

	transient := errors.New("connection reset")
	err := NewRecalculateJob(&stubRecalculator{err: transient}, nil, nil).Handle(context.Background(), task)
	require.ErrorIs(t, err, transient)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	err = NewRecalculateJob(&stubRecalculator{}, nil, nil).Handle(context.Background(), asynq.NewTask(TaskSettlementRecalculate, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubContracts struct {
	ids []int64
	err error
}

func (s stubContracts) ListActiveContractIDs(ctx context.Context) ([]int64, error) {
	return s.ids, s.err
}

type stubChecker map[int64]struct {
	violations []ownership.Violation
	err        error
}

func (s stubChecker) Check(ctx context.Context, contractID int64) ([]ownership.Violation, error) {
	r := s[contractID]
	return r.violations, r.err
}

func TestIntegrityJobCollectsViolations(t *testing.T) {
	checker := stubChecker{
		2: {violations: []ownership.Violation{{
			ContractID: 2,
			Role:       ownership.RoleLandlord,
			Err:        &ownership.PrimaryDesignationError{ContractID: 2, Role: ownership.RoleLandlord},
		}}},
		3: {err: errors.New("timeout")},
	}
	job := NewIntegrityJob(stubContracts{ids: []int64{1, 2, 3, 4}}, checker, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	report, err := job.Run(context.Background())
	require.EqualError(t, err, "timeout")
	require.Equal(t, 4, report.Contracts)
	require.Len(t, report.Violations, 1)
	require.Equal(t, "primary", violationKind(report.Violations[0].Err))
}

func TestIntegrityJobListFailure(t *testing.T) {
	job := NewIntegrityJob(stubContracts{err: errors.New("db down")}, stubChecker{}, nil, nil)
	require.EqualError(t, job.Handle(context.Background(), NewIntegrityTask()), "db down")

	_, err := (&IntegrityJob{}).Run(context.Background())
	require.Error(t, err)
}

func TestViolationKinds(t *testing.T) {
	require.Equal(t, "share_sum", violationKind(fmt.Errorf("x: %w", shared.ErrShareIntegrity)))
	require.Equal(t, "no_participants", violationKind(&ownership.NoParticipantsError{ContractID: 1, Role: ownership.RoleTenant}))
	require.Equal(t, "invalid", violationKind(shared.ErrInvalidArgument))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queues":[{"queue":"default","pending":0,"retry":0,"paused":false},{"queue":"maintenance","pending":0,"retry":0,"paused":false}]}`, rec.Body.String())
}

func TestWorkerRegistersHandlers(t *testing.T) {
	var called bool
	w, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers: []TaskHandler{{Type: TaskOwnershipIntegrity, Handler: func(ctx context.Context, t *asynq.Task) error {
			called = true
			return nil
		}}},
	})
	require.NoError(t, err)
	require.NoError(t, w.Mux().ProcessTask(context.Background(), NewIntegrityTask()))
	require.True(t, called)
}
