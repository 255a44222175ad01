package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aluga-erp/aluga/internal/distribution"
	"github.com/aluga-erp/aluga/internal/ownership"
	"github.com/aluga-erp/aluga/internal/settlement"
	"github.com/aluga-erp/aluga/internal/shared"
	"github.com/aluga-erp/aluga/jobs"
)

type stubRecalculator struct {
	in     settlement.RecalculateInput
	result settlement.Result
	err    error
}

func (s *stubRecalculator) Recalculate(ctx context.Context, in settlement.RecalculateInput) (settlement.Result, error) {
	s.in = in
	return s.result, s.err
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func sampleResult() settlement.Result {
	return settlement.Result{
		Settlement: settlement.Settlement{
			ContractID:    7,
			Period:        settlement.Period{Month: 3, Year: 2024},
			Status:        settlement.StatusRecalculated,
			Components:    []settlement.ChargeComponent{{ID: 1, Kind: settlement.KindRent, Description: "aluguel", Final: dec("1921.73")}},
			GrossCharged:  dec("1921.73"),
			TotalRetained: dec("192.17"),
			Net:           dec("1729.56"),
		},
		Plan: distribution.Plan{
			Net: dec("1729.56"),
			Rows: []distribution.Row{
				{LandlordID: 1, Name: "Ana", SharePercent: dec("50"), GrossShare: dec("864.78"), Payout: dec("864.78")},
				{LandlordID: 2, Name: "Bruno", SharePercent: dec("50"), GrossShare: dec("864.78"), TransferFee: dec("2.50"), Payout: dec("862.28")},
			},
		},
	}
}

func TestRecalculateCommandHuman(t *testing.T) {
	svc := &stubRecalculator{result: sampleResult()}
	c, err := NewSettleCLI(svc)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.RecalculateCommand(context.Background(), RecalculateOptions{ContractID: 7, Period: "2024-03", ActorID: 3, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitOK, code)
	require.Equal(t, settlement.Period{Month: 3, Year: 2024}, svc.in.Period)
	require.Equal(t, int64(3), svc.in.ActorID)

	out := stdout.String()
	require.Contains(t, out, "Settlement contract 7 period 2024-03 [RECALCULATED]")
	require.Contains(t, out, "R$ 1.729,56")
	require.Contains(t, out, "payout R$ 862,28")
	require.NotContains(t, out, "WARNING")
}

func TestRecalculateCommandJSON(t *testing.T) {
	c, err := NewSettleCLI(&stubRecalculator{result: sampleResult()})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.RecalculateCommand(context.Background(), RecalculateOptions{ContractID: 7, Period: "2024-03", JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitOK, code)

	var decoded struct {
		Settlement struct {
			Net string `json:"net"`
		} `json:"settlement"`
		Distribution struct {
			Rows []struct {
				Payout string `json:"payout"`
			} `json:"rows"`
		} `json:"distribution"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	require.Equal(t, "1729.56", decoded.Settlement.Net)
	require.Len(t, decoded.Distribution.Rows, 2)
}

func TestRecalculateCommandExitCodes(t *testing.T) {
	cases := []struct {
		opts RecalculateOptions
		err  error
		code int
	}{
		{RecalculateOptions{Period: "2024-03"}, nil, ExitError},
		{RecalculateOptions{ContractID: 7, Period: "03/2024"}, nil, ExitError},
		{RecalculateOptions{ContractID: 7, Period: "2024-03"}, &ownership.ShareIntegrityError{ContractID: 7, Role: ownership.RoleLandlord, Sum: dec("99.5")}, ExitIntegrity},
		{RecalculateOptions{ContractID: 7, Period: "2024-03"}, &settlement.LockedError{ContractID: 7, Status: settlement.StatusPaid}, ExitLocked},
		{RecalculateOptions{ContractID: 7, Period: "2024-03"}, fmt.Errorf("contract: %w", shared.ErrNotFound), ExitError},
	}
	for _, tc := range cases {
		c, err := NewSettleCLI(&stubRecalculator{err: tc.err})
		require.NoError(t, err)
		stderr := new(bytes.Buffer)
		tc.opts.Stdout = new(bytes.Buffer)
		tc.opts.Stderr = stderr
		require.Equal(t, tc.code, c.RecalculateCommand(context.Background(), tc.opts))
		require.True(t, strings.HasPrefix(stderr.String(), "recalculate:"))
	}

	_, err := NewSettleCLI(nil)
	require.Error(t, err)
}

func TestBuildTask(t *testing.T) {
	task, opts, err := BuildTask(jobs.TaskSettlementRecalculate, "7", "2024-03")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskSettlementRecalculate, task.Type())
	require.JSONEq(t, `{"contract_id":7,"month":3,"year":2024}`, string(task.Payload()))
	require.Len(t, opts, 1)

	task, _, err = BuildTask(jobs.TaskOwnershipIntegrity)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskOwnershipIntegrity, task.Type())

	for _, args := range [][]string{{"7"}, {"x", "2024-03"}, {"7", "2024-3-1"}} {
		_, _, err = BuildTask(jobs.TaskSettlementRecalculate, args...)
		require.Error(t, err)
	}
	_, _, err = BuildTask("mail:send")
	require.True(t, err != nil && !errors.Is(err, context.Canceled))
}
