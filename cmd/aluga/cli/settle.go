package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aluga-erp/aluga/internal/money"
	"github.com/aluga-erp/aluga/internal/settlement"
	"github.com/aluga-erp/aluga/internal/shared"
)

// Exit codes of the recalculate command.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitIntegrity = 10
	ExitLocked    = 11
)

// Recalculator runs one settlement computation.
type Recalculator interface {
	Recalculate(ctx context.Context, in settlement.RecalculateInput) (settlement.Result, error)
}

// SettleCLI exposes settlement operations on the command line.
type SettleCLI struct {
	service Recalculator
}

// NewSettleCLI wires the CLI to a settlement service.
func NewSettleCLI(service Recalculator) (*SettleCLI, error) {
	if service == nil {
		return nil, errors.New("settle cli: service not configured")
	}
	return &SettleCLI{service: service}, nil
}

// RecalculateOptions defines the flags of the recalculate command.
type RecalculateOptions struct {
	ContractID int64
	Period     string
	ActorID    int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RecalculateCommand recomputes one settlement and prints it.
func (c *SettleCLI) RecalculateCommand(ctx context.Context, opts RecalculateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.ContractID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "recalculate: --contract is required and must be positive")
		return ExitError
	}
	p, err := time.Parse("2006-01", strings.TrimSpace(opts.Period))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "recalculate: invalid period %q (expected YYYY-MM)\n", opts.Period)
		return ExitError
	}
	result, err := c.service.Recalculate(ctx, settlement.RecalculateInput{
		ContractID: opts.ContractID,
		Period:     settlement.Period{Month: int(p.Month()), Year: p.Year()},
		ActorID:    opts.ActorID,
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "recalculate: %v\n", err)
		switch {
		case errors.Is(err, shared.ErrShareIntegrity),
			errors.Is(err, shared.ErrPrimaryDesignation),
			errors.Is(err, shared.ErrNoParticipants):
			return ExitIntegrity
		case errors.Is(err, shared.ErrSettlementLocked):
			return ExitLocked
		default:
			return ExitError
		}
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(result); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "recalculate: encode json: %v\n", err)
			return ExitError
		}
		return ExitOK
	}
	renderSettlement(opts.Stdout, result)
	return ExitOK
}

func renderSettlement(out io.Writer, result settlement.Result) {
	s := result.Settlement
	_, _ = fmt.Fprintf(out, "Settlement contract %d period %s [%s]\n", s.ContractID, s.Period, s.Status)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, c := range s.Components {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Kind, c.Description, money.FormatBRL(c.Final))
	}
	for _, r := range s.Retained {
		_, _ = fmt.Fprintf(tw, "  retained %s\t%s\t%s\n", r.Kind, r.Description, money.FormatBRL(r.Amount))
	}
	_, _ = fmt.Fprintf(tw, "  Gross charged\t\t%s\n", money.FormatBRL(s.GrossCharged))
	_, _ = fmt.Fprintf(tw, "  Retained\t\t%s\n", money.FormatBRL(s.TotalRetained))
	_, _ = fmt.Fprintf(tw, "  Net\t\t%s\n", money.FormatBRL(s.Net))
	_ = tw.Flush()
	if s.NegativeNet {
		_, _ = fmt.Fprintln(out, "WARNING: retained items exceed the amount charged")
	}
	_, _ = fmt.Fprintln(out, "Distribution:")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, row := range result.Plan.Rows {
		_, _ = fmt.Fprintf(tw, "  %d\t%s\t%s%%\tgross %s\tfee %s\tpayout %s\n",
			row.LandlordID, row.Name, row.SharePercent.StringFixed(2),
			money.FormatBRL(row.GrossShare), money.FormatBRL(row.TransferFee), money.FormatBRL(row.Payout))
	}
	_ = tw.Flush()
}
