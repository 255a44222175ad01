package accrual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/money"
	"github.com/aluga-erp/aluga/internal/shared"
)

// IndexRef identifies a monthly correction index value (e.g. IGPM 2024-03).
type IndexRef struct {
	Name  string
	Month int
	Year  int
}

func (r IndexRef) String() string {
	return fmt.Sprintf("%s/%04d-%02d", r.Name, r.Year, r.Month)
}

// IndexSource returns the raw stored value for an index reference. Missing
// values are reported with an error wrapping shared.ErrNotFound.
type IndexSource interface {
	RawIndex(ctx context.Context, ref IndexRef) (string, error)
}

// Default reasons reported when an index degrades to zero.
const (
	DefaultReasonMissing   = "missing"
	DefaultReasonMalformed = "malformed"
	DefaultReasonNegative  = "negative"
)

// IndexResolver turns raw index values into percentages. Missing, malformed
// or negative values degrade to zero with a warning; storage failures are
// returned.
type IndexResolver struct {
	source    IndexSource
	logger    *slog.Logger
	onDefault func(ref IndexRef, reason string)
}

// NewIndexResolver constructs a resolver; a nil source always yields zero.
func NewIndexResolver(source IndexSource, logger *slog.Logger) *IndexResolver {
	return &IndexResolver{source: source, logger: logger}
}

// OnDefault registers a hook invoked whenever an index degrades to zero.
func (r *IndexResolver) OnDefault(fn func(ref IndexRef, reason string)) {
	if r != nil {
		r.onDefault = fn
	}
}

// Percent returns the index percentage for ref.
func (r *IndexResolver) Percent(ctx context.Context, ref IndexRef) (decimal.Decimal, error) {
	if r == nil || r.source == nil || strings.TrimSpace(ref.Name) == "" {
		return decimal.Zero, nil
	}
	raw, err := r.source.RawIndex(ctx, ref)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			r.degrade(ref, DefaultReasonMissing, "")
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("accrual: load index %s: %w", ref, err)
	}
	pct, err := money.ParseBRL(raw)
	if err != nil {
		r.degrade(ref, DefaultReasonMalformed, raw)
		return decimal.Zero, nil
	}
	if pct.IsNegative() {
		r.degrade(ref, DefaultReasonNegative, raw)
		return decimal.Zero, nil
	}
	return pct, nil
}

func (r *IndexResolver) degrade(ref IndexRef, reason, raw string) {
	r.log().Warn("correction index defaulted to zero",
		slog.String("index", ref.Name),
		slog.Int("month", ref.Month),
		slog.Int("year", ref.Year),
		slog.String("reason", reason),
		slog.String("raw", raw),
	)
	if r.onDefault != nil {
		r.onDefault(ref, reason)
	}
}

func (r *IndexResolver) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// StaticIndexSource serves index values from memory.
type StaticIndexSource map[IndexRef]string

// RawIndex implements IndexSource.
func (s StaticIndexSource) RawIndex(_ context.Context, ref IndexRef) (string, error) {
	raw, ok := s[ref]
	if !ok {
		return "", fmt.Errorf("accrual: index %s: %w", ref, shared.ErrNotFound)
	}
	return raw, nil
}
