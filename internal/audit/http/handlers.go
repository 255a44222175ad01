package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aluga-erp/aluga/internal/audit"
	"github.com/aluga-erp/aluga/internal/platform/httpx"
)

const maxDateRange = 366 * 24 * time.Hour

// TimelineService defines the business contract for history data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.Entry, error)
}

// Handler serves the settlement history of a contract.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
}

// NewHandler creates a history handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.respondError(w, "load settlement history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.respondError(w, "export settlement history", err)
		return
	}
	body, err := audit.WriteCSV(entries)
	if err != nil {
		h.respondError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"contract-%d-history.csv\"", filters.ContractID))
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	contractID, err := strconv.ParseInt(chi.URLParam(r, "contractID"), 10, 64)
	if err != nil || contractID <= 0 {
		return audit.TimelineFilters{}, fmt.Errorf("contract id: %w", httpx.ErrValidation)
	}
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		ContractID: contractID,
		Action:     strings.TrimSpace(q.Get("action")),
	}
	if filters.From, err = parseDate(q.Get("from")); err != nil {
		return audit.TimelineFilters{}, fmt.Errorf("from: %w", httpx.ErrValidation)
	}
	if filters.To, err = parseDate(q.Get("to")); err != nil {
		return audit.TimelineFilters{}, fmt.Errorf("to: %w", httpx.ErrValidation)
	}
	if !filters.To.IsZero() {
		// inclusive end date
		filters.To = filters.To.AddDate(0, 0, 1)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() {
		if !filters.From.Before(filters.To) || filters.To.Sub(filters.From) > maxDateRange {
			return audit.TimelineFilters{}, fmt.Errorf("range: %w", httpx.ErrValidation)
		}
	}
	if filters.Page, err = parsePositive(q.Get("page")); err != nil {
		return audit.TimelineFilters{}, fmt.Errorf("page: %w", httpx.ErrValidation)
	}
	if filters.PageSize, err = parsePositive(q.Get("page_size")); err != nil {
		return audit.TimelineFilters{}, fmt.Errorf("page_size: %w", httpx.ErrValidation)
	}
	return filters, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func parsePositive(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, errors.New("must be positive")
	}
	return v, nil
}

func (h *Handler) respondError(w http.ResponseWriter, message string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	h.logger.Error(message, slog.Any("error", err))
	httpx.RespondError(w, err)
}
