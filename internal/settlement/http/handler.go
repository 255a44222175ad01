package settlementhttp

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
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/accrual"
	"github.com/aluga-erp/aluga/internal/money"
	"github.com/aluga-erp/aluga/internal/platform/httpx"
	"github.com/aluga-erp/aluga/internal/settlement"
	"github.com/aluga-erp/aluga/internal/shared"
)

type settlementService interface {
	Recalculate(ctx context.Context, in settlement.RecalculateInput) (settlement.Result, error)
	RecordPayment(ctx context.Context, in settlement.PaymentInput) (settlement.Settlement, error)
	Cancel(ctx context.Context, in settlement.CancelInput) (settlement.Settlement, error)
	Get(ctx context.Context, contractID int64, period settlement.Period) (settlement.View, error)
	ListByPeriod(ctx context.Context, period settlement.Period) ([]settlement.Settlement, error)
}

// Enqueuer schedules asynchronous recalculations.
type Enqueuer interface {
	EnqueueRecalculate(ctx context.Context, contractID int64, period settlement.Period) error
}

// Handler exposes settlement operations over JSON.
type Handler struct {
	logger    *slog.Logger
	service   settlementService
	enqueuer  Enqueuer
	validator *validator.Validate
}

type recalculateRequest struct {
	ManualAccruals []manualAccrualRequest `json:"manual_accruals" validate:"dive"`
}

type manualAccrualRequest struct {
	ComponentID int64  `json:"component_id" validate:"required,gt=0"`
	Interest    string `json:"interest" validate:"max=32"`
	Penalty     string `json:"penalty" validate:"max=32"`
	Correction  string `json:"correction" validate:"max=32"`
}

type paymentRequest struct {
	PaymentID string `json:"payment_id" validate:"required,uuid"`
	Amount    string `json:"amount" validate:"required,max=32"`
	PaidAt    string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type batchRequest struct {
	Month       int     `json:"month" validate:"required,min=1,max=12"`
	Year        int     `json:"year" validate:"required,min=2000,max=2100"`
	ContractIDs []int64 `json:"contract_ids" validate:"required,min=1,max=500,dive,gt=0"`
}

type batchResponse struct {
	Enqueued int     `json:"enqueued"`
	Failed   []int64 `json:"failed,omitempty"`
}

// NewHandler constructs a settlement handler. enqueuer may be nil, in which
// case batch recalculation answers 501.
func NewHandler(logger *slog.Logger, service settlementService, enqueuer Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		enqueuer:  enqueuer,
		validator: validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/settlements", func(r chi.Router) {
		r.Get("/", h.listSettlements)
		r.Post("/recalculate-batch", h.recalculateBatch)
	})
	r.Route("/contracts/{contractID}/settlements/{year}/{month}", func(r chi.Router) {
		r.Get("/", h.getSettlement)
		r.Post("/recalculate", h.recalculate)
		r.Post("/payments", h.recordPayment)
		r.Post("/cancel", h.cancel)
	})
}

func (h *Handler) listSettlements(w http.ResponseWriter, r *http.Request) {
	month, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("month")))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("month: %w", httpx.ErrValidation))
		return
	}
	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("year: %w", httpx.ErrValidation))
		return
	}
	items, err := h.service.ListByPeriod(r.Context(), settlement.Period{Month: month, Year: year})
	if err != nil {
		h.respondError(w, "list settlements", err)
		return
	}
	if items == nil {
		items = []settlement.Settlement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"settlements": items})
}

func (h *Handler) getSettlement(w http.ResponseWriter, r *http.Request) {
	contractID, period, err := parseTarget(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Get(r.Context(), contractID, period)
	if err != nil {
		h.respondError(w, "get settlement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	contractID, period, err := parseTarget(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req recalculateRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := settlement.RecalculateInput{ContractID: contractID, Period: period, ActorID: shared.ActorFromRequest(r)}
	if len(req.ManualAccruals) > 0 {
		in.ManualAccruals = make(map[int64]accrual.Breakdown, len(req.ManualAccruals))
		for _, m := range req.ManualAccruals {
			b, err := m.breakdown()
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			in.ManualAccruals[m.ComponentID] = b
		}
	}
	result, err := h.service.Recalculate(r.Context(), in)
	if err != nil {
		h.respondError(w, "recalculate settlement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	contractID, period, err := parseTarget(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("payment_id: %w", httpx.ErrValidation))
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		paidAt, _ = time.Parse("2006-01-02", req.PaidAt)
	}
	s, err := h.service.RecordPayment(r.Context(), settlement.PaymentInput{
		ContractID: contractID,
		Period:     period,
		PaymentID:  paymentID,
		Amount:     amount,
		PaidAt:     paidAt,
		ActorID:    shared.ActorFromRequest(r),
	})
	if err != nil {
		h.respondError(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	contractID, period, err := parseTarget(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cancelRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.service.Cancel(r.Context(), settlement.CancelInput{
		ContractID: contractID,
		Period:     period,
		ActorID:    shared.ActorFromRequest(r),
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.respondError(w, "cancel settlement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) recalculateBatch(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "job queue not configured")
		return
	}
	var req batchRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	period := settlement.Period{Month: req.Month, Year: req.Year}
	resp := batchResponse{}
	seen := make(map[int64]struct{}, len(req.ContractIDs))
	for _, id := range req.ContractIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := h.enqueuer.EnqueueRecalculate(r.Context(), id, period); err != nil {
			h.logger.Warn("enqueue recalculation",
				slog.Int64("contract_id", id),
				slog.String("period", period.String()),
				slog.Any("error", err))
			resp.Failed = append(resp.Failed, id)
			continue
		}
		resp.Enqueued++
	}
	status := http.StatusAccepted
	if resp.Enqueued == 0 {
		status = http.StatusServiceUnavailable
	}
	httpx.JSON(w, status, resp)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	if err := h.validator.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid %s: %w", strings.Join(fields, ", "), httpx.ErrValidation)
		}
		return fmt.Errorf("%v: %w", err, httpx.ErrValidation)
	}
	return nil
}

func (h *Handler) respondError(w http.ResponseWriter, message string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	status := httpx.StatusFor(err)
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.Error(message, slog.Any("error", err))
	case status == http.StatusUnprocessableEntity || status == http.StatusConflict:
		h.logger.Warn(message, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (m manualAccrualRequest) breakdown() (accrual.Breakdown, error) {
	var (
		b   accrual.Breakdown
		err error
	)
	if b.Interest, err = parseAmount("interest", m.Interest); err != nil {
		return accrual.Breakdown{}, err
	}
	if b.Penalty, err = parseAmount("penalty", m.Penalty); err != nil {
		return accrual.Breakdown{}, err
	}
	if b.Correction, err = parseAmount("correction", m.Correction); err != nil {
		return accrual.Breakdown{}, err
	}
	return b, nil
}

func parseTarget(r *http.Request) (int64, settlement.Period, error) {
	contractID, err := strconv.ParseInt(chi.URLParam(r, "contractID"), 10, 64)
	if err != nil || contractID <= 0 {
		return 0, settlement.Period{}, fmt.Errorf("contract id: %w", httpx.ErrValidation)
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, settlement.Period{}, fmt.Errorf("year: %w", httpx.ErrValidation)
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return 0, settlement.Period{}, fmt.Errorf("month: %w", httpx.ErrValidation)
	}
	return contractID, settlement.Period{Month: month, Year: year}, nil
}

// parseAmount accepts "1877.91" as well as "R$ 1.877,91". Empty means zero.
func parseAmount(field, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	v, err := money.ParseBRL(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, httpx.ErrValidation)
	}
	return v, nil
}
