package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aluga-erp/aluga/internal/app"
	"github.com/aluga-erp/aluga/internal/audit"
	audithttp "github.com/aluga-erp/aluga/internal/audit/http"
	"github.com/aluga-erp/aluga/internal/observability"
	"github.com/aluga-erp/aluga/internal/settlement"
)

type memoryHistory struct {
	entries []audit.Entry
	queries []audit.Query
}

func (m *memoryHistory) History(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	m.queries = append(m.queries, q)
	var out []audit.Entry
	for _, e := range m.entries {
		if e.ContractID != q.ContractID {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if !q.From.IsZero() && e.At.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !e.At.Before(q.To) {
			continue
		}
		out = append(out, e)
	}
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func seededHistory() *memoryHistory {
	march := settlement.Period{Month: 3, Year: 2024}
	at := time.Date(2024, 3, 31, 14, 0, 0, 0, time.UTC)
	return &memoryHistory{entries: []audit.Entry{
		{ID: 3, ContractID: 7, Period: march, Action: settlement.ActionPayment, ActorID: 2, At: at,
			Note: settlement.AuditNote{Action: settlement.ActionPayment, PreviousStatus: settlement.StatusRecalculated, Status: settlement.StatusPaid, Summary: "paid R$ 1.821,73"}},
		{ID: 2, ContractID: 7, Period: march, Action: settlement.ActionRecalculate, ActorID: 2, At: at.AddDate(0, 0, -11),
			Note: settlement.AuditNote{Action: settlement.ActionRecalculate, PreviousStatus: settlement.StatusPending, Status: settlement.StatusRecalculated, Summary: "PENDING -> RECALCULATED: net R$ 1.777,91 -> R$ 1.821,73"}},
		{ID: 1, ContractID: 7, Period: march, Action: settlement.ActionRecalculate, At: at.AddDate(0, 0, -25),
			Note: settlement.AuditNote{Action: settlement.ActionRecalculate, Status: settlement.StatusPending, Summary: "created PENDING"}},
		{ID: 9, ContractID: 8, Period: march, Action: settlement.ActionRecalculate, At: at},
	}}
}

func newAPI(history audit.Repository) http.Handler {
	return app.NewRouter(app.RouterParams{
		Config:       &app.Config{RateLimit: 1000, AppRequestTimeout: 5 * time.Second},
		AuditHandler: audithttp.NewHandler(nil, audit.NewService(history)),
		Metrics:      observability.NewMetrics(),
	})
}

type timelineBody struct {
	Entries []struct {
		ID     int64  `json:"id"`
		Action string `json:"action"`
		Note   struct {
			Status string `json:"status"`
		} `json:"note"`
	} `json:"entries"`
	Paging struct {
		Page     int  `json:"page"`
		PageSize int  `json:"page_size"`
		HasNext  bool `json:"has_next"`
		NextPage int  `json:"next_page"`
	} `json:"paging"`
}

func TestHistoryTimelineThroughRouter(t *testing.T) {
	history := seededHistory()
	api := newAPI(history)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/contracts/7/history?page_size=2", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body timelineBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 2)
	require.Equal(t, int64(3), body.Entries[0].ID)
	require.Equal(t, "PAID", body.Entries[0].Note.Status)
	require.True(t, body.Paging.HasNext)
	require.Equal(t, 2, body.Paging.NextPage)

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/contracts/7/history?action=recalculate&from=2024-03-01&to=2024-03-20", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = timelineBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 2)
	require.False(t, body.Paging.HasNext)

	last := history.queries[len(history.queries)-1]
	require.Equal(t, settlement.ActionRecalculate, last.Action)
	require.Equal(t, time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC), last.To)
}

func TestHistoryExportThroughRouter(t *testing.T) {
	api := newAPI(seededHistory())

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/contracts/7/history/export.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\r\n"), "\r\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "at,period,action"))
	require.Contains(t, lines[1], "PAYMENT")
}

func TestHistoryRejectsInvalidFilters(t *testing.T) {
	api := newAPI(seededHistory())
	for _, target := range []string{
		"/api/v1/contracts/abc/history",
		"/api/v1/contracts/7/history?page=0",
		"/api/v1/contracts/7/history?from=2024-03-20&to=2024-03-01",
		"/api/v1/contracts/7/history?from=2022-01-01&to=2024-01-01",
	} {
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"), target)
	}
}
