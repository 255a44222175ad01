package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aluga-erp/aluga/internal/settlement"
	"github.com/aluga-erp/aluga/internal/shared"
)

type stubHistoryRepo struct {
	entries []Entry
	last    Query
	err     error
}

func (s *stubHistoryRepo) History(ctx context.Context, q Query) ([]Entry, error) {
	s.last = q
	if s.err != nil {
		return nil, s.err
	}
	out := s.entries
	if q.Offset < len(out) {
		out = out[q.Offset:]
	} else {
		out = nil
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func historyEntries(n int) []Entry {
	base := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, Entry{
			ID:         int64(n - i),
			ContractID: 7,
			Period:     settlement.Period{Month: 3, Year: 2024},
			Action:     settlement.ActionRecalculate,
			At:         base.Add(-time.Duration(i) * time.Hour),
			Note: settlement.AuditNote{
				Action:  settlement.ActionRecalculate,
				Status:  settlement.StatusRecalculated,
				Summary: "PENDING -> RECALCULATED: net R$ 1.777,91 -> R$ 1.821,73",
			},
		})
	}
	return entries
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubHistoryRepo{entries: historyEntries(3)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{ContractID: 7, Page: 1, PageSize: 2, Action: " recalculate "})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
	require.Equal(t, 3, repo.last.Limit)
	require.Equal(t, 0, repo.last.Offset)
	require.Equal(t, "RECALCULATE", repo.last.Action)

	result, err = svc.Timeline(context.Background(), TimelineFilters{ContractID: 7, Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)
	require.Equal(t, 2, repo.last.Offset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubHistoryRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{ContractID: 7})
	require.NoError(t, err)
	require.Equal(t, 21, repo.last.Limit)
	require.Equal(t, 1, result.Paging.Page)
	require.NotNil(t, result.Entries)

	_, err = svc.Timeline(context.Background(), TimelineFilters{ContractID: 7, PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 51, repo.last.Limit)
}

func TestTimelineRequiresContract(t *testing.T) {
	svc := NewService(&stubHistoryRepo{})
	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = NewService(nil).Timeline(context.Background(), TimelineFilters{ContractID: 7})
	require.Error(t, err)
}

func TestExportReturnsAllRows(t *testing.T) {
	repo := &stubHistoryRepo{entries: historyEntries(60)}
	svc := NewService(repo)

	entries, err := svc.Export(context.Background(), TimelineFilters{ContractID: 7})
	require.NoError(t, err)
	require.Len(t, entries, 60)
	require.Zero(t, repo.last.Limit)

	repo.err = errors.New("boom")
	_, err = svc.Export(context.Background(), TimelineFilters{ContractID: 7})
	require.EqualError(t, err, "boom")
}

func TestWriteCSV(t *testing.T) {
	entries := historyEntries(1)
	entries[0].ActorID = 4
	out, err := WriteCSV(entries)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(out), "\r\n"), "\r\n")
	require.Len(t, lines, 2)
	require.Equal(t, "at,period,action,actor_id,previous_status,status,summary,reason", lines[0])
	require.Equal(t, "2024-03-20T09:00:00Z,2024-03,RECALCULATE,4,,RECALCULATED,\"PENDING -> RECALCULATED: net R$ 1.777,91 -> R$ 1.821,73\",", lines[1])
}
