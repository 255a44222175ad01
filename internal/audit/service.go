package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/aluga-erp/aluga/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository reads the settlement history.
type Repository interface {
	History(ctx context.Context, q Query) ([]Entry, error)
}

// Service serves the contract history timeline.
type Service struct {
	repo Repository
}

// NewService creates a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of history, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if filters.ContractID <= 0 {
		return Result{}, fmt.Errorf("audit: contract id: %w", shared.ErrInvalidArgument)
	}
	page := shared.NewPage(filters.Page, filters.PageSize, defaultPageSize, maxPageSize)
	q := queryFor(filters)
	q.Limit = page.LookAhead()
	q.Offset = page.Offset()
	entries, err := s.repo.History(ctx, q)
	if err != nil {
		return Result{}, err
	}
	info := page.Info(len(entries))
	if info.HasNext {
		entries = entries[:page.Size]
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Result{Entries: entries, Paging: info}, nil
}

// Export returns the full filtered history without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if filters.ContractID <= 0 {
		return nil, fmt.Errorf("audit: contract id: %w", shared.ErrInvalidArgument)
	}
	return s.repo.History(ctx, queryFor(filters))
}

func queryFor(filters TimelineFilters) Query {
	return Query{
		ContractID: filters.ContractID,
		Action:     strings.ToUpper(strings.TrimSpace(filters.Action)),
		From:       filters.From,
		To:         filters.To,
	}
}
