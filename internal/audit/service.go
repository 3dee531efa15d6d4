package audit

import (
	"context"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Service coordinates audit timeline reads. The trail is visible to
// admins and supervisors; storekeepers see only their own actions.
type Service struct {
	repo RepositoryPort
}

// NewService builds a timeline service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline fetches audit rows with paging. One extra row is requested to
// detect whether a next page exists.
func (s *Service) Timeline(ctx context.Context, actor shared.Actor, filters TimelineFilters) (Result, error) {
	if actor.Role != shared.RoleAdmin && actor.Role != shared.RoleSupervisor {
		filters.ActorID = actor.ID
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Window(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
