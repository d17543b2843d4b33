package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type approvalQueue interface {
	PendingFor(ctx context.Context, p models.Principal) ([]dto.PendingItem, error)
	ApprovedBy(ctx context.Context, p models.Principal) ([]dto.ApprovedItem, error)
}

type studentCounter interface {
	Count(ctx context.Context, departments []string) (int, error)
}

type approvedFormCounter interface {
	CountOverallApproved(ctx context.Context, departments []string) (int, error)
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Queue    approvalQueue
	Students studentCounter
	Forms    approvedFormCounter
	Cache    *CacheService
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// DashboardService composes the staff landing page.
type DashboardService struct {
	queue    approvalQueue
	students studentCounter
	forms    approvedFormCounter
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	if params.CacheTTL <= 0 {
		params.CacheTTL = 2 * time.Minute
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &DashboardService{
		queue:    params.Queue,
		students: params.Students,
		forms:    params.Forms,
		cache:    params.Cache,
		cacheTTL: params.CacheTTL,
		logger:   params.Logger,
	}
}

// Stats returns the dashboard of p and whether it came from cache.
func (s *DashboardService) Stats(ctx context.Context, p models.Principal) (*dto.DashboardStats, bool, error) {
	if !p.IsStaff() {
		return nil, false, appErrors.Clone(appErrors.ErrUnauthorized, "dashboard is for staff only")
	}

	key := dashboardCacheKey(p.ID)
	var cached dto.DashboardStats
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	res := ResolvePrincipal(p)
	stats := &dto.DashboardStats{
		StaffID:        p.ID,
		Role:           res.Role,
		Global:         res.Global(),
		Departments:    res.Departments,
		PendingByKind:  make(map[models.FormKind]int),
		ApprovedByKind: make(map[models.FormKind]int),
	}

	pending, err := s.queue.PendingFor(ctx, p)
	if err != nil {
		return nil, false, err
	}
	for _, item := range pending {
		stats.PendingByKind[item.Kind]++
	}
	stats.PendingTotal = len(pending)

	approved, err := s.queue.ApprovedBy(ctx, p)
	if err != nil {
		return nil, false, err
	}
	for _, item := range approved {
		stats.ApprovedByKind[item.Kind]++
	}
	stats.ApprovedTotal = len(approved)

	if res.Resolved() {
		if stats.StudentsInScope, err = s.students.Count(ctx, res.Departments); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
		}
		if stats.FullyApprovedForms, err = s.forms.CountOverallApproved(ctx, res.Departments); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count approved forms")
		}
	}

	if err := s.cache.Set(ctx, key, stats, s.cacheTTL); err != nil {
		s.logger.Debug("dashboard cache write skipped", zap.String("staff_id", p.ID), zap.Error(err))
	}
	return stats, false, nil
}
