// internal/service/qrcampaign/service.go
package qrcampaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "qrloop-service/internal/domain/qrcampaign"
	wstypes "qrloop-service/internal/domain/websocket"
	xerrors "qrloop-service/internal/pkg/errors"

	"go.uber.org/zap"
)

var (
	ErrCampaignCompleted = errors.New("campaign completed for user")
	ErrNotRecurring      = errors.New("tool is not a recurring campaign")
)

// EventPublisher receives scan outcomes for the tool owner's live feed.
type EventPublisher interface {
	PublishScan(ownerID int64, event *wstypes.ScanEventData)
}

type CampaignService struct {
	store     domain.Store
	generator *CodeGenerator
	publisher EventPublisher
	now       func() time.Time
	logger    *zap.Logger
}

func NewCampaignService(store domain.Store, generator *CodeGenerator, publisher EventPublisher, logger *zap.Logger) *CampaignService {
	return &CampaignService{
		store:     store,
		generator: generator,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock overrides the time source.
func (s *CampaignService) WithClock(now func() time.Time) *CampaignService {
	s.now = now
	return s
}

// GetProgress returns the progress snapshot for a user, zeroed if they never scanned.
func (s *CampaignService) GetProgress(ctx context.Context, toolID int64, userID string) (*domain.ProgressView, error) {
	tc, err := s.store.FindToolCampaign(ctx, toolID)
	if err != nil {
		return nil, err
	}

	p, err := s.store.GetProgress(ctx, toolID, userID)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	view := progressView(p, tc.Config.RewardThreshold)
	return &view, nil
}

// ListCodes retrieves codes for a tool with filters
func (s *CampaignService) ListCodes(ctx context.Context, toolID int64, filters *domain.CodeListFilters) (*domain.CodeListResponse, error) {
	filters.Page, filters.PageSize = normalizePage(filters.Page, filters.PageSize)

	codes, total, err := s.store.ListCodes(ctx, toolID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}

	return &domain.CodeListResponse{
		Codes:      codes,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalPages: totalPages(total, filters.PageSize),
	}, nil
}

// ListRewards retrieves the reward audit trail for a tool
func (s *CampaignService) ListRewards(ctx context.Context, toolID int64, filters *domain.RewardListFilters) (*domain.RewardListResponse, error) {
	filters.Page, filters.PageSize = normalizePage(filters.Page, filters.PageSize)

	events, total, err := s.store.ListRewardEvents(ctx, toolID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}

	return &domain.RewardListResponse{
		Rewards:    events,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalPages: totalPages(total, filters.PageSize),
	}, nil
}

func (s *CampaignService) publish(ownerID int64, event *wstypes.ScanEventData) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishScan(ownerID, event)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}
	return pages
}
